package httpadapter

import (
	"context"
	"net/http"
	"strings"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

const (
	userIDHeader   = "X-User-Id"
	userNameHeader = "X-User-Name"
	userRoleHeader = "X-User-Role"

	adminRole = "ADMIN"
)

type principalContextKey struct{}

// principalFromHeaders reads the identity set by the trusted gateway in front of the API.
func principalFromHeaders(r *http.Request) (domain.Principal, bool) {
	id := strings.TrimSpace(r.Header.Get(userIDHeader))
	if id == "" {
		return domain.Principal{}, false
	}
	name := strings.TrimSpace(r.Header.Get(userNameHeader))
	if name == "" {
		name = id
	}
	return domain.Principal{
		ID:    id,
		Name:  name,
		Admin: strings.EqualFold(strings.TrimSpace(r.Header.Get(userRoleHeader)), adminRole),
	}, true
}

func principalFromContext(ctx context.Context) domain.Principal {
	p, _ := ctx.Value(principalContextKey{}).(domain.Principal)
	return p
}

// requirePrincipal rejects requests without an identity and stores it in the context.
func requirePrincipal(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFromHeaders(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing " + userIDHeader + " header"})
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), principalContextKey{}, principal)))
	}
}
