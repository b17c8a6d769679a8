package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/document-pipeline/internal/config"
	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
	"github.com/kirillkom/document-pipeline/internal/observability/metrics"
)

const multipartMemoryBytes = 8 << 20

type Dependencies struct {
	Ingest  ports.DocumentIngestor
	Reader  ports.DocumentReader
	Manager ports.DocumentManager
	Stream  ports.EventStream

	// Optional.
	Metrics        *metrics.HTTPServerMetrics
	MetricsHandler http.Handler
}

type Router struct {
	ingest  ports.DocumentIngestor
	reader  ports.DocumentReader
	manager ports.DocumentManager
	stream  ports.EventStream

	metrics        *metrics.HTTPServerMetrics
	metricsHandler http.Handler

	maxUploadBytes   int64
	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	return &Router{
		ingest:           deps.Ingest,
		reader:           deps.Reader,
		manager:          deps.Manager,
		stream:           deps.Stream,
		metrics:          deps.Metrics,
		metricsHandler:   deps.MetricsHandler,
		maxUploadBytes:   cfg.MaxUploadBytes,
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIMaxInFlight,
		backpressureWait: cfg.BackpressureWait(),
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/documents", requirePrincipal(rt.uploadDocument))
	api.HandleFunc("GET /v1/documents/search", requirePrincipal(rt.searchDocuments))
	api.HandleFunc("GET /v1/documents/{id}", requirePrincipal(rt.getDocument))
	api.HandleFunc("DELETE /v1/documents/{id}", requirePrincipal(rt.deleteDocument))
	api.HandleFunc("GET /v1/documents/{id}/file", requirePrincipal(rt.downloadFile))
	api.HandleFunc("GET /v1/documents/{id}/audit", requirePrincipal(rt.auditTrail))
	api.HandleFunc("POST /v1/documents/{id}/reprocess", requirePrincipal(rt.reprocess))
	api.HandleFunc("POST /v1/documents/{id}/reclassify", requirePrincipal(rt.reclassify))
	api.HandleFunc("POST /v1/documents/{id}/tags/{tag}", requirePrincipal(rt.addTag))
	api.HandleFunc("DELETE /v1/documents/{id}/tags/{tag}", requirePrincipal(rt.removeTag))
	api.HandleFunc("GET /v1/stats", requirePrincipal(rt.stats))
	api.HandleFunc("GET /v1/categories", requirePrincipal(rt.categories))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metricsHandler != nil {
		mux.Handle("GET /metrics", rt.metricsHandler)
	}
	// Event streams are long-lived and stay outside the in-flight gate.
	mux.HandleFunc("GET /v1/documents/{id}/events", requirePrincipal(rt.documentEvents))
	mux.Handle("/v1/", backpressureMiddleware(api, rt.maxInFlight, rt.backpressureWait))

	var handler http.Handler = rateLimitMiddleware(mux, rt.rateLimitRPS, rt.rateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.maxUploadBytes > 0 {
		if r.ContentLength > rt.maxUploadBytes {
			writeError(w, r, &http.MaxBytesError{Limit: rt.maxUploadBytes})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingest.Upload(
		r.Context(),
		principalFromContext(r.Context()),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) searchDocuments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := optionalInt(query.Get("page"), "page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	size, err := optionalInt(query.Get("size"), "size")
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := rt.reader.Search(
		r.Context(),
		principalFromContext(r.Context()),
		query.Get("q"),
		query.Get("category"),
		query.Get("status"),
		domain.PageRequest{Page: page, Size: size},
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.reader.Get(r.Context(), principalFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) downloadFile(w http.ResponseWriter, r *http.Request) {
	doc, body, err := rt.reader.Open(r.Context(), principalFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.OriginalName}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("document_download_interrupted", "document_id", doc.ID, "error", err)
	}
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := rt.manager.Delete(r.Context(), principalFromContext(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) auditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := rt.reader.AuditTrail(r.Context(), principalFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (rt *Router) reprocess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := rt.manager.TriggerRun(r.Context(), principalFromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"document_id": id, "message": "processing scheduled"})
}

func (rt *Router) reclassify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	doc, err := rt.manager.Reclassify(r.Context(), principalFromContext(r.Context()), r.PathValue("id"), req.Category)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) addTag(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.manager.AddTag(r.Context(), principalFromContext(r.Context()), r.PathValue("id"), r.PathValue("tag"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) removeTag(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.manager.RemoveTag(r.Context(), principalFromContext(r.Context()), r.PathValue("id"), r.PathValue("tag"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.reader.Stats(r.Context(), principalFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) categories(w http.ResponseWriter, r *http.Request) {
	cats, err := rt.reader.Categories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (rt *Router) documentEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// Resolves existence and ownership before any stream is opened.
	if _, err := rt.reader.Get(r.Context(), principalFromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	streamEvents(w, r, rt.stream, rt.stream.Subscribe(id), sseHeartbeatInterval)
}

func optionalInt(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse query", fmt.Errorf("%s must be an integer", name))
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
