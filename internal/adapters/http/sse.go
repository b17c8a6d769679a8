package httpadapter

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

const sseHeartbeatInterval = 15 * time.Second

// streamEvents relays a subscription as server-sent events until the subscription
// ends, the client goes away, or a write fails. The subscription is always released.
func streamEvents(w http.ResponseWriter, r *http.Request, stream ports.EventStream, sub ports.Subscription, heartbeat time.Duration) {
	defer stream.Unsubscribe(sub)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported by response writer"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case event, open := <-sub.Events():
			if !open {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Debug("sse_write_failed", "document_id", sub.DocumentID(), "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEEvent frames one event. Multi-line payloads become multiple data lines.
func writeSSEEvent(w io.Writer, event domain.PipelineEvent) error {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", event.Name)
	for _, line := range strings.Split(event.Payload, "\n") {
		fmt.Fprintf(&b, "data: %s\n", strings.TrimRight(line, "\r"))
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}
