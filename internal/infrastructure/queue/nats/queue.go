package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/resilience"
)

const defaultQueueGroup = "pipeline-workers"

// Queue publishes run requests on a subject and consumes them through a queue group,
// so each request is handled by exactly one connected instance.
type Queue struct {
	conn     *nats.Conn
	subject  string
	group    string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ClientName           string
	QueueGroup           string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, errors.New("nats subject is required")
	}
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	name := options.ClientName
	if name == "" {
		name = "document-pipeline"
	}
	group := options.QueueGroup
	if group == "" {
		group = defaultQueueGroup
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		group:    group,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Dispatch publishes a run request and returns once the message is handed to the client.
func (q *Queue) Dispatch(ctx context.Context, documentID string) error {
	return q.publish(ctx, "nats.dispatch", q.subject, []byte(documentID))
}

// Consume hands every received run request to local until ctx ends, then drains the subscription.
func (q *Queue) Consume(ctx context.Context, local ports.RunDispatcher) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.group, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		documentID := strings.TrimSpace(string(msg.Data))
		if documentID == "" {
			q.logger.Warn("nats_empty_run_request", "subject", msg.Subject)
			return
		}
		if err := local.Dispatch(ctx, documentID); err != nil {
			q.logger.Error("nats_run_handoff_failed", "document_id", documentID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	q.logger.Info("nats_consumer_started", "subject", q.subject, "queue_group", q.group)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) publish(ctx context.Context, operation, subject string, data []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// EventRelay republishes pipeline events as JSON on <prefix>.<document id>.
type EventRelay struct {
	queue  *Queue
	prefix string
}

func NewEventRelay(queue *Queue, prefix string) *EventRelay {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "documents.events"
	}
	return &EventRelay{queue: queue, prefix: prefix}
}

func (r *EventRelay) Subject(documentID string) string {
	return r.prefix + "." + documentID
}

// Publish is best-effort; failures are logged and never reach the pipeline.
func (r *EventRelay) Publish(ctx context.Context, event domain.PipelineEvent) {
	data, err := encodeEvent(event)
	if err != nil {
		r.queue.logger.Warn("nats_event_encode_failed", "document_id", event.DocumentID, "error", err)
		return
	}
	if err := r.queue.publish(ctx, "nats.relay", r.Subject(event.DocumentID), data); err != nil {
		r.queue.logger.Warn("nats_event_relay_failed",
			"document_id", event.DocumentID,
			"event", string(event.Name),
			"error", err,
		)
	}
}
