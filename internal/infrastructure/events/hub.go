package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

const (
	ReasonCompleted = "completed"
	ReasonTimeout   = "timeout"
	ReasonReplaced  = "replaced"
	ReasonSlow      = "slow_consumer"
	ReasonClosed    = "unsubscribed"
	ReasonShutdown  = "shutdown"
)

const defaultBuffer = 16

// SubscriptionObserver is notified when subscriptions open and close.
type SubscriptionObserver interface {
	SubscriptionOpened()
	SubscriptionClosed(reason string)
}

type HubOptions struct {
	// Buffer is the per-subscription event buffer. A full buffer ends the subscription.
	Buffer int
	// Timeout ends a subscription after the given duration. Zero disables it.
	Timeout  time.Duration
	Logger   *slog.Logger
	Observer SubscriptionObserver
}

// Hub keeps at most one live subscription per document and delivers pipeline events to it.
// Events published while nobody is subscribed are dropped.
type Hub struct {
	mu       sync.Mutex
	subs     map[string]*subscription
	closed   bool
	buffer   int
	timeout  time.Duration
	logger   *slog.Logger
	observer SubscriptionObserver
}

func NewHub(opts HubOptions) *Hub {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	return &Hub{
		subs:     make(map[string]*subscription),
		buffer:   opts.Buffer,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		observer: opts.Observer,
	}
}

// Subscribe registers a subscription for documentID, replacing any earlier one.
func (h *Hub) Subscribe(documentID string) ports.Subscription {
	sub := &subscription{
		id:         uuid.NewString(),
		documentID: documentID,
		events:     make(chan domain.PipelineEvent, h.buffer),
		done:       make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.finish()
		return sub
	}
	previous := h.subs[documentID]
	h.subs[documentID] = sub
	if h.timeout > 0 {
		sub.timer = time.AfterFunc(h.timeout, func() { h.remove(sub, ReasonTimeout) })
	}
	h.mu.Unlock()

	h.observer.SubscriptionOpened()
	if previous != nil && previous.finish() {
		h.closedWith(previous, ReasonReplaced)
	}
	h.logger.Debug("event_subscription_opened", "document_id", documentID, "subscription_id", sub.id)
	return sub
}

// Unsubscribe ends sub. It is a no-op for subscriptions that already ended.
func (h *Hub) Unsubscribe(sub ports.Subscription) {
	s, ok := sub.(*subscription)
	if !ok || s == nil {
		return
	}
	h.remove(s, ReasonClosed)
}

// Publish delivers event to the current subscriber of its document without blocking.
// A terminal event ends the subscription once it is queued.
func (h *Hub) Publish(_ context.Context, event domain.PipelineEvent) {
	h.mu.Lock()
	sub := h.subs[event.DocumentID]
	h.mu.Unlock()
	if sub == nil {
		return
	}

	delivered, open := sub.offer(event)
	switch {
	case !open:
		return
	case !delivered:
		h.logger.Warn("event_subscriber_too_slow",
			"document_id", event.DocumentID,
			"subscription_id", sub.id,
			"event", string(event.Name),
		)
		h.remove(sub, ReasonSlow)
	case event.Name.Terminal():
		h.remove(sub, ReasonCompleted)
	}
}

// Active returns the number of registered subscriptions.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Later subscriptions end immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[string]*subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		if sub.finish() {
			h.closedWith(sub, ReasonShutdown)
		}
	}
}

func (h *Hub) remove(sub *subscription, reason string) {
	h.mu.Lock()
	if current, ok := h.subs[sub.documentID]; ok && current == sub {
		delete(h.subs, sub.documentID)
	}
	h.mu.Unlock()

	if sub.finish() {
		h.closedWith(sub, reason)
	}
}

func (h *Hub) closedWith(sub *subscription, reason string) {
	h.observer.SubscriptionClosed(reason)
	h.logger.Debug("event_subscription_closed",
		"document_id", sub.documentID,
		"subscription_id", sub.id,
		"reason", reason,
	)
}

type subscription struct {
	id         string
	documentID string
	events     chan domain.PipelineEvent
	done       chan struct{}
	timer      *time.Timer

	mu     sync.Mutex
	closed bool
}

func (s *subscription) DocumentID() string { return s.documentID }

// Events is closed when the subscription ends; buffered events can still be drained.
func (s *subscription) Events() <-chan domain.PipelineEvent { return s.events }

func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) offer(event domain.PipelineEvent) (delivered bool, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}
	select {
	case s.events <- event:
		return true, true
	default:
		return false, true
	}
}

// finish reports whether this call ended the subscription.
func (s *subscription) finish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	close(s.events)
	close(s.done)
	return true
}

type noopObserver struct{}

func (noopObserver) SubscriptionOpened() {}

func (noopObserver) SubscriptionClosed(string) {}
