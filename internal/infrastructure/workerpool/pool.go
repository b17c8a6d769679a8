package workerpool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Pool runs pipeline runs in the background, at most `workers` at a time.
// Dispatch never waits for a run; runs do not inherit the caller's context.
type Pool struct {
	processor ports.DocumentProcessor
	sem       *semaphore.Weighted
	logger    *slog.Logger

	// queue bounds waiting for a slot; started runs use a context that is never cancelled.
	queue  context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	observeWait func(time.Duration)
}

type Option func(*Pool)

// WithWaitObserver reports how long each run waited for a free slot.
func WithWaitObserver(fn func(time.Duration)) Option {
	return func(p *Pool) {
		p.observeWait = fn
	}
}

func New(processor ports.DocumentProcessor, workers int, logger *slog.Logger, opts ...Option) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	queue, cancel := context.WithCancel(context.Background())
	p := &Pool{
		processor: processor,
		sem:       semaphore.NewWeighted(int64(workers)),
		logger:    logger,
		queue:     queue,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) Dispatch(_ context.Context, documentID string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return domain.WrapError(domain.ErrTemporary, "dispatch", ErrPoolClosed)
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(documentID)
	return nil
}

func (p *Pool) run(documentID string) {
	defer p.wg.Done()

	queued := time.Now()
	if err := p.sem.Acquire(p.queue, 1); err != nil {
		p.logger.Warn("pipeline_run_not_started", "document_id", documentID, "error", err)
		return
	}
	defer p.sem.Release(1)
	if p.observeWait != nil {
		p.observeWait(time.Since(queued))
	}

	if err := p.processor.ProcessByID(context.Background(), documentID); err != nil {
		if domain.IsKind(err, domain.ErrRunInProgress) {
			p.logger.Info("pipeline_run_skipped", "document_id", documentID, "reason", "run in progress")
			return
		}
		p.logger.Error("pipeline_run_failed", "document_id", documentID, "error", err)
	}
}

// Close stops accepting runs and waits for started ones until ctx ends.
// Runs still queued for a slot when ctx ends are abandoned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
