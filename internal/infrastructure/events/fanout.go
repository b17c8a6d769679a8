package events

import (
	"context"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

// Fanout forwards each event to every publisher in order.
type Fanout struct {
	publishers []ports.EventPublisher
}

func NewFanout(publishers ...ports.EventPublisher) *Fanout {
	out := &Fanout{}
	for _, p := range publishers {
		if p != nil {
			out.publishers = append(out.publishers, p)
		}
	}
	return out
}

func (f *Fanout) Publish(ctx context.Context, event domain.PipelineEvent) {
	for _, p := range f.publishers {
		p.Publish(ctx, event)
	}
}
