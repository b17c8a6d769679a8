package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

func TestClassifyNATSError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{name: "no servers", err: fmt.Errorf("nats publish: %w", nats.ErrNoServers), retryable: true, record: true},
		{name: "timeout", err: nats.ErrTimeout, retryable: true, record: true},
		{name: "open circuit", err: gobreaker.ErrOpenState, retryable: true, record: true},
		{name: "canceled", err: context.Canceled},
		{name: "bad subject", err: nats.ErrBadSubject, record: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyNATSError(tc.err)
			if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
				t.Fatalf("classifyNATSError(%v) = %+v", tc.err, got)
			}
		})
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nats.ErrConnectionClosed); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", err)
	}
	permanent := errors.New("nats: invalid subject")
	if err := wrapTemporaryIfNeeded(permanent); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("permanent error must stay permanent, got %v", err)
	}
	if wrapTemporaryIfNeeded(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestEventRelaySubjectAndCodec(t *testing.T) {
	relay := NewEventRelay(&Queue{}, "documents.events.")
	if got := relay.Subject("doc-1"); got != "documents.events.doc-1" {
		t.Fatalf("subject = %q", got)
	}
	if got := NewEventRelay(&Queue{}, "").Subject("x"); got != "documents.events.x" {
		t.Fatalf("default subject = %q", got)
	}

	in := domain.PipelineEvent{
		DocumentID: "doc-1",
		Name:       domain.EventClassified,
		Payload:    "Classified as INVOICE",
		At:         time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	data, err := encodeEvent(in)
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	out, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if out != in {
		t.Fatalf("round trip = %+v", out)
	}
}
