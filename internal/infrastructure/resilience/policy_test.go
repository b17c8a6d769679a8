package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryForResolvesOperationOverrides(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		operation string
		want      RetryPolicy
	}{
		{
			operation: "nats.dispatch",
			want:      RetryPolicy{MaxAttempts: 3, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 400 * time.Millisecond, Multiplier: 2},
		},
		{
			operation: "nats.relay",
			want:      RetryPolicy{MaxAttempts: 1, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 400 * time.Millisecond, Multiplier: 2},
		},
		{
			operation: "minio.get",
			want:      RetryPolicy{MaxAttempts: 3, InitialBackoff: 200 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2},
		},
		{
			operation: "ollama.generate",
			want:      RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Second, MaxBackoff: 2 * time.Second, Multiplier: 2},
		},
	}
	for _, tc := range tests {
		t.Run(tc.operation, func(t *testing.T) {
			if got := cfg.retryFor(tc.operation); got != tc.want {
				t.Fatalf("retryFor(%q) = %+v, want %+v", tc.operation, got, tc.want)
			}
		})
	}
}

func TestRetryForKeepsMaxBackoffAboveInitial(t *testing.T) {
	cfg := Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		Operations:          map[string]RetryPolicy{"slow.call": {InitialBackoff: 5 * time.Millisecond}},
	}
	got := cfg.retryFor("slow.call")
	if got.MaxBackoff != 5*time.Millisecond {
		t.Fatalf("max backoff = %s", got.MaxBackoff)
	}
}

func TestExecuteUsesOperationAttempts(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
		Operations: map[string]RetryPolicy{
			"nats.relay": {MaxAttempts: 1},
			"minio.*":    {MaxAttempts: 5},
		},
	})

	errTemp := errors.New("temporary")
	retryable := func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	count := func(operation string) int {
		attempts := 0
		_ = exec.Execute(context.Background(), operation, func(context.Context) error {
			attempts++
			return errTemp
		}, retryable)
		return attempts
	}

	if got := count("nats.relay"); got != 1 {
		t.Fatalf("nats.relay attempts = %d, want 1", got)
	}
	if got := count("minio.remove"); got != 5 {
		t.Fatalf("minio.remove attempts = %d, want 5", got)
	}
	if got := count("nats.dispatch"); got != 3 {
		t.Fatalf("nats.dispatch attempts = %d, want 3", got)
	}
}
