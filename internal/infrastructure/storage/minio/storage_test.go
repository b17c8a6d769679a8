package minio

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestClassifyMinIOError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "network", err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}, retryable: true},
		{name: "server error", err: minio.ErrorResponse{StatusCode: 503, Code: "SlowDown"}, retryable: true},
		{name: "throttled", err: minio.ErrorResponse{StatusCode: 429}, retryable: true},
		{name: "missing key", err: minio.ErrorResponse{StatusCode: 404, Code: "NoSuchKey"}},
		{name: "canceled", err: context.Canceled},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyMinIOError(tc.err); got.Retryable != tc.retryable {
				t.Fatalf("classifyMinIOError(%v).Retryable = %v, want %v", tc.err, got.Retryable, tc.retryable)
			}
		})
	}
}

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{Bucket: "docs"}, nil); err == nil {
		t.Fatal("expected error without endpoint")
	}
	if _, err := New(context.Background(), Config{Endpoint: "localhost:9000"}, nil); err == nil {
		t.Fatal("expected error without bucket")
	}
}
