package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/catalog"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/resilience"
)

func fastExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
		BreakerEnabled:      false,
	})
}

func TestClassifierBuildsCatalogPrompt(t *testing.T) {
	var capturedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		capturedPrompt, _ = payload["prompt"].(string)
		_, _ = w.Write([]byte(`{"response":"Sure: {\"category\":\"invoice\",\"confidence\":0.92}"}`))
	}))
	defer server.Close()

	classifier := NewClassifier(New(server.URL, "gen", fastExecutor()), catalog.Default())
	cls, err := classifier.Classify(context.Background(), domain.Document{ExtractedText: "Amount due: 40 EUR"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if cls.Category != "INVOICE" || cls.Confidence != 0.92 {
		t.Fatalf("Classify() = %+v", cls)
	}
	if !strings.Contains(capturedPrompt, "Amount due: 40 EUR") || !strings.Contains(capturedPrompt, "- CONTRACT") {
		t.Fatalf("unexpected prompt: %s", capturedPrompt)
	}
}

func TestClassifierMapsUnknownCategoryToDefault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"{\"category\":\"poetry\",\"confidence\":0.4}"}`))
	}))
	defer server.Close()

	cls, err := NewClassifier(New(server.URL, "gen", nil), catalog.Default()).
		Classify(context.Background(), domain.Document{ExtractedText: "roses are red"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if cls.Category != "OTHER" {
		t.Fatalf("Category = %q", cls.Category)
	}
}

func TestClassifierRetriesUnavailableModel(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"response":"{\"category\":\"REPORT\",\"confidence\":0.7}"}`))
	}))
	defer server.Close()

	cls, err := NewClassifier(New(server.URL, "gen", fastExecutor()), catalog.Default()).
		Classify(context.Background(), domain.Document{ExtractedText: "quarterly findings"})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if cls.Category != "REPORT" || calls.Load() != 2 {
		t.Fatalf("Classify() = %+v after %d calls", cls, calls.Load())
	}
}

func TestGenerateIncludesHTTPBodyInError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewClassifier(New(server.URL, "gen", fastExecutor()), catalog.Default()).
		Classify(context.Background(), domain.Document{ExtractedText: "hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("404 must not be temporary: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("404 retried %d times", calls.Load())
	}
}

func TestWrapTemporaryForRetryableStatus(t *testing.T) {
	err := wrapTemporaryIfNeeded("ollama generate", &HTTPStatusError{Operation: "generate", StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", err)
	}
}
