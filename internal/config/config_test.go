package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("DISPATCH_BACKEND", "")
	t.Setenv("PIPELINE_WORKERS", "")
	t.Setenv("SSE_SUBSCRIPTION_TIMEOUT_SECONDS", "")
	t.Setenv("CLASSIFIER_BACKEND", "")

	cfg := Load()
	if cfg.StoreBackend != BackendPostgres {
		t.Fatalf("expected default store postgres, got %q", cfg.StoreBackend)
	}
	if cfg.DispatchBackend != BackendLocal {
		t.Fatalf("expected default dispatch local, got %q", cfg.DispatchBackend)
	}
	if cfg.PipelineWorkers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.PipelineWorkers)
	}
	if cfg.SubscriptionTimeout() != 10*time.Minute {
		t.Fatalf("expected 10m subscription timeout, got %s", cfg.SubscriptionTimeout())
	}
	if cfg.ClassifierBackend != BackendKeyword {
		t.Fatalf("expected keyword classifier, got %q", cfg.ClassifierBackend)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("PIPELINE_WORKERS", "9")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("RESILIENCE_RETRY_MAX_BACKOFF", "2s")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "5")
	t.Setenv("RESILIENCE_RETRY_MULTIPLIER", "1.5")

	cfg := Load()
	if cfg.StoreBackend != BackendMemory || cfg.PipelineWorkers != 9 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.APIRateLimitRPS != 2.5 || !cfg.MinIOUseSSL {
		t.Fatalf("unexpected rate/ssl: %v %v", cfg.APIRateLimitRPS, cfg.MinIOUseSSL)
	}
	if cfg.ResilienceRetryMaxBackoff != 2*time.Second || cfg.ShutdownTimeout() != 5*time.Second {
		t.Fatalf("unexpected durations: %s %s", cfg.ResilienceRetryMaxBackoff, cfg.ShutdownTimeout())
	}
	if cfg.ResilienceRetryMultiplier != 1.5 {
		t.Fatalf("unexpected retry multiplier: %v", cfg.ResilienceRetryMultiplier)
	}
}

func TestLoadFallsBackOnMalformedValues(t *testing.T) {
	t.Setenv("PIPELINE_WORKERS", "many")
	t.Setenv("API_RATE_LIMIT_RPS", "fast")
	t.Setenv("RESILIENCE_BREAKER_OPEN_TIMEOUT", "soon")
	t.Setenv("EVENT_RELAY_ENABLED", "maybe")

	cfg := Load()
	if cfg.PipelineWorkers != 4 || cfg.APIRateLimitRPS != 20 {
		t.Fatalf("expected fallbacks, got %d %v", cfg.PipelineWorkers, cfg.APIRateLimitRPS)
	}
	if cfg.ResilienceBreakerOpenTimeout != 30*time.Second || cfg.EventRelayEnabled {
		t.Fatalf("expected fallbacks, got %s %v", cfg.ResilienceBreakerOpenTimeout, cfg.EventRelayEnabled)
	}
}
