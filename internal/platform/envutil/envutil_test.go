package envutil

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("JOB_TIMEOUT", "90s")
	if got := Duration("JOB_TIMEOUT", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
	t.Setenv("JOB_TIMEOUT", "120")
	if got := Duration("JOB_TIMEOUT", time.Minute); got != 2*time.Minute {
		t.Fatalf("expected 2m, got %v", got)
	}
	t.Setenv("JOB_TIMEOUT", "soon")
	if got := Duration("JOB_TIMEOUT", time.Minute); got != time.Minute {
		t.Fatalf("expected default, got %v", got)
	}
}

func TestIntAndBool(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "x")
	if got := Int("WORKER_CONCURRENCY", 4); got != 4 {
		t.Fatalf("expected default 4, got %d", got)
	}
	t.Setenv("OTEL_ENABLED", "on")
	if !Bool("OTEL_ENABLED", false) {
		t.Fatalf("expected true")
	}
}
