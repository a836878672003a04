package logger

import "testing"

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"job_id", "abc", "drive_credentials", "{...}", "redis_url", "redis://:pw@host", "dangling"})
	if len(out) != 7 {
		t.Fatalf("expected 7 entries, got %d", len(out))
	}
	if out[1] != "abc" {
		t.Fatalf("job_id should pass through, got %v", out[1])
	}
	if out[3] != "[REDACTED]" || out[5] != "[REDACTED]" {
		t.Fatalf("expected secrets redacted, got %v", out)
	}
	if out[6] != "dangling" {
		t.Fatalf("odd trailing key must be kept, got %v", out[6])
	}
}

func TestNopLogger(t *testing.T) {
	l := Nop().With("component", "test")
	l.Info("ignored", "k", "v")
}
