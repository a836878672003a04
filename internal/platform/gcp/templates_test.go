package gcp

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLocalTemplatePath(t *testing.T) {
	dir := filepath.Join("var", "templates")
	cases := []struct {
		prefix, object string
		want           string
		ok             bool
	}{
		{"templates", "templates/record.docx", filepath.Join(dir, "record.docx"), true},
		{"templates", "templates/2023_2024_sem_2/contract.docx", filepath.Join(dir, "2023_2024_sem_2", "contract.docx"), true},
		{"", "delivery.DOCX", filepath.Join(dir, "delivery.DOCX"), true},
		{"templates", "templates/readme.txt", "", false},
		{"templates", "templates/../../etc/x.docx", filepath.Join(dir, "etc", "x.docx"), true},
	}
	for _, tc := range cases {
		got, ok := localTemplatePath(dir, tc.prefix, tc.object)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("localTemplatePath(%q, %q) = %q,%v want %q,%v", tc.prefix, tc.object, got, ok, tc.want, tc.ok)
		}
	}
}

func TestUpToDate(t *testing.T) {
	p := filepath.Join(t.TempDir(), "t.docx")
	if upToDate(p, time.Now()) {
		t.Fatalf("missing file must not be up to date")
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !upToDate(p, time.Now().Add(-time.Hour)) {
		t.Fatalf("fresh local copy should be up to date")
	}
	if upToDate(p, time.Now().Add(time.Hour)) {
		t.Fatalf("newer remote object should trigger download")
	}
}

func TestNewTemplateSyncDisabledWithoutBucket(t *testing.T) {
	t.Setenv("TEMPLATES_GCS_BUCKET", "")
	s, err := NewTemplateSync(t.Context(), nil)
	if err != nil || s != nil {
		t.Fatalf("expected disabled sync, got %v %v", s, err)
	}
}
