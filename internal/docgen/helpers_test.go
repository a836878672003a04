package docgen

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/schoolfood/backoffice/internal/domain/records"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
	"github.com/schoolfood/backoffice/internal/platform/gdrive"
)

// fakeDrive keeps a folder tree in memory.
type fakeDrive struct {
	mu       sync.Mutex
	children map[string][]gdrive.File
	created  int
	searches int
	fail     error
}

func newFakeDrive() *fakeDrive { return &fakeDrive{children: map[string][]gdrive.File{}} }

func (d *fakeDrive) Search(_ context.Context, parentID string) ([]gdrive.File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.searches++
	if d.fail != nil {
		return nil, d.fail
	}
	return append([]gdrive.File(nil), d.children[parentID]...), nil
}

func (d *fakeDrive) CreateDirectory(_ context.Context, parentID, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return "", d.fail
	}
	d.created++
	id := fmt.Sprintf("dir-%d", d.created)
	d.children[parentID] = append(d.children[parentID], gdrive.File{ID: id, Name: name})
	return id, nil
}

type fakeTree struct {
	mu   sync.Mutex
	rows map[string]records.DirectoryTree
}

func newFakeTree() *fakeTree { return &fakeTree{rows: map[string]records.DirectoryTree{}} }

func (t *fakeTree) GetByPath(_ dbctx.Context, p string) (*records.DirectoryTree, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[p]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (t *fakeTree) Upsert(_ dbctx.Context, row *records.DirectoryTree) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[row.Path] = *row
	return nil
}

var errDriveDown = errors.New("drive down")

// writeTemplate stores a minimal .docx declaring the given merge fields.
func writeTemplate(t *testing.T, p string, fields ...string) {
	t.Helper()
	var body strings.Builder
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, f := range fields {
		fmt.Fprintf(&body, `<w:p><w:fldSimple w:instr=" MERGEFIELD %s "><w:r><w:t>«%s»</w:t></w:r></w:fldSimple></w:p>`, f, f)
	}
	body.WriteString(`</w:body></w:document>`)

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	if _, err := w.Write([]byte(body.String())); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func readDocument(t *testing.T, p string) string {
	t.Helper()
	zr, err := zip.OpenReader(p)
	if err != nil {
		t.Fatalf("open %s: %v", p, err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open part: %v", err)
		}
		defer rc.Close()
		raw, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read part: %v", err)
		}
		return string(raw)
	}
	t.Fatalf("document part missing")
	return ""
}

func dbcOf(ctx context.Context) dbctx.Context { return dbctx.Context{Ctx: ctx} }
