package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/schoolfood/backoffice/internal/docgen"
	"github.com/schoolfood/backoffice/internal/domain/documents"
	"github.com/schoolfood/backoffice/internal/observability"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

type testSpec struct {
	name      string
	failNew   bool
	failBuild bool
}

func (testSpec) Kind() docgen.Kind                              { return docgen.KindRecord }
func (testSpec) Layout(*docgen.Catalog) (docgen.Layout, error) { return docgen.Layout{}, nil }
func (testSpec) Fields() docgen.Fields                          { return docgen.NewFields(nil) }

type testBuilder struct {
	dir  string
	spec testSpec
}

func (b testBuilder) Build() (documents.Artifact, error) {
	if b.spec.failBuild {
		return documents.Artifact{}, errors.New("template broken")
	}
	p := filepath.Join(b.dir, b.spec.name+".docx")
	if err := os.WriteFile(p, []byte("docx"), 0o644); err != nil {
		return documents.Artifact{}, err
	}
	return documents.New(p, documents.MimeDocx, "parent"), nil
}

type testFactory struct{ dir string }

func (f testFactory) New(_ context.Context, spec docgen.Spec) (docgen.Builder, error) {
	s := spec.(testSpec)
	if s.failNew {
		return nil, fmt.Errorf("%w: remote down", docgen.ErrDirectoryCreation)
	}
	return testBuilder{dir: f.dir, spec: s}, nil
}

// fakeStorage tracks in-flight calls so tests can check the width bound.
type fakeStorage struct {
	mu          sync.Mutex
	seq         int
	inFlight    atomic.Int32
	peak        atomic.Int32
	uploads     atomic.Int32
	failUpload  map[string]bool
	failConvert map[string]bool
	delay       time.Duration
}

func (s *fakeStorage) enter() func() {
	n := s.inFlight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(s.delay)
	return func() { s.inFlight.Add(-1) }
}

func (s *fakeStorage) Upload(_ context.Context, a documents.Artifact) (documents.Artifact, error) {
	defer s.enter()()
	s.uploads.Add(1)
	if s.failUpload[filepath.Base(a.Name)] {
		return documents.Artifact{}, errors.New("upload failed")
	}
	if _, err := os.Stat(a.Path()); err != nil {
		return documents.Artifact{}, err
	}
	s.mu.Lock()
	s.seq++
	id := fmt.Sprintf("id-%d", s.seq)
	s.mu.Unlock()
	return a.WithRemote(id, "https://drive/"+id), nil
}

func (s *fakeStorage) ConvertToPDF(_ context.Context, remoteID string) ([]byte, error) {
	defer s.enter()()
	if s.failConvert[remoteID] {
		return nil, errors.New("export failed")
	}
	return []byte("%PDF " + remoteID), nil
}

type fakeCache struct {
	mu   sync.Mutex
	puts [][]documents.Artifact
}

func (c *fakeCache) Put(_ context.Context, a []documents.Artifact) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts = append(c.puts, append([]documents.Artifact(nil), a...))
	return len(a)
}

type recordingProgress struct {
	mu       sync.Mutex
	expected int
	finished int
	percents []int
}

func (p *recordingProgress) AddExpected(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expected += n
}

func (p *recordingProgress) AddFinished(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = min(p.finished+n, p.expected)
	pct := 0
	if p.expected > 0 {
		pct = p.finished * 100 / p.expected
	}
	p.percents = append(p.percents, pct)
}

func newOrchestrator(t *testing.T, st *fakeStorage, cache *fakeCache) *Orchestrator {
	t.Helper()
	return New(testFactory{dir: t.TempDir()}, st, cache, logger.Nop(), WithTempRoot(t.TempDir()))
}

func specs(n int) []docgen.Spec {
	out := make([]docgen.Spec, n)
	for i := range out {
		out[i] = testSpec{name: fmt.Sprintf("doc-%02d", i)}
	}
	return out
}

func TestRunSingleSpec(t *testing.T) {
	st := &fakeStorage{}
	cache := &fakeCache{}
	progress := &recordingProgress{}

	res, err := newOrchestrator(t, st, cache).Run(context.Background(), specs(1), progress)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if progress.expected != 4 {
		t.Fatalf("expected 4 units, got %d", progress.expected)
	}
	if got := fmt.Sprint(progress.percents); got != "[25 50 75 100]" {
		t.Fatalf("unexpected progress trail: %s", got)
	}
	all := res.All()
	if len(all) != 2 {
		t.Fatalf("expected docx+pdf, got %d", len(all))
	}
	if all[0].MimeType != documents.MimeDocx || all[1].MimeType != documents.MimePDF {
		t.Fatalf("docx must come before pdf: %+v", all)
	}
	if all[1].Name != strings.TrimSuffix(all[0].Name, ".docx")+".pdf" || all[1].ParentFolderID != "parent" {
		t.Fatalf("pdf must keep logical name and parent: %+v", all[1])
	}
	for _, a := range all {
		if !a.Uploaded() {
			t.Fatalf("result contains artifact without remote id: %+v", a)
		}
	}
	if len(cache.puts) != 2 || cache.puts[0][0].MimeType != documents.MimeDocx || cache.puts[1][0].MimeType != documents.MimePDF {
		t.Fatalf("cache must be updated after both upload stages: %+v", cache.puts)
	}
}

func TestRunDropsFailedConstructor(t *testing.T) {
	st := &fakeStorage{}
	progress := &recordingProgress{}

	res, err := newOrchestrator(t, st, &fakeCache{}).Run(context.Background(), []docgen.Spec{testSpec{name: "x", failNew: true}}, progress)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.All()) != 0 || progress.expected != 0 || progress.finished != 0 {
		t.Fatalf("expected empty run, got %d artifacts, %d/%d", len(res.All()), progress.finished, progress.expected)
	}
	if st.uploads.Load() != 0 {
		t.Fatalf("nothing should be uploaded")
	}
}

func TestRunChunksUploadsByThirty(t *testing.T) {
	st := &fakeStorage{delay: 5 * time.Millisecond}
	progress := &recordingProgress{}

	res, err := newOrchestrator(t, st, &fakeCache{}).Run(context.Background(), specs(45), progress)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak := st.peak.Load(); peak > DefaultWidth {
		t.Fatalf("more than %d calls in flight: %d", DefaultWidth, peak)
	}
	if len(res.Docx) != 45 || len(res.PDF) != 45 {
		t.Fatalf("expected 45+45 artifacts, got %d+%d", len(res.Docx), len(res.PDF))
	}
	if progress.expected != 180 || progress.finished != 180 {
		t.Fatalf("unexpected counters %d/%d", progress.finished, progress.expected)
	}
}

func TestRunChunkedGroupsAreSequential(t *testing.T) {
	var (
		mu     sync.Mutex
		active int
		peak   int
		order  []int
	)
	items := make([]int, 45)
	for i := range items {
		items[i] = i
	}
	out := runChunked(context.Background(), 30, items, func(_ context.Context, v int) (int, error) {
		mu.Lock()
		active++
		peak = max(peak, active)
		order = append(order, v)
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return v, nil
	}, logger.Nop())

	if len(out) != 45 || peak > 30 {
		t.Fatalf("len=%d peak=%d", len(out), peak)
	}
	for i, v := range order {
		if i < 30 && v >= 30 {
			t.Fatalf("second chunk started before the first finished: %v", order)
		}
	}
	for i, v := range out {
		if v != i {
			t.Fatalf("survivor order not preserved: %v", out)
		}
	}
}

func TestRunPerItemFailuresDropOut(t *testing.T) {
	st := &fakeStorage{
		failUpload:  map[string]bool{"doc-01.docx": true},
		failConvert: map[string]bool{},
	}
	in := append(specs(3), testSpec{name: "broken", failBuild: true})
	progress := &recordingProgress{}
	o := newOrchestrator(t, st, &fakeCache{})

	// doc-00 and doc-02 get id-1 and id-2; one of them fails conversion.
	st.failConvert["id-1"] = true
	res, err := o.Run(context.Background(), in, progress)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if progress.expected != 16 {
		t.Fatalf("expected 4 builders x 4, got %d", progress.expected)
	}
	if len(res.Docx) != 2 || len(res.PDF) != 1 {
		t.Fatalf("expected 2 docx and 1 pdf, got %d/%d", len(res.Docx), len(res.PDF))
	}
	if progress.finished != 3+2+1+1 {
		t.Fatalf("unexpected finished count %d", progress.finished)
	}
	if progress.finished > progress.expected {
		t.Fatalf("finished exceeds expected")
	}
	prev := -1
	for _, p := range progress.percents {
		if p < prev {
			t.Fatalf("progress went backwards: %v", progress.percents)
		}
		prev = p
	}
}

func TestRunRecordsStageMetrics(t *testing.T) {
	st := &fakeStorage{failUpload: map[string]bool{"doc-01.docx": true}}
	m := observability.NewMetrics()
	o := New(testFactory{dir: t.TempDir()}, st, &fakeCache{}, logger.Nop(), WithTempRoot(t.TempDir()), WithMetrics(m))

	if _, err := o.Run(context.Background(), specs(2), &recordingProgress{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`sf_pipeline_documents_total{stage="generate",outcome="ok"} 2`,
		`sf_pipeline_documents_total{stage="upload_docx",outcome="failed"} 1`,
		`sf_pipeline_documents_total{stage="upload_pdf",outcome="ok"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
