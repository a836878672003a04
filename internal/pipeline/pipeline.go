// Package pipeline runs a batch of document specs through generation,
// upload, remote PDF conversion and PDF upload.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/schoolfood/backoffice/internal/docgen"
	"github.com/schoolfood/backoffice/internal/domain/documents"
	"github.com/schoolfood/backoffice/internal/observability"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

// StagesPerDocument is the number of progress units one document contributes:
// generate, upload, convert, upload pdf.
const StagesPerDocument = 4

// DefaultWidth bounds concurrent remote calls.
const DefaultWidth = 30

type Factory interface {
	New(ctx context.Context, spec docgen.Spec) (docgen.Builder, error)
}

type Storage interface {
	Upload(ctx context.Context, a documents.Artifact) (documents.Artifact, error)
	ConvertToPDF(ctx context.Context, remoteID string) ([]byte, error)
}

type Cache interface {
	Put(ctx context.Context, artifacts []documents.Artifact) int
}

// Progress receives stage counts. Implementations must be safe for
// concurrent use.
type Progress interface {
	AddExpected(n int)
	AddFinished(n int)
}

type Result struct {
	Docx []documents.Artifact
	PDF  []documents.Artifact
}

// All lists uploaded docx artifacts followed by uploaded pdf artifacts.
func (r Result) All() []documents.Artifact {
	out := make([]documents.Artifact, 0, len(r.Docx)+len(r.PDF))
	out = append(out, r.Docx...)
	return append(out, r.PDF...)
}

type Orchestrator struct {
	factory Factory
	storage Storage
	cache   Cache
	width   int
	tmpRoot string
	log     *logger.Logger
	tracer  trace.Tracer
	metrics *observability.Metrics
}

type Option func(*Orchestrator)

func WithWidth(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.width = n
		}
	}
}

// WithMetrics records per-stage document counts and latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTempRoot sets where per-run PDF directories are created.
func WithTempRoot(dir string) Option {
	return func(o *Orchestrator) { o.tmpRoot = dir }
}

func New(factory Factory, storage Storage, cache Cache, log *logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		factory: factory,
		storage: storage,
		cache:   cache,
		width:   DefaultWidth,
		log:     log.With("service", "PipelineOrchestrator"),
		tracer:  otel.Tracer("github.com/schoolfood/backoffice/internal/pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the four stages. Per-document failures are logged and the
// document drops out of later stages; Run itself only fails when ctx is done
// or the run's temp directory cannot be created.
func (o *Orchestrator) Run(ctx context.Context, specs []docgen.Spec, progress Progress) (Result, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.Int("specs", len(specs))))
	defer span.End()

	docx := o.generate(ctx, specs, progress)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	uploaded := o.upload(ctx, "pipeline.upload_docx", docx)
	o.putCache(ctx, uploaded)
	progress.AddFinished(len(uploaded))
	if err := ctx.Err(); err != nil {
		return Result{Docx: uploaded}, err
	}

	tmpDir, err := os.MkdirTemp(o.tmpRoot, "pdf-*")
	if err != nil {
		return Result{Docx: uploaded}, fmt.Errorf("create pdf dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfs := o.convert(ctx, tmpDir, uploaded)
	progress.AddFinished(len(pdfs))
	if err := ctx.Err(); err != nil {
		return Result{Docx: uploaded}, err
	}

	uploadedPDF := o.upload(ctx, "pipeline.upload_pdf", pdfs)
	o.putCache(ctx, uploadedPDF)
	progress.AddFinished(len(uploadedPDF))

	res := Result{Docx: uploaded, PDF: uploadedPDF}
	span.SetAttributes(attribute.Int("docx", len(res.Docx)), attribute.Int("pdf", len(res.PDF)))
	o.log.Info("Pipeline finished", "specs", len(specs), "docx", len(res.Docx), "pdf", len(res.PDF))
	return res, ctx.Err()
}

func (o *Orchestrator) generate(ctx context.Context, specs []docgen.Spec, progress Progress) []documents.Artifact {
	ctx, span := o.tracer.Start(ctx, "pipeline.generate")
	defer span.End()
	start := time.Now()

	builders := make([]docgen.Builder, 0, len(specs))
	for _, spec := range specs {
		b, err := o.factory.New(ctx, spec)
		if err != nil {
			o.log.Warn("Document generator not created", "kind", spec.Kind(), "error", err)
			continue
		}
		builders = append(builders, b)
	}
	progress.AddExpected(StagesPerDocument * len(builders))

	results := make([]*documents.Artifact, len(builders))
	var wg sync.WaitGroup
	for i, b := range builders {
		wg.Add(1)
		go func(i int, b docgen.Builder) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					o.log.Error("Document build panicked", "panic", r)
				}
			}()
			a, err := b.Build()
			if err != nil {
				o.log.Warn("Document not generated", "error", err)
				return
			}
			results[i] = &a
		}(i, b)
	}
	wg.Wait()

	out := compact(results)
	progress.AddFinished(len(out))
	o.metrics.ObserveStage("generate", len(out), len(specs)-len(out), time.Since(start))
	span.SetAttributes(attribute.Int("builders", len(builders)), attribute.Int("generated", len(out)))
	return out
}

func (o *Orchestrator) upload(ctx context.Context, stage string, in []documents.Artifact) []documents.Artifact {
	ctx, span := o.tracer.Start(ctx, stage, trace.WithAttributes(attribute.Int("input", len(in))))
	defer span.End()
	start := time.Now()

	out := runChunked(ctx, o.width, in, func(ctx context.Context, a documents.Artifact) (documents.Artifact, error) {
		up, err := o.storage.Upload(ctx, a)
		if err != nil {
			return documents.Artifact{}, err
		}
		if !up.Uploaded() {
			return documents.Artifact{}, fmt.Errorf("upload %s returned no remote id", a.Name)
		}
		o.log.Info("File uploaded", "name", up.Name, "id", up.RemoteID, "parent_id", up.ParentFolderID)
		return up, nil
	}, o.log.With("stage", stage))
	span.SetAttributes(attribute.Int("output", len(out)))
	o.metrics.ObserveStage(strings.TrimPrefix(stage, "pipeline."), len(out), len(in)-len(out), time.Since(start))
	return out
}

func (o *Orchestrator) convert(ctx context.Context, dir string, in []documents.Artifact) []documents.Artifact {
	ctx, span := o.tracer.Start(ctx, "pipeline.convert", trace.WithAttributes(attribute.Int("input", len(in))))
	defer span.End()
	start := time.Now()

	out := runChunked(ctx, o.width, in, func(ctx context.Context, a documents.Artifact) (documents.Artifact, error) {
		body, err := o.storage.ConvertToPDF(ctx, a.RemoteID)
		if err != nil {
			return documents.Artifact{}, err
		}
		if len(body) == 0 {
			return documents.Artifact{}, fmt.Errorf("empty pdf export for %s", a.Name)
		}
		local := filepath.Join(dir, a.RemoteID+"_"+filepath.Base(a.PDFName()))
		if err := os.WriteFile(local, body, 0o644); err != nil {
			return documents.Artifact{}, fmt.Errorf("write %s: %w", local, err)
		}
		return a.AsPDF(local), nil
	}, o.log.With("stage", "pipeline.convert"))
	span.SetAttributes(attribute.Int("output", len(out)))
	o.metrics.ObserveStage("convert", len(out), len(in)-len(out), time.Since(start))
	return out
}

func (o *Orchestrator) putCache(ctx context.Context, artifacts []documents.Artifact) {
	if o.cache == nil || len(artifacts) == 0 {
		return
	}
	o.cache.Put(ctx, artifacts)
}

// runChunked applies fn to items in groups of at most width. Groups run one
// after another; items inside a group run concurrently. Failed items are
// logged and left out; the order of the survivors is preserved.
func runChunked[T, R any](ctx context.Context, width int, items []T, fn func(context.Context, T) (R, error), log *logger.Logger) []R {
	if width <= 0 {
		width = DefaultWidth
	}
	results := make([]*R, len(items))
	for start := 0; start < len(items); start += width {
		if ctx.Err() != nil {
			break
		}
		end := min(start+width, len(items))
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				defer func() {
					if r := recover(); r != nil {
						log.Error("Pipeline item panicked", "index", i, "panic", r)
					}
				}()
				r, err := fn(ctx, items[i])
				if err != nil {
					log.Warn("Pipeline item failed", "index", i, "error", err)
					return nil
				}
				results[i] = &r
				return nil
			})
		}
		_ = g.Wait()
	}
	return compact(results)
}

func compact[T any](in []*T) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}
