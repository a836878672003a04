package observability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/platform/envutil"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op so callers
// never branch on METRICS_ENABLED.
type Metrics struct {
	apiRequests  *CounterVec
	apiLatency   *HistogramVec
	apiInflight  *GaugeVec
	jobs         *CounterVec
	jobDuration  *HistogramVec
	documents    *CounterVec
	stageLatency *HistogramVec
	cacheOps     *CounterVec
	queueDepth   *GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool { return envutil.Bool("METRICS_ENABLED", false) }

// Init builds the process metrics when METRICS_ENABLED is set, nil otherwise.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("Metrics enabled")
		}
	})
	return instance
}

func Current() *Metrics { return instance }

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("sf_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec("sf_api_request_duration_seconds", "API request latency in seconds.",
			[]string{"method", "route"}, []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}),
		apiInflight: NewGaugeVec("sf_api_inflight_requests", "In-flight API requests.", nil),
		jobs:        NewCounterVec("sf_jobs_total", "Jobs reaching a terminal state by type/status.", []string{"job_type", "status"}),
		jobDuration: NewHistogramVec("sf_job_duration_seconds", "Job execution time in seconds.",
			[]string{"job_type", "status"}, []float64{1, 5, 15, 30, 60, 120, 300, 600}),
		documents: NewCounterVec("sf_pipeline_documents_total", "Documents passing or failing a pipeline stage.", []string{"stage", "outcome"}),
		stageLatency: NewHistogramVec("sf_pipeline_stage_duration_seconds", "Pipeline stage duration in seconds.",
			[]string{"stage"}, []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300}),
		cacheOps:   NewCounterVec("sf_dedup_operations_total", "Deduplication cache operations by op/outcome.", []string{"op", "outcome"}),
		queueDepth: NewGaugeVec("sf_job_queue_depth", "Jobs in job_run by status.", []string{"status"}),
	}
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflight(delta float64) {
	if m == nil {
		return
	}
	m.apiInflight.Add(delta)
}

func (m *Metrics) ObserveJob(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobs.Inc(jobType, status)
	m.jobDuration.Observe(dur.Seconds(), jobType, status)
}

// ObserveStage records one pipeline stage: ok documents passed, failed dropped out.
func (m *Metrics) ObserveStage(stage string, ok, failed int, dur time.Duration) {
	if m == nil {
		return
	}
	m.documents.Add(float64(ok), stage, "ok")
	m.documents.Add(float64(failed), stage, "failed")
	m.stageLatency.Observe(dur.Seconds(), stage)
}

func (m *Metrics) IncCache(op, outcome string) {
	if m == nil {
		return
	}
	m.cacheOps.Inc(op, outcome)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.jobs, m.jobDuration,
		m.documents, m.stageLatency,
		m.cacheOps, m.queueDepth,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

// StartJobQueueCollector samples job_run counts per status until ctx is done.
func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := envutil.Duration("METRICS_SCRAPE_INTERVAL", 15*time.Second)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.CollectJobQueue(ctx, db); err != nil && log != nil {
					log.Warn("metrics: job queue depth query failed", "error", err)
				}
			}
		}
	}()
}

func (m *Metrics) CollectJobQueue(ctx context.Context, db *gorm.DB) error {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).
		Model(&types.JobRun{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return err
	}
	for _, s := range []string{types.StatusQueued, types.StatusRunning, types.StatusFinished, types.StatusFailed} {
		m.queueDepth.Set(0, s)
	}
	for _, row := range rows {
		m.queueDepth.Set(float64(row.Count), strings.TrimSpace(row.Status))
	}
	return nil
}

// StatusLabel renders an HTTP status for the status label.
func StatusLabel(code int) string { return strconv.Itoa(code) }
