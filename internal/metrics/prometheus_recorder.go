package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "assetbuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	taskDuration    *prom.HistogramVec
	taskResults     *prom.CounterVec
	stepDuration    *prom.HistogramVec
	filesWritten    *prom.CounterVec
	transformErrors *prom.CounterVec
	watchEvents     *prom.CounterVec
	reloadClients   prom.Gauge
}

// NewPrometheusRecorder constructs the metrics and registers them with reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		taskDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of task runs",
			Buckets:   prom.DefBuckets,
		}, []string{"task"}),
		taskResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "task_results_total",
			Help:      "Task run counts by outcome",
		}, []string{"task", "result"}),
		stepDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of individual transform steps",
			Buckets:   prom.DefBuckets,
		}, []string{"step"}),
		filesWritten: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "files_written_total",
			Help:      "Files written to destinations",
		}, []string{"task"}),
		transformErrors: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Files dropped by a failing transform step",
		}, []string{"step"}),
		watchEvents: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "watch_events_total",
			Help:      "File change events dispatched to tasks",
		}, []string{"task"}),
		reloadClients: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "livereload_clients",
			Help:      "Connected live reload clients",
		}),
	}
	reg.MustRegister(pr.taskDuration, pr.taskResults, pr.stepDuration, pr.filesWritten,
		pr.transformErrors, pr.watchEvents, pr.reloadClients)
	return pr
}

func (p *PrometheusRecorder) ObserveTaskDuration(task string, d time.Duration) {
	if p == nil {
		return
	}
	p.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(task string, result ResultLabel) {
	if p == nil {
		return
	}
	p.taskResults.WithLabelValues(task, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveStepDuration(step string, d time.Duration) {
	if p == nil {
		return
	}
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddFilesWritten(task string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.filesWritten.WithLabelValues(task).Add(float64(n))
}

func (p *PrometheusRecorder) IncTransformErrors(step string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.transformErrors.WithLabelValues(step).Add(float64(n))
}

func (p *PrometheusRecorder) IncWatchEvents(task string) {
	if p == nil {
		return
	}
	p.watchEvents.WithLabelValues(task).Inc()
}

func (p *PrometheusRecorder) SetLiveReloadClients(n int) {
	if p == nil {
		return
	}
	p.reloadClients.Set(float64(n))
}
