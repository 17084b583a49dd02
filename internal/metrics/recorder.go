package metrics

import "time"

// ResultLabel enumerates task run outcomes for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for task and step metrics.
type Recorder interface {
	ObserveTaskDuration(task string, d time.Duration)
	IncTaskResult(task string, result ResultLabel)
	ObserveStepDuration(step string, d time.Duration)
	AddFilesWritten(task string, n int)
	IncTransformErrors(step string, n int)
	IncWatchEvents(task string)
	SetLiveReloadClients(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration) {}
func (NoopRecorder) IncTaskResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveStepDuration(string, time.Duration) {}
func (NoopRecorder) AddFilesWritten(string, int)               {}
func (NoopRecorder) IncTransformErrors(string, int)            {}
func (NoopRecorder) IncWatchEvents(string)                     {}
func (NoopRecorder) SetLiveReloadClients(int)                  {}
