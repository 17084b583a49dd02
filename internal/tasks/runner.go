package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/notify"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
)

// Reloader is told when browsers should pick up new output.
type Reloader interface {
	NotifyReload()
	NotifyStyles()
}

// Outcome summarizes one task run.
type Outcome struct {
	RunID    string
	Task     string
	Files    int
	Warnings []*ferrors.ClassifiedError
	Duration time.Duration
	// Err is set when the run aborted. Transform warnings never set it.
	Err error
}

// Status folds the outcome into success, warning or failed.
func (o Outcome) Status() notify.Status {
	switch {
	case o.Err != nil:
		return notify.StatusFailed
	case len(o.Warnings) > 0:
		return notify.StatusWarning
	default:
		return notify.StatusSuccess
	}
}

// Event converts the outcome for notifiers.
func (o Outcome) Event() notify.Event {
	ev := notify.Event{
		RunID:      o.RunID,
		Task:       o.Task,
		Status:     o.Status(),
		Files:      o.Files,
		DurationMS: float64(o.Duration.Microseconds()) / 1000,
		Timestamp:  time.Now().UTC(),
	}
	for _, w := range o.Warnings {
		ev.Errors = append(ev.Errors, fileError(w))
	}
	if o.Err != nil {
		fe := notify.FileError{Message: o.Err.Error()}
		if c, ok := ferrors.AsClassified(o.Err); ok {
			fe = fileError(c)
		}
		ev.Errors = append(ev.Errors, fe)
	}
	return ev
}

func fileError(c *ferrors.ClassifiedError) notify.FileError {
	fe := notify.FileError{File: c.File(), Step: c.Step(), Message: c.Message()}
	if c.Cause() != nil {
		fe.Message = fmt.Sprintf("%s: %v", c.Message(), c.Cause())
	}
	return fe
}

// Runner runs task definitions by name.
type Runner struct {
	pipelines *pipeline.Runner
	defs      map[string]Definition
	order     []string
	recorder  metrics.Recorder
	notifier  notify.Notifier

	mu       sync.RWMutex
	reloader Reloader
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder reports task metrics to rec.
func WithRecorder(rec metrics.Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithNotifier publishes every outcome to n.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// NewRunner creates a Runner over defs, keeping their order for Names.
func NewRunner(p *pipeline.Runner, defs []Definition, opts ...Option) *Runner {
	r := &Runner{
		pipelines: p,
		defs:      make(map[string]Definition, len(defs)),
		recorder:  metrics.NoopRecorder{},
	}
	for _, d := range defs {
		r.defs[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetReloader installs (or with nil removes) the live-reload target.
func (r *Runner) SetReloader(rl Reloader) {
	r.mu.Lock()
	r.reloader = rl
	r.mu.Unlock()
}

// Names lists the task names in definition order.
func (r *Runner) Names() []string {
	return append([]string(nil), r.order...)
}

// Definition returns the named definition.
func (r *Runner) Definition(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Definitions returns every definition in order.
func (r *Runner) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.defs[n])
	}
	return out
}

// Run executes every pipeline of the named task in order. A pipeline that
// aborts stops the task; transform warnings are collected and the task goes on.
func (r *Runner) Run(ctx context.Context, name string) Outcome {
	out := Outcome{RunID: uuid.NewString(), Task: name}
	def, ok := r.defs[name]
	if !ok {
		out.Err = ferrors.ValidationError("unknown task").
			WithContext("task", name).
			WithContext("valid", r.order).
			Build()
		return out
	}

	logger := slog.With(logfields.Task(name), logfields.RunID(out.RunID))
	logger.Info("Starting task")
	start := time.Now()

	for _, spec := range def.Specs {
		n, err := r.pipelines.Run(ctx, spec)
		out.Files += n
		if err != nil && !ferrors.OnlyWarnings(err) {
			out.Err = err
			break
		}
		out.Warnings = append(out.Warnings, ferrors.Collect(err)...)
	}
	out.Duration = time.Since(start)

	r.report(ctx, logger, def, out)
	return out
}

func (r *Runner) report(ctx context.Context, logger *slog.Logger, def Definition, out Outcome) {
	r.recorder.ObserveTaskDuration(def.Name, out.Duration)
	r.recorder.AddFilesWritten(def.Name, out.Files)

	switch {
	case errors.Is(out.Err, context.Canceled):
		r.recorder.IncTaskResult(def.Name, metrics.ResultCanceled)
		logger.Info("Task canceled")
		return
	case out.Err != nil:
		r.recorder.IncTaskResult(def.Name, metrics.ResultFailed)
	case len(out.Warnings) > 0:
		r.recorder.IncTaskResult(def.Name, metrics.ResultWarning)
	default:
		r.recorder.IncTaskResult(def.Name, metrics.ResultSuccess)
	}

	if r.notifier != nil {
		// Notifications outlive a canceled run context so the last outcome is still published.
		if err := r.notifier.Notify(context.WithoutCancel(ctx), out.Event()); err != nil {
			logger.Warn("Failed to publish task outcome", logfields.Error(err))
		}
	} else {
		logger.Info("Task finished",
			logfields.Count(out.Files),
			logfields.DurationMS(float64(out.Duration.Microseconds())/1000),
			slog.String("status", string(out.Status())))
	}

	if out.Err != nil || out.Files == 0 {
		return
	}
	r.mu.RLock()
	rl := r.reloader
	r.mu.RUnlock()
	if rl == nil {
		return
	}
	switch def.Notify {
	case NotifyReload:
		rl.NotifyReload()
	case NotifyStyles:
		rl.NotifyStyles()
	case NotifyNone:
	}
}
