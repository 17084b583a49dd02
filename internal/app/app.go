// Package app wires configuration, pipelines and process-wide services
// (cache, notifiers, metrics, dev server) into the operations the CLI exposes.
package app

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"git.home.luguber.info/inful/assetbuilder/internal/cache"
	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/dist"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/manifest"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/notify"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
	"git.home.luguber.info/inful/assetbuilder/internal/tasks"
	"git.home.luguber.info/inful/assetbuilder/internal/transform"
)

// App holds the process-wide state for one invocation.
type App struct {
	cfg       *config.Config
	fs        afero.Fs
	store     cache.Store
	notifier  notify.Notifier
	registry  *prometheus.Registry
	recorder  metrics.Recorder
	pipelines *pipeline.Runner
	tasks     *tasks.Runner
}

type options struct {
	fs       afero.Fs
	compiler transform.Compiler
	notifier notify.Notifier
}

// Option configures New.
type Option func(*options)

// WithFs sets the filesystem sources are read from and outputs written to.
// It defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithCompiler sets the SCSS compiler. It defaults to the configured sass
// executable.
func WithCompiler(c transform.Compiler) Option {
	return func(o *options) { o.compiler = c }
}

// WithNotifier adds a notifier next to the configured ones.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// New builds the application from cfg. Call Close when done.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}

	store, err := cache.Open(cfg)
	if err != nil {
		if !ferrors.OnlyWarnings(err) {
			return nil, err
		}
		slog.Warn("Transform cache disabled", logfields.Error(err))
		store = nil
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	notifiers := notify.Multi{notify.NewLogNotifier(nil)}
	if cfg.Notify.NATSURL != "" {
		nn, err := notify.NewNATSNotifier(cfg.Notify.NATSURL, cfg.Notify.Subject)
		if err != nil {
			slog.Warn("Task notifications over NATS disabled", logfields.Error(err))
		} else {
			notifiers = append(notifiers, nn)
		}
	}
	if o.notifier != nil {
		notifiers = append(notifiers, o.notifier)
	}

	a := &App{
		cfg:      cfg,
		fs:       o.fs,
		store:    store,
		notifier: notifiers,
		registry: registry,
		recorder: recorder,
	}

	deps := tasks.Deps{Fs: o.fs, Compiler: o.compiler}
	if store != nil {
		deps.Cache = store
	}
	defs, err := tasks.Definitions(cfg, deps)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.pipelines = pipeline.NewRunner(o.fs, cfg.Root, pipeline.WithObserver(tasks.NewObserver(recorder)))
	a.tasks = tasks.NewRunner(a.pipelines, defs, tasks.WithRecorder(recorder), tasks.WithNotifier(notifiers))
	return a, nil
}

// Close releases the cache store and notifier connections.
func (a *App) Close() error {
	var errs []error
	if a.notifier != nil {
		errs = append(errs, a.notifier.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// Config returns the effective configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Tasks returns the task runner.
func (a *App) Tasks() *tasks.Runner { return a.tasks }

// Registry returns the Prometheus registry metrics are recorded in.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// RunTask runs one task by name. Transform warnings are reported but do not
// make it fail.
func (a *App) RunTask(ctx context.Context, name string) (tasks.Outcome, error) {
	out := a.tasks.Run(ctx, name)
	return out, out.Err
}

// RunAll runs every task concurrently and returns the outcomes in task order
// with the failures joined.
func (a *App) RunAll(ctx context.Context) ([]tasks.Outcome, error) {
	names := a.tasks.Names()
	p := pool.NewWithResults[tasks.Outcome]().WithMaxGoroutines(len(names))
	for _, name := range names {
		p.Go(func() tasks.Outcome {
			return a.tasks.Run(ctx, name)
		})
	}
	outcomes := p.Wait()
	slices.SortFunc(outcomes, func(x, y tasks.Outcome) int {
		return slices.Index(names, x.Task) - slices.Index(names, y.Task)
	})

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return outcomes, errors.Join(errs...)
}

// Clean removes the distribution directory.
func (a *App) Clean(_ context.Context) error {
	return dist.Clean(a.fs, a.cfg.Dist)
}

// Build cleans the distribution directory, runs every task and packages the
// declared artifacts. The returned manifest is also written to dist when
// build.manifest is enabled.
func (a *App) Build(ctx context.Context) (*manifest.BuildManifest, error) {
	start := time.Now()
	a.pruneCache(ctx, start)
	if err := a.Clean(ctx); err != nil {
		return nil, err
	}
	outcomes, err := a.RunAll(ctx)
	if err != nil {
		return nil, ferrors.BuildError("build aborted because a task failed").WithCause(err).Build()
	}

	m := &manifest.BuildManifest{
		ID:        uuid.NewString(),
		Timestamp: start.UTC(),
		Status:    string(notify.StatusSuccess),
	}
	for _, o := range outcomes {
		m.Tasks = append(m.Tasks, manifest.TaskResult{Name: o.Task, Status: string(o.Status()), Files: o.Files})
		if o.Status() == notify.StatusWarning {
			m.Status = string(notify.StatusWarning)
		}
	}

	copied, err := dist.Package(a.fs, a.cfg.Root, a.cfg.Dist, a.cfg.Build.Artifacts, m)
	if err != nil {
		return nil, err
	}
	m.DurationMS = time.Since(start).Milliseconds()

	if a.cfg.Build.Manifest {
		src, err := manifest.ReadSource(a.cfg.Root)
		if err != nil {
			slog.Warn("Could not read source revision", logfields.Error(err))
		}
		m.Source = src
		if err := dist.WriteManifest(a.fs, a.cfg.Dist, m); err != nil {
			return nil, err
		}
	} else {
		m.Seal()
	}

	slog.Info("Build complete",
		logfields.Path(a.cfg.Dist),
		logfields.Count(len(copied)),
		logfields.DurationMS(float64(m.DurationMS)),
		slog.String("build_id", m.ID))
	return m, nil
}

// pruneCache expires cache entries older than cache.max_age as of now.
// Failures only cost cache hits, so they are logged.
func (a *App) pruneCache(ctx context.Context, now time.Time) {
	p, ok := a.store.(cache.Pruner)
	if !ok || a.cfg.Cache.MaxAge <= 0 {
		return
	}
	removed, err := p.Prune(ctx, now.Add(-a.cfg.Cache.MaxAge))
	if err != nil {
		slog.Warn("Could not prune transform cache", logfields.Error(err))
		return
	}
	if removed > 0 {
		slog.Info("Pruned transform cache", logfields.Count(int(removed)))
	}
}
