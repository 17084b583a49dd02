package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/assetbuilder/internal/devserver"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/watch"
)

const shutdownTimeout = 5 * time.Second

// Watch runs every task once, then serves the root with live reload and
// re-runs tasks as their sources change. It blocks until ctx ends or a
// supervised component fails to start.
func (a *App) Watch(ctx context.Context) error {
	a.pruneCache(ctx, time.Now())
	if _, err := a.RunAll(ctx); err != nil {
		slog.Warn("Initial run finished with errors; watching anyway", logfields.Error(err))
	}

	bindings, err := a.bindings()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	// fail stops whatever was already started before reporting err.
	fail := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	if a.cfg.Server.Enabled {
		srv := devserver.New(a.fs, a.cfg.Root, a.cfg.Server.Addr(), devserver.WithRecorder(a.recorder))
		if err := srv.Start(gctx); err != nil {
			return fail(err)
		}
		a.tasks.SetReloader(srv)
		defer a.tasks.SetReloader(nil)
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, stop := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer stop()
			return srv.Stop(stopCtx)
		})
	}

	if addr := a.cfg.Metrics.Address; addr != "" {
		ln, err := (&net.ListenConfig{}).Listen(gctx, "tcp", addr)
		if err != nil {
			return fail(ferrors.WrapError(err, ferrors.CategorySetup, "failed to bind metrics listener").
				Fatal().
				WithContext("addr", addr).
				Build())
		}
		g.Go(func() error { return serveMetrics(gctx, ln, a.registry) })
	}

	if a.cfg.Watch.Resync > 0 {
		s, err := a.scheduleResync(gctx)
		if err != nil {
			return fail(err)
		}
		g.Go(func() error {
			<-gctx.Done()
			return s.Shutdown()
		})
	}

	src, err := watch.NewFSSource(a.cfg.Root)
	if err != nil {
		return fail(err)
	}
	d := watch.NewDispatcher(bindings, func(ctx context.Context, task string) {
		a.tasks.Run(ctx, task)
	}, watch.Options{
		Debounce:  a.cfg.Watch.Debounce,
		Serialize: a.cfg.Watch.Serialize,
		Recorder:  a.recorder,
	})
	g.Go(func() error { return src.Run(gctx) })
	g.Go(func() error { return d.Run(gctx, src.Events()) })

	slog.Info("Watching for changes", logfields.Path(a.cfg.Root))
	return g.Wait()
}

func (a *App) bindings() ([]watch.Binding, error) {
	var out []watch.Binding
	for _, def := range a.tasks.Definitions() {
		if len(def.Watch) == 0 {
			continue
		}
		b, err := watch.NewBinding(def.Name, def.Watch)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// scheduleResync re-runs every task on the configured interval to pick up
// changes the watcher missed, expiring stale cache entries first.
func (a *App) scheduleResync(ctx context.Context) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategorySetup, "failed to create resync scheduler").Build()
	}
	_, err = s.NewJob(
		gocron.DurationJob(a.cfg.Watch.Resync),
		gocron.NewTask(func() {
			slog.Info("Periodic resync")
			a.pruneCache(ctx, time.Now())
			if _, err := a.RunAll(ctx); err != nil {
				slog.Warn("Resync finished with errors", logfields.Error(err))
			}
		}),
		gocron.WithName("resync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, ferrors.WrapError(err, ferrors.CategorySetup, "failed to schedule resync").Build()
	}
	s.Start()
	return s, nil
}

func serveMetrics(ctx context.Context, ln net.Listener, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(stopCtx)
	}()
	slog.Info("Metrics listening", logfields.Addr("http://"+ln.Addr().String()+"/metrics"))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
