// Package devserver serves the project root over HTTP and pushes live-reload
// notifications to connected browsers.
package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/afero"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
)

const (
	eventsPath = "/__livereload"
	scriptPath = "/__livereload.js"
)

// Server is the development HTTP server. It is started at most once.
type Server struct {
	addr string
	root http.FileSystem
	hub  *Hub

	mu       sync.Mutex
	started  bool
	listener net.Listener
	http     *http.Server
	done     chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithRecorder reports connected client counts to rec.
func WithRecorder(rec metrics.Recorder) Option {
	return func(s *Server) { s.hub = NewHub(rec) }
}

// New creates a server for addr that serves root from fsys read-only.
func New(fsys afero.Fs, root, addr string, opts ...Option) *Server {
	ro := afero.NewReadOnlyFs(afero.NewBasePathFs(fsys, root))
	s := &Server{
		addr: addr,
		root: afero.NewHttpFs(ro),
		hub:  NewHub(nil),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(eventsPath, s.hub)
	mux.HandleFunc(scriptPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write([]byte(clientScript)); err != nil {
			slog.Debug("Failed to write live reload script", logfields.Error(err))
		}
	})
	files := http.FileServer(s.root)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		if r.Method == http.MethodHead {
			files.ServeHTTP(w, r)
			return
		}
		inj := &injector{ResponseWriter: w}
		files.ServeHTTP(inj, r)
		inj.finish()
	})
	return readOnly(mux)
}

// readOnly rejects every method except GET and HEAD.
func readOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start binds the listen address and serves in the background until Stop
// or until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ferrors.RuntimeError("dev server already started").Build()
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.addr)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategorySetup, "failed to bind dev server").
			Fatal().
			WithContext("addr", s.addr).
			Build()
	}
	s.started = true
	s.listener = ln
	// SSE streams are long lived, so there is no write timeout.
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       300 * time.Second,
	}
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Dev server stopped", logfields.Error(err))
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = s.Stop(shutdownCtx)
		case <-s.done:
		}
	}()

	slog.Info("Dev server listening", logfields.Addr("http://"+ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// NotifyReload asks browsers to reload the page.
func (s *Server) NotifyReload() {
	s.hub.Broadcast(reloadMessage)
}

// NotifyStyles asks browsers to re-fetch stylesheets.
func (s *Server) NotifyStyles() {
	s.hub.Broadcast(cssMessage)
}

// Clients returns the number of connected live-reload clients.
func (s *Server) Clients() int {
	return s.hub.Clients()
}

// Stop disconnects live-reload clients and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.http, s.done
	s.mu.Unlock()
	s.hub.Shutdown()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "dev server shutdown failed").Build()
	}
	<-done
	return nil
}
