// Package pipeline runs a list of transform steps over a glob-selected set of
// source files and writes the survivors to a destination directory.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/transform"
)

// Spec describes one pipeline run.
type Spec struct {
	Name string
	// Sources are globs relative to the project root; "!" excludes.
	Sources []string
	// Dest is the root-relative output directory.
	Dest  string
	Steps []transform.Step
}

// Observer receives callbacks as steps complete.
type Observer interface {
	OnStepComplete(pipeline, step string, d time.Duration, in, out int)
	OnTransformError(pipeline string, err *ferrors.ClassifiedError)
}

// NoopObserver ignores every callback.
type NoopObserver struct{}

func (NoopObserver) OnStepComplete(string, string, time.Duration, int, int) {}
func (NoopObserver) OnTransformError(string, *ferrors.ClassifiedError)      {}

// Runner executes Specs against a filesystem rooted at root.
type Runner struct {
	fs       afero.Fs
	root     string
	observer Observer
}

// Option configures a Runner.
type Option func(*Runner)

// WithObserver installs an observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

// NewRunner creates a Runner over fsys with sources and outputs under root.
func NewRunner(fsys afero.Fs, root string, opts ...Option) *Runner {
	r := &Runner{fs: fsys, root: root, observer: NoopObserver{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Root returns the project root the runner resolves paths against.
func (r *Runner) Root() string { return r.root }

// Fs returns the runner's filesystem.
func (r *Runner) Fs() afero.Fs { return r.fs }

// Run selects the sources, applies every step in order and writes what is
// left. It returns the number of files written.
//
// Per-file transform errors do not stop the run; they are returned joined
// (every member a classified warning) alongside the written count. A reducing
// step is never applied to a set that already lost files, so a failed input
// yields no bundle rather than a partial one. Filesystem errors abort.
func (r *Runner) Run(ctx context.Context, spec Spec) (int, error) {
	files, err := asset.Select(r.fs, r.root, spec.Sources)
	if err != nil {
		return 0, err
	}

	var warnings []error
	for _, step := range spec.Steps {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if red, ok := step.(transform.Reducer); ok && red.Reduces() && len(warnings) > 0 {
			skipped := ferrors.TransformError("output skipped because inputs failed").
				ForFile(step.Name(), spec.Dest).
				Build()
			r.observer.OnTransformError(spec.Name, skipped)
			return 0, errors.Join(append(warnings, skipped)...)
		}

		start := time.Now()
		in := len(files)
		out, err := step.Apply(ctx, files)
		if err != nil && !ferrors.OnlyWarnings(err) {
			return 0, err
		}
		for _, c := range ferrors.Collect(err) {
			r.observer.OnTransformError(spec.Name, c)
			warnings = append(warnings, c)
		}
		files = out
		r.observer.OnStepComplete(spec.Name, step.Name(), time.Since(start), in, len(files))
		slog.Debug("Step complete",
			logfields.Pipeline(spec.Name),
			logfields.Step(step.Name()),
			slog.Int("in", in),
			slog.Int("out", len(files)),
			logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
	}

	written := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if err := r.write(spec.Dest, f); err != nil {
			return written, err
		}
		written++
	}
	return written, errors.Join(warnings...)
}

// write replaces the destination atomically: concurrent runs of the same
// pipeline leave one complete file behind.
func (r *Runner) write(dest string, f *asset.File) error {
	rel := path.Clean(f.Rel)
	if rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return ferrors.FileSystemError("output path escapes destination").WithContext("file", f.Rel).Build()
	}
	target := filepath.Join(r.root, filepath.FromSlash(dest), filepath.FromSlash(rel))
	dir := filepath.Dir(target)
	if err := r.fs.MkdirAll(dir, 0o755); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create destination").
			WithContext("file", dir).
			Build()
	}

	tmp := filepath.Join(dir, "."+filepath.Base(target)+"."+uuid.NewString()+".tmp")
	if err := afero.WriteFile(r.fs, tmp, f.Contents, 0o644); err != nil {
		_ = r.fs.Remove(tmp)
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write output").
			WithContext("file", target).
			Build()
	}
	if err := r.fs.Rename(tmp, target); err != nil {
		_ = r.fs.Remove(tmp)
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to replace output").
			WithContext("file", target).
			Build()
	}
	return nil
}
