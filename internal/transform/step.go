// Package transform holds the file transform steps tasks are built from.
//
// A Step receives the working set of file records and returns the next one.
// Steps never touch the destination; the pipeline writes what survives.
// A failure confined to one file is returned as a transform error joined with
// the others while the surviving records are still returned. Any other error
// means the step could not run at all.
package transform

import (
	"context"
	"errors"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// Step is one stage of a pipeline.
type Step interface {
	Name() string
	Apply(ctx context.Context, files []*asset.File) ([]*asset.File, error)
}

// Reducer is implemented by steps that collapse their whole input into a
// single artifact. The pipeline refuses to run a reducer over an input set
// that already lost members, so no partial artifact is ever written.
type Reducer interface {
	Step
	Reduces() bool
}

// FileFunc transforms a single record. Returning no records and no error
// drops the file silently (filters do this).
type FileFunc func(ctx context.Context, f *asset.File) ([]*asset.File, error)

// FileStep is a Step that processes records independently of each other.
type FileStep interface {
	Step
	ApplyFile(ctx context.Context, f *asset.File) ([]*asset.File, error)
	// Fingerprint identifies the step and every option that affects output.
	Fingerprint() string
}

type fileStep struct {
	name        string
	fingerprint string
	fn          FileFunc
}

// PerFile adapts fn into a FileStep with per-file error isolation.
func PerFile(name, fingerprint string, fn FileFunc) FileStep {
	return &fileStep{name: name, fingerprint: fingerprint, fn: fn}
}

func (s *fileStep) Name() string        { return s.name }
func (s *fileStep) Fingerprint() string { return s.fingerprint }

func (s *fileStep) ApplyFile(ctx context.Context, f *asset.File) ([]*asset.File, error) {
	return s.fn(ctx, f)
}

func (s *fileStep) Apply(ctx context.Context, files []*asset.File) ([]*asset.File, error) {
	return applyEach(ctx, s, files)
}

// applyEach runs step.ApplyFile over files. Per-file failures are wrapped as
// transform errors; classified errors of any other category abort.
func applyEach(ctx context.Context, step FileStep, files []*asset.File) ([]*asset.File, error) {
	out := make([]*asset.File, 0, len(files))
	var errs []error
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := step.ApplyFile(ctx, f)
		if err != nil {
			if fatal := abortError(err); fatal != nil {
				return nil, fatal
			}
			errs = append(errs, fileError(step.Name(), f, err))
			continue
		}
		out = append(out, res...)
	}
	return out, errors.Join(errs...)
}

func abortError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if c, ok := ferrors.AsClassified(err); ok && !c.IsCategory(ferrors.CategoryTransform) {
		return err
	}
	return nil
}

func fileError(step string, f *asset.File, err error) error {
	if c, ok := ferrors.AsClassified(err); ok && c.IsCategory(ferrors.CategoryTransform) {
		return c.WithContext(ferrors.ContextStep, step).WithContext(ferrors.ContextFile, f.Source)
	}
	return ferrors.WrapError(err, ferrors.CategoryTransform, step+" failed").
		Warning().
		ForFile(step, f.Source).
		Build()
}
