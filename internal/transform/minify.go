package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/svg"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
)

func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("image/svg+xml", svg.Minify)
	return m
}

// MinifyCSS minifies stylesheets.
func MinifyCSS() FileStep {
	m := newMinifier()
	return PerFile("minify-css", "minify-css", func(_ context.Context, f *asset.File) ([]*asset.File, error) {
		b, err := m.Bytes("text/css", f.Contents)
		if err != nil {
			return nil, err
		}
		out := f.Clone()
		out.Contents = b
		return []*asset.File{out}, nil
	})
}

// MinifyJSOptions configures MinifyJS.
type MinifyJSOptions struct {
	// MangleIdentifiers shortens local names.
	MangleIdentifiers bool
}

// MinifyJS minifies scripts with esbuild.
func MinifyJS(opts MinifyJSOptions) FileStep {
	fp := fmt.Sprintf("minify-js:%t", opts.MangleIdentifiers)
	return PerFile("minify-js", fp, func(_ context.Context, f *asset.File) ([]*asset.File, error) {
		result := api.Transform(string(f.Contents), api.TransformOptions{
			Loader:            api.LoaderJS,
			Sourcefile:        f.Path(),
			MinifyWhitespace:  true,
			MinifySyntax:      true,
			MinifyIdentifiers: opts.MangleIdentifiers,
			LegalComments:     api.LegalCommentsEndOfFile,
		})
		if len(result.Errors) > 0 {
			return nil, esbuildError(result.Errors)
		}
		out := f.Clone()
		out.Contents = result.Code
		return []*asset.File{out}, nil
	})
}

func esbuildError(msgs []api.Message) error {
	errs := make([]error, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			errs = append(errs, fmt.Errorf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		errs = append(errs, errors.New(m.Text))
	}
	return errors.Join(errs...)
}
