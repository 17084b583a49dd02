package transform

import (
	"bytes"
	"context"
	"path"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// ConcatOptions configures Concat.
type ConcatOptions struct {
	// Name is the output file name, relative to the first input's base.
	Name string
	// Separator is written between inputs. Defaults to "\n".
	Separator string
}

type concat struct {
	opts ConcatOptions
}

// Concat joins every input, in order, into one record called opts.Name.
func Concat(opts ConcatOptions) (Step, error) {
	if opts.Name == "" || path.Base(opts.Name) != opts.Name {
		return nil, ferrors.ValidationError("concat needs a plain output file name").
			WithContext("value", opts.Name).
			Build()
	}
	if opts.Separator == "" {
		opts.Separator = "\n"
	}
	return &concat{opts: opts}, nil
}

func (c *concat) Name() string {
	return "concat"
}

// Reduces marks concat as a many-to-one step.
func (c *concat) Reduces() bool {
	return true
}

func (c *concat) Apply(_ context.Context, files []*asset.File) ([]*asset.File, error) {
	if len(files) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	out := &asset.File{
		Base:    files[0].Base,
		Rel:     c.opts.Name,
		Source:  files[0].Source,
		ModTime: files[0].ModTime,
	}
	for i, f := range files {
		if i > 0 {
			buf.WriteString(c.opts.Separator)
		}
		buf.Write(f.Contents)
		if f.ModTime.After(out.ModTime) {
			out.ModTime = f.ModTime
		}
	}
	out.Contents = buf.Bytes()
	return []*asset.File{out}, nil
}
