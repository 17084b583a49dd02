package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// SassOptions configures stylesheet compilation.
type SassOptions struct {
	// OutputStyle is "compressed" or "expanded".
	OutputStyle string
	// Root is the on-disk project root; each file's directory under it is
	// added to the load path so relative @use/@import resolve.
	Root string
	// LoadPaths are extra root-relative directories searched for partials.
	LoadPaths []string
}

// Compiler turns SCSS source into CSS.
type Compiler interface {
	Compile(ctx context.Context, src []byte, style string, loadPaths []string) ([]byte, error)
}

// SassBinary compiles by piping source through the Dart Sass executable.
type SassBinary struct {
	// Path of the executable, "sass" when empty.
	Path string
}

// Compile runs `sass --stdin` and returns its stdout.
func (b SassBinary) Compile(ctx context.Context, src []byte, style string, loadPaths []string) ([]byte, error) {
	bin := b.Path
	if bin == "" {
		bin = "sass"
	}
	args := []string{"--stdin", "--no-source-map", "--style=" + style}
	for _, p := range loadPaths {
		args = append(args, "--load-path="+p)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = bytes.NewReader(src)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, ferrors.SetupError("sass executable not found").
				WithContext("binary", bin).
				WithCause(err).
				Build()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("sass command failed: %w", err)
		}
		return nil, fmt.Errorf("sass command failed: %w: %s", err, msg)
	}
	return stdout.Bytes(), nil
}

// Sass compiles each record with c. Partials (names starting with "_") are
// dropped; .scss and .sass records are renamed to .css.
func Sass(opts SassOptions, c Compiler) (FileStep, error) {
	switch opts.OutputStyle {
	case "":
		opts.OutputStyle = "compressed"
	case "compressed", "expanded":
	default:
		return nil, ferrors.ValidationError("unknown sass output style").
			WithContext("value", opts.OutputStyle).
			Build()
	}
	if c == nil {
		c = SassBinary{}
	}
	fp := "sass:" + opts.OutputStyle + ":" + strings.Join(opts.LoadPaths, ",")

	return PerFile("sass", fp, func(ctx context.Context, f *asset.File) ([]*asset.File, error) {
		if strings.HasPrefix(path.Base(f.Rel), "_") {
			return nil, nil
		}
		loadPaths := []string{filepath.Join(opts.Root, filepath.FromSlash(path.Dir(f.Source)))}
		for _, p := range opts.LoadPaths {
			loadPaths = append(loadPaths, filepath.Join(opts.Root, filepath.FromSlash(p)))
		}
		css, err := c.Compile(ctx, f.Contents, opts.OutputStyle, loadPaths)
		if err != nil {
			return nil, err
		}
		switch f.Ext() {
		case ".scss", ".sass":
			return []*asset.File{f.WithExt(".css", css)}, nil
		default:
			out := f.Clone()
			out.Contents = css
			return []*asset.File{out}, nil
		}
	}), nil
}
