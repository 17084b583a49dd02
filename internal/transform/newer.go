package transform

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/spf13/afero"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// NewerOptions configures Newer.
type NewerOptions struct {
	// Dir is the on-disk destination directory outputs are written to.
	Dir string
	// Ext maps a record to its output name. Empty keeps the source extension.
	Ext string
}

// Newer drops records whose destination counterpart is at least as new as
// the source. Records without a destination pass through.
func Newer(fsys afero.Fs, opts NewerOptions) FileStep {
	return PerFile("newer", "newer:"+opts.Dir+":"+opts.Ext, func(_ context.Context, f *asset.File) ([]*asset.File, error) {
		rel := f.Rel
		if opts.Ext != "" {
			rel = asset.ReplaceExt(rel, opts.Ext)
		}
		target := filepath.Join(opts.Dir, filepath.FromSlash(path.Clean(rel)))
		info, err := fsys.Stat(target)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return []*asset.File{f}, nil
		case err != nil:
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to stat destination").
				WithContext("file", target).
				Build()
		case !info.ModTime().Before(f.ModTime):
			return nil, nil
		default:
			return []*asset.File{f}, nil
		}
	})
}
