// Package dist assembles the production distribution directory.
package dist

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/manifest"
)

// Clean removes dir and everything below it. A missing dir is not an error.
func Clean(fsys afero.Fs, dir string) error {
	if _, err := fsys.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := fsys.RemoveAll(dir); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to clean distribution directory").
			WithContext("file", dir).
			Build()
	}
	slog.Info("Cleaned distribution directory", logfields.Path(dir))
	return nil
}

// Package copies every artifact under root matched by patterns into dist,
// keeping root-relative paths. When m is non-nil each copied file is recorded
// in it. It returns the root-relative paths copied.
func Package(fsys afero.Fs, root, dist string, patterns []string, m *manifest.BuildManifest) ([]string, error) {
	files, err := asset.Select(fsys, root, patterns)
	if err != nil {
		return nil, err
	}
	copied := make([]string, 0, len(files))
	for _, f := range files {
		target := filepath.Join(dist, filepath.FromSlash(f.Source))
		if err := fsys.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return copied, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create directory").
				WithContext("file", filepath.Dir(target)).
				Build()
		}
		if err := afero.WriteFile(fsys, target, f.Contents, 0o644); err != nil {
			return copied, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to copy artifact").
				WithContext("file", target).
				Build()
		}
		if m != nil {
			m.AddArtifact(f.Source, f.Contents)
		}
		copied = append(copied, f.Source)
	}
	slog.Info("Packaged artifacts", logfields.Path(dist), logfields.Count(len(copied)))
	return copied, nil
}

// WriteManifest seals m and writes it to dist.
func WriteManifest(fsys afero.Fs, dist string, m *manifest.BuildManifest) error {
	m.Seal()
	data, err := m.ToJSON()
	if err != nil {
		return ferrors.BuildError("failed to encode build manifest").WithCause(err).Build()
	}
	if err := fsys.MkdirAll(dist, 0o755); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create distribution directory").
			WithContext("file", dist).
			Build()
	}
	target := filepath.Join(dist, manifest.FileName)
	if err := afero.WriteFile(fsys, target, data, 0o644); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write build manifest").
			WithContext("file", target).
			Build()
	}
	return nil
}
