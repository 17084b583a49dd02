package asset

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

const globMeta = "*?[{\\"

type pattern struct {
	raw     string
	base    string
	literal bool
	globs   []glob.Glob
}

func (p pattern) match(rel string) bool {
	for _, g := range p.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Matcher tests root-relative slash paths against an ordered glob list.
// Patterns prefixed with "!" exclude. "**" spans directories (including none)
// and "{a,b}" alternates.
type Matcher struct {
	include []pattern
	exclude []pattern
}

// Compile builds a Matcher from patterns.
func Compile(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, raw := range patterns {
		neg := strings.HasPrefix(raw, "!")
		p, err := compilePattern(strings.TrimPrefix(raw, "!"))
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid glob").
				Fatal().
				WithContext("pattern", raw).
				Build()
		}
		if neg {
			m.exclude = append(m.exclude, p)
		} else {
			m.include = append(m.include, p)
		}
	}
	return m, nil
}

func compilePattern(raw string) (pattern, error) {
	clean := path.Clean(strings.TrimPrefix(filepath.ToSlash(raw), "./"))
	p := pattern{raw: clean, base: Base(clean), literal: !strings.ContainsAny(clean, globMeta)}

	alts := []string{clean}
	if strings.Contains(clean, "**/") {
		alts = append(alts, strings.ReplaceAll(clean, "**/", ""))
	}
	for _, a := range alts {
		g, err := glob.Compile(a, '/')
		if err != nil {
			return pattern{}, err
		}
		p.globs = append(p.globs, g)
	}
	return p, nil
}

// Match reports whether rel is selected by at least one include pattern and
// no exclude pattern.
func (m *Matcher) Match(rel string) bool {
	rel = path.Clean(filepath.ToSlash(rel))
	matched := false
	for _, p := range m.include {
		if p.match(rel) {
			matched = true
			break
		}
	}
	return matched && !m.excluded(rel)
}

// Base returns the static directory prefix of a glob, the part before the
// first segment containing a wildcard. For a literal path it is the parent.
func Base(pattern string) string {
	segs := strings.Split(pattern, "/")
	var static []string
	for _, s := range segs {
		if strings.ContainsAny(s, globMeta) {
			break
		}
		static = append(static, s)
	}
	if len(static) == len(segs) {
		static = static[:len(static)-1]
	}
	if len(static) == 0 {
		return "."
	}
	return path.Join(static...)
}

// Select reads every file under root matched by patterns. Records keep the
// base of the first pattern that matched them; duplicates are dropped. A
// missing root, or a literal pattern naming a missing file, is a filesystem error.
func Select(fsys afero.Fs, root string, patterns []string) ([]*File, error) {
	m, err := Compile(patterns)
	if err != nil {
		return nil, err
	}
	if st, err := fsys.Stat(root); err != nil || !st.IsDir() {
		return nil, ferrors.FileSystemError("source root not found").
			WithContext("file", root).
			WithCause(err).
			Build()
	}

	seen := make(map[string]bool)
	var out []*File
	for _, p := range m.include {
		if p.literal {
			f, err := readOne(fsys, root, p.base, p.raw)
			if err != nil {
				return nil, err
			}
			if !seen[p.raw] && !m.excluded(p.raw) {
				seen[p.raw] = true
				out = append(out, f)
			}
			continue
		}

		start := filepath.Join(root, filepath.FromSlash(p.base))
		if _, err := fsys.Stat(start); errors.Is(err, os.ErrNotExist) {
			continue
		}
		err := afero.Walk(fsys, start, func(full string, info fs.FileInfo, werr error) error {
			if werr != nil {
				return werr
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, full)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if seen[rel] || !p.match(rel) || m.excluded(rel) {
				return nil
			}
			f, err := readOne(fsys, root, p.base, rel)
			if err != nil {
				return err
			}
			seen[rel] = true
			out = append(out, f)
			return nil
		})
		if err != nil {
			if ferrors.IsClassified(err) {
				return nil, err
			}
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to scan sources").
				WithContext("file", p.raw).
				Build()
		}
	}
	return out, nil
}

func (m *Matcher) excluded(rel string) bool {
	for _, p := range m.exclude {
		if p.match(rel) {
			return true
		}
	}
	return false
}

func readOne(fsys afero.Fs, root, base, rel string) (*File, error) {
	full := filepath.Join(root, filepath.FromSlash(rel))
	info, err := fsys.Stat(full)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "source not found").
			WithContext("file", rel).
			Build()
	}
	data, err := afero.ReadFile(fsys, full)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read source").
			WithContext("file", rel).
			Build()
	}
	r := strings.TrimPrefix(rel, base+"/")
	if base == "." {
		r = rel
	}
	return &File{
		Base:     base,
		Rel:      r,
		Contents: data,
		ModTime:  info.ModTime(),
		Source:   rel,
	}, nil
}
