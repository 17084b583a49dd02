package transform

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
)

const maxIncludeDepth = 16

// IncludeOptions configures partial inlining.
type IncludeOptions struct {
	// Prefix starts every directive, "@@" by default.
	Prefix string
	// Dir is the on-disk directory partial paths resolve against.
	Dir string
}

// Include expands `<prefix>include('path', {params})` directives. Partials are
// expanded recursively; inside a partial `<prefix>name` is replaced by the
// matching parameter (dotted names reach into nested objects). Markdown
// partials (.md) are rendered to HTML first.
func Include(fsys afero.Fs, opts IncludeOptions) FileStep {
	if opts.Prefix == "" {
		opts.Prefix = "@@"
	}
	inc := &includer{fs: fsys, opts: opts, md: goldmark.New()}
	fp := "include:" + opts.Prefix + ":" + opts.Dir
	return PerFile("include", fp, func(_ context.Context, f *asset.File) ([]*asset.File, error) {
		body, err := inc.expand(f.Contents, nil, nil)
		if err != nil {
			return nil, err
		}
		out := f.Clone()
		out.Contents = body
		return []*asset.File{out}, nil
	})
}

type includer struct {
	fs   afero.Fs
	opts IncludeOptions
	md   goldmark.Markdown
}

// directive is one parsed include call spanning src[start:end].
type directive struct {
	start, end int
	file       string
	params     map[string]any
}

func (in *includer) expand(src []byte, params map[string]any, stack []string) ([]byte, error) {
	if len(stack) > maxIncludeDepth {
		return nil, fmt.Errorf("include depth exceeds %d (%s)", maxIncludeDepth, strings.Join(stack, " > "))
	}
	if params != nil {
		src = in.substitute(src, params)
	}

	var out bytes.Buffer
	rest := src
	for {
		d, ok, err := in.next(rest)
		if err != nil {
			return nil, err
		}
		if !ok {
			out.Write(rest)
			return out.Bytes(), nil
		}
		out.Write(rest[:d.start])

		name := path.Clean(strings.TrimPrefix(filepath.ToSlash(d.file), "./"))
		if slices.Contains(stack, name) {
			return nil, fmt.Errorf("include cycle: %s > %s", strings.Join(stack, " > "), name)
		}
		body, err := afero.ReadFile(in.fs, filepath.Join(in.opts.Dir, filepath.FromSlash(name)))
		if err != nil {
			return nil, fmt.Errorf("include %q: %w", d.file, err)
		}
		if strings.EqualFold(path.Ext(name), ".md") {
			var html bytes.Buffer
			if err := in.md.Convert(body, &html); err != nil {
				return nil, fmt.Errorf("render %q: %w", d.file, err)
			}
			body = html.Bytes()
		}
		expanded, err := in.expand(body, d.params, append(stack, name))
		if err != nil {
			return nil, err
		}
		out.Write(expanded)
		rest = rest[d.end:]
	}
}

// next finds the first include directive in src.
func (in *includer) next(src []byte) (directive, bool, error) {
	marker := in.opts.Prefix + "include("
	idx := bytes.Index(src, []byte(marker))
	if idx < 0 {
		return directive{}, false, nil
	}
	d := directive{start: idx}
	i := skipSpace(src, idx+len(marker))

	file, n, err := readQuoted(src, i)
	if err != nil {
		return directive{}, false, fmt.Errorf("malformed include at offset %d: %w", idx, err)
	}
	d.file = file
	i = skipSpace(src, n)

	if i < len(src) && src[i] == ',' {
		i = skipSpace(src, i+1)
		end, err := matchBrace(src, i)
		if err != nil {
			return directive{}, false, fmt.Errorf("malformed include parameters at offset %d: %w", idx, err)
		}
		if err := yaml.Unmarshal(src[i:end], &d.params); err != nil {
			return directive{}, false, fmt.Errorf("include parameters for %q: %w", file, err)
		}
		i = skipSpace(src, end)
	}
	if i >= len(src) || src[i] != ')' {
		return directive{}, false, fmt.Errorf("unterminated include at offset %d", idx)
	}
	d.end = i + 1
	return d, true, nil
}

// substitute replaces `<prefix>name` tokens with parameter values. Unknown
// names are left alone.
func (in *includer) substitute(src []byte, params map[string]any) []byte {
	p := []byte(in.opts.Prefix)
	var out bytes.Buffer
	for {
		idx := bytes.Index(src, p)
		if idx < 0 {
			out.Write(src)
			return out.Bytes()
		}
		j := idx + len(p)
		for j < len(src) && isNameByte(src[j]) {
			j++
		}
		name := strings.TrimRight(string(src[idx+len(p):j]), ".")
		j = idx + len(p) + len(name)
		if v, ok := lookup(params, name); ok && name != "include" {
			out.Write(src[:idx])
			out.WriteString(v)
		} else {
			out.Write(src[:j])
		}
		src = src[j:]
	}
}

func lookup(params map[string]any, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	var cur any = params
	for _, part := range strings.Split(name, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		if cur, ok = m[part]; !ok {
			return "", false
		}
	}
	switch v := cur.(type) {
	case nil:
		return "", true
	case map[string]any, []any:
		b, err := yaml.Marshal(v)
		if err != nil {
			return "", false
		}
		return strings.TrimSpace(string(b)), true
	default:
		return fmt.Sprint(v), true
	}
}

func isNameByte(b byte) bool {
	return b == '_' || b == '.' || b == '-' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func skipSpace(src []byte, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r') {
		i++
	}
	return i
}

func readQuoted(src []byte, i int) (string, int, error) {
	if i >= len(src) || (src[i] != '\'' && src[i] != '"') {
		return "", 0, fmt.Errorf("expected quoted path")
	}
	q := src[i]
	end := bytes.IndexByte(src[i+1:], q)
	if end < 0 {
		return "", 0, fmt.Errorf("unterminated path string")
	}
	return string(src[i+1 : i+1+end]), i + end + 2, nil
}

// matchBrace returns the index just past the object starting at src[i].
func matchBrace(src []byte, i int) (int, error) {
	if i >= len(src) || src[i] != '{' {
		return 0, fmt.Errorf("expected '{'")
	}
	depth := 0
	var quote byte
	for j := i; j < len(src); j++ {
		c := src[j]
		switch {
		case quote != 0:
			if c == '\\' {
				j++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return j + 1, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced braces")
}
