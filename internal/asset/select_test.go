package asset

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

func memFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for p, body := range files {
		require.NoError(t, afero.WriteFile(fsys, p, []byte(body), 0o644))
	}
	return fsys
}

func TestBase(t *testing.T) {
	cases := map[string]string{
		"scss/style.scss":           "scss",
		"scss/**/*.scss":            "scss",
		"images/src/*.*":            "images/src",
		"*.html":                    ".",
		"style.css":                 ".",
		"images/src/**/*.{jpg,png}": "images/src",
	}
	for in, want := range cases {
		require.Equal(t, want, Base(in), in)
	}
}

func TestMatcher(t *testing.T) {
	m, err := Compile([]string{"scss/**/*.scss", "images/src/**/*.{jpg,png}", "!images/src/skip/*"})
	require.NoError(t, err)

	require.True(t, m.Match("scss/style.scss"))
	require.True(t, m.Match("scss/partials/deep/_vars.scss"))
	require.False(t, m.Match("scss/style.css"))
	require.True(t, m.Match("images/src/a.jpg"))
	require.True(t, m.Match("images/src/nested/b.png"))
	require.False(t, m.Match("images/src/skip/c.png"))
	require.False(t, m.Match("images/src/d.gif"))
}

func TestMatcherSingleStarStaysInDirectory(t *testing.T) {
	m, err := Compile([]string{"pages/*.html"})
	require.NoError(t, err)
	require.True(t, m.Match("pages/index.html"))
	require.False(t, m.Match("pages/sub/index.html"))
}

func TestCompileInvalidGlob(t *testing.T) {
	_, err := Compile([]string{"images/[a"})
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestSelect(t *testing.T) {
	fsys := memFS(t, map[string]string{
		"app/images/src/a.jpg":   "a",
		"app/images/src/b.svg":   "b",
		"app/images/src/c.png":   "c",
		"app/images/src/x/d.png": "d",
	})

	files, err := Select(fsys, "app", []string{"images/src/*.*", "!images/src/*.svg"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "images/src", files[0].Base)
	require.Equal(t, "a.jpg", files[0].Rel)
	require.Equal(t, "images/src/a.jpg", files[0].Source)
	require.Equal(t, []byte("a"), files[0].Contents)
	require.Equal(t, "c.png", files[1].Rel)
	require.False(t, files[0].ModTime.IsZero())
}

func TestSelectDeduplicatesAcrossPatterns(t *testing.T) {
	fsys := memFS(t, map[string]string{"app/js/main.js": "m"})

	files, err := Select(fsys, "app", []string{"js/main.js", "js/*.js"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "js", files[0].Base)
	require.Equal(t, "main.js", files[0].Rel)
}

func TestSelectMissingSources(t *testing.T) {
	fsys := memFS(t, map[string]string{"app/js/other.js": "x"})

	_, err := Select(fsys, "nope", []string{"js/*.js"})
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryFileSystem))

	_, err = Select(fsys, "app", []string{"js/main.js"})
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryFileSystem))

	files, err := Select(fsys, "app", []string{"fonts/src/*.*"})
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestFileHelpers(t *testing.T) {
	f := &File{Base: "scss", Rel: "style.SCSS", Contents: []byte("x")}
	require.Equal(t, "scss/style.SCSS", f.Path())
	require.Equal(t, ".scss", f.Ext())

	renamed := f.WithExt(".css", []byte("y"))
	require.Equal(t, "style.css", renamed.Rel)
	require.Equal(t, []byte("x"), f.Contents)

	c := f.Clone()
	c.Contents[0] = 'z'
	require.Equal(t, byte('x'), f.Contents[0])
}
