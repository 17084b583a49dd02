package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/transform"
)

type upperCompiler struct{}

func (upperCompiler) Compile(_ context.Context, src []byte, _ string, _ []string) ([]byte, error) {
	if bytes.Contains(src, []byte("!!")) {
		return nil, errors.New("invalid syntax")
	}
	return bytes.ToUpper(src), nil
}

type countingEncoder struct{ calls atomic.Int32 }

func (e *countingEncoder) Encode(w io.Writer, _ image.Image) error {
	e.calls.Add(1)
	_, err := w.Write([]byte("avif"))
	return err
}
func (e *countingEncoder) Ext() string         { return ".avif" }
func (e *countingEncoder) Fingerprint() string { return "count" }

type recordingObserver struct {
	mu     sync.Mutex
	steps  []string
	errors []string
}

func (o *recordingObserver) OnStepComplete(_ string, step string, _ time.Duration, _, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, step)
}

func (o *recordingObserver) OnTransformError(_ string, err *ferrors.ClassifiedError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, err.File())
}

func write(t *testing.T, fsys afero.Fs, p, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, p, []byte(body), 0o644))
}

func read(t *testing.T, fsys afero.Fs, p string) string {
	t.Helper()
	b, err := afero.ReadFile(fsys, p)
	require.NoError(t, err)
	return string(b)
}

func stylesSpec(t *testing.T, sources ...string) Spec {
	t.Helper()
	sass, err := transform.Sass(transform.SassOptions{}, upperCompiler{})
	require.NoError(t, err)
	concat, err := transform.Concat(transform.ConcatOptions{Name: "style.min.css"})
	require.NoError(t, err)
	if len(sources) == 0 {
		sources = []string{"scss/style.scss"}
	}
	return Spec{Name: "styles", Sources: sources, Dest: "css", Steps: []transform.Step{sass, concat}}
}

func TestRunStylesIsIdempotent(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "app/scss/style.scss", "body{color:red}")
	obs := &recordingObserver{}
	r := NewRunner(fsys, "app", WithObserver(obs))

	n, err := r.Run(t.Context(), stylesSpec(t))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	first := read(t, fsys, "app/css/style.min.css")

	_, err = r.Run(t.Context(), stylesSpec(t))
	require.NoError(t, err)
	require.Equal(t, first, read(t, fsys, "app/css/style.min.css"))
	require.Equal(t, "BODY{COLOR:RED}", first)
	require.Equal(t, []string{"sass", "concat", "sass", "concat"}, obs.steps)
}

func TestRunNonReducingKeepsValidFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "app/scss/a.scss", "a{}")
	write(t, fsys, "app/scss/b.scss", "b{!!")
	obs := &recordingObserver{}
	r := NewRunner(fsys, "app", WithObserver(obs))

	sass, err := transform.Sass(transform.SassOptions{}, upperCompiler{})
	require.NoError(t, err)
	n, err := r.Run(t.Context(), Spec{Name: "css", Sources: []string{"scss/*.scss"}, Dest: "css", Steps: []transform.Step{sass}})

	require.Equal(t, 1, n)
	require.True(t, ferrors.OnlyWarnings(err))
	require.Equal(t, "A{}", read(t, fsys, "app/css/a.css"))
	exists, _ := afero.Exists(fsys, "app/css/b.css")
	require.False(t, exists)
	require.Equal(t, []string{"scss/b.scss"}, obs.errors)
}

func TestRunReducingWritesNoPartialArtifact(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "app/scss/a.scss", "a{}")
	write(t, fsys, "app/scss/b.scss", "b{!!")
	write(t, fsys, "app/css/style.min.css", "previous")
	r := NewRunner(fsys, "app")

	n, err := r.Run(t.Context(), stylesSpec(t, "scss/*.scss"))

	require.Zero(t, n)
	require.True(t, ferrors.OnlyWarnings(err))
	require.Len(t, ferrors.Collect(err), 2)
	require.Equal(t, "previous", read(t, fsys, "app/css/style.min.css"))
}

func TestRunMissingSourceRootAborts(t *testing.T) {
	r := NewRunner(afero.NewMemMapFs(), "app")
	_, err := r.Run(t.Context(), stylesSpec(t))
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryFileSystem))
	require.False(t, ferrors.OnlyWarnings(err))
}

func TestRunWriteFailureAborts(t *testing.T) {
	base := afero.NewMemMapFs()
	write(t, base, "app/scss/style.scss", "a{}")
	r := NewRunner(afero.NewReadOnlyFs(base), "app")

	_, err := r.Run(t.Context(), stylesSpec(t))
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryFileSystem))
}

func TestRunRejectsEscapingOutput(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "app/js/a.js", "x")
	escape := transform.PerFile("escape", "escape", func(_ context.Context, f *asset.File) ([]*asset.File, error) {
		out := f.Clone()
		out.Rel = "../../outside.js"
		return []*asset.File{out}, nil
	})
	_, err := NewRunner(fsys, "app").Run(t.Context(), Spec{Name: "x", Sources: []string{"js/*.js"}, Dest: "js", Steps: []transform.Step{escape}})
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryFileSystem))
}

func TestRunSkipsUpToDateImages(t *testing.T) {
	fsys := afero.NewMemMapFs()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	write(t, fsys, "app/images/src/logo.png", buf.String())
	old := time.Now().Add(-time.Hour)
	require.NoError(t, fsys.Chtimes("app/images/src/logo.png", old, old))

	enc := &countingEncoder{}
	spec := Spec{
		Name:    "images-avif",
		Sources: []string{"images/src/*.*", "!images/src/*.svg"},
		Dest:    "images",
		Steps: []transform.Step{
			transform.Newer(fsys, transform.NewerOptions{Dir: "app/images", Ext: ".avif"}),
			transform.Convert("avif", enc),
		},
	}
	r := NewRunner(fsys, "app")

	n, err := r.Run(t.Context(), spec)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	info, err := fsys.Stat("app/images/logo.avif")
	require.NoError(t, err)
	firstMod := info.ModTime()

	n, err = r.Run(t.Context(), spec)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, int32(1), enc.calls.Load())
	info, err = fsys.Stat("app/images/logo.avif")
	require.NoError(t, err)
	require.Equal(t, firstMod, info.ModTime())
}

func TestConcurrentRunsLeaveCompleteOutput(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "app/js/main.js", "console.log('hello')")
	concat, err := transform.Concat(transform.ConcatOptions{Name: "main.min.js"})
	require.NoError(t, err)
	spec := Spec{Name: "scripts", Sources: []string{"js/main.js"}, Dest: "js", Steps: []transform.Step{concat}}
	r := NewRunner(fsys, "app")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Run(context.Background(), spec)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, "console.log('hello')", read(t, fsys, "app/js/main.min.js"))
	entries, err := afero.ReadDir(fsys, "app/js")
	require.NoError(t, err)
	require.Len(t, entries, 2, "no temp files left behind")
}

func TestRunCancelled(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "app/scss/style.scss", "a{}")
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := NewRunner(fsys, "app").Run(ctx, stylesSpec(t))
	require.ErrorIs(t, err, context.Canceled)
}
