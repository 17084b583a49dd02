package tasks

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/notify"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
	"git.home.luguber.info/inful/assetbuilder/internal/webfont"
)

// upperCompiler "compiles" by upper-casing and fails on the word "broken".
type upperCompiler struct{}

func (upperCompiler) Compile(_ context.Context, src []byte, _ string, _ []string) ([]byte, error) {
	if bytes.Contains(src, []byte("broken")) {
		return nil, errors.New("expected \"}\"")
	}
	return bytes.ToUpper(src), nil
}

type fakeReloader struct {
	mu     sync.Mutex
	reload int
	styles int
}

func (f *fakeReloader) NotifyReload() { f.mu.Lock(); f.reload++; f.mu.Unlock() }
func (f *fakeReloader) NotifyStyles() { f.mu.Lock(); f.styles++; f.mu.Unlock() }

type recordingNotifier struct {
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	r.events = append(r.events, ev)
	return nil
}
func (r *recordingNotifier) Close() error { return nil }

type countingRecorder struct {
	metrics.NoopRecorder
	results map[string]metrics.ResultLabel
	errors  int
}

func (c *countingRecorder) IncTaskResult(task string, res metrics.ResultLabel) {
	c.results[task] = res
}
func (c *countingRecorder) IncTransformErrors(_ string, n int) { c.errors += n }

func newRunner(t *testing.T, fsys afero.Fs, opts ...Option) *Runner {
	t.Helper()
	return runnerFor(t, fsys, config.Default(), opts...)
}

func runnerFor(t *testing.T, fsys afero.Fs, cfg *config.Config, opts ...Option) *Runner {
	t.Helper()
	defs, err := Definitions(cfg, Deps{Fs: fsys, Compiler: upperCompiler{}})
	require.NoError(t, err)
	return NewRunner(pipeline.NewRunner(fsys, cfg.Root), defs, opts...)
}

func write(t *testing.T, fsys afero.Fs, rel, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, filepath.Join("app", rel), []byte(body), 0o644))
}

func read(t *testing.T, fsys afero.Fs, rel string) string {
	t.Helper()
	b, err := afero.ReadFile(fsys, filepath.Join("app", rel))
	require.NoError(t, err)
	return string(b)
}

func TestDefinitionsOrderAndWatchGlobs(t *testing.T) {
	r := newRunner(t, afero.NewMemMapFs())
	require.Equal(t, []string{Styles, Scripts, Pages, Images, Fonts}, r.Names())

	pages, ok := r.Definition(Pages)
	require.True(t, ok)
	require.Equal(t, []string{"components/**/*.html", "pages/*.html"}, pages.Watch)
	require.Equal(t, NotifyReload, pages.Notify)

	styles, _ := r.Definition(Styles)
	require.Equal(t, NotifyStyles, styles.Notify)

	images, _ := r.Definition(Images)
	require.Len(t, images.Specs, 3)
	require.Equal(t, []string{
		"images/src/*.*", "!images/src/*.svg",
		"!images/src/*.jpg", "!images/src/*.jpeg", "!images/src/*.png",
	}, images.Specs[2].Sources)
}

func TestRunStylesNotifiesStyles(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "scss/style.scss", "body{color:red}")
	write(t, fsys, "scss/_vars.scss", "$x: 1;")

	rl := &fakeReloader{}
	r := newRunner(t, fsys)
	r.SetReloader(rl)

	out := r.Run(t.Context(), Styles)
	require.NoError(t, out.Err)
	require.Equal(t, 1, out.Files)
	require.Equal(t, notify.StatusSuccess, out.Status())
	require.NotEmpty(t, out.RunID)
	require.Equal(t, "BODY{COLOR:RED}", read(t, fsys, "css/style.min.css"))
	require.Equal(t, 1, rl.styles)
	require.Zero(t, rl.reload)
}

func TestRunStylesMinifyPostStep(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "scss/style.scss", "body {\n  color : red ;\n}\n")

	cfg := config.Default()
	cfg.Styles.OutputStyle = config.OutputStyleExpanded
	cfg.Styles.Minify = true
	out := runnerFor(t, fsys, cfg).Run(t.Context(), Styles)
	require.NoError(t, out.Err)

	got := read(t, fsys, "css/style.min.css")
	require.NotEmpty(t, got)
	require.NotContains(t, got, "\n")
	require.NotContains(t, got, " ;")
}

func TestRunStylesFailureKeepsPreviousArtifact(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "scss/style.scss", "broken {")
	write(t, fsys, "css/style.min.css", "OLD")

	rec := &countingRecorder{results: map[string]metrics.ResultLabel{}}
	n := &recordingNotifier{}
	rl := &fakeReloader{}
	r := newRunner(t, fsys, WithRecorder(rec), WithNotifier(n))
	r.SetReloader(rl)

	out := r.Run(t.Context(), Styles)
	require.NoError(t, out.Err)
	require.Zero(t, out.Files)
	require.Equal(t, notify.StatusWarning, out.Status())
	require.Equal(t, "OLD", read(t, fsys, "css/style.min.css"))
	require.Equal(t, metrics.ResultWarning, rec.results[Styles])
	require.Zero(t, rl.styles)

	require.Len(t, n.events, 1)
	ev := n.events[0]
	require.Equal(t, Styles, ev.Task)
	require.NotEmpty(t, ev.Errors)
	require.Equal(t, "sass", ev.Errors[0].Step)
	require.Contains(t, ev.Errors[0].Message, `expected "}"`)
}

func TestRunPagesInlinesPartialsAndReloads(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "components/header.html", "<h1>@@title</h1>")
	write(t, fsys, "pages/index.html", "<body>@@include('header.html', {\"title\": \"Home\"})</body>")

	rl := &fakeReloader{}
	r := newRunner(t, fsys)
	r.SetReloader(rl)

	out := r.Run(t.Context(), Pages)
	require.NoError(t, out.Err)
	require.Equal(t, "<body><h1>Home</h1></body>", read(t, fsys, "index.html"))
	require.Equal(t, 1, rl.reload)
}

func TestRunScriptsMinifies(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "js/main.js", "function add(first, second) {\n  return first + second;\n}\nconsole.log(add(1, 2));\n")

	out := newRunner(t, fsys).Run(t.Context(), Scripts)
	require.NoError(t, out.Err)
	got := read(t, fsys, "js/main.min.js")
	require.NotEmpty(t, got)
	require.NotContains(t, got, "second")
}

func TestRunMissingSourceRootFails(t *testing.T) {
	rec := &countingRecorder{results: map[string]metrics.ResultLabel{}}
	out := newRunner(t, afero.NewMemMapFs(), WithRecorder(rec)).Run(t.Context(), Fonts)
	require.Error(t, out.Err)
	require.True(t, ferrors.HasCategory(out.Err, ferrors.CategoryFileSystem))
	require.Equal(t, notify.StatusFailed, out.Status())
	require.Equal(t, metrics.ResultFailed, rec.results[Fonts])
}

func TestRunUnknownTask(t *testing.T) {
	out := newRunner(t, afero.NewMemMapFs()).Run(t.Context(), "sprites")
	require.True(t, ferrors.HasCategory(out.Err, ferrors.CategoryValidation))
}

func TestOutcomeEventFailed(t *testing.T) {
	o := Outcome{
		RunID:    "id",
		Task:     Fonts,
		Duration: 1500 * time.Microsecond,
		Err:      ferrors.FileSystemError("source directory not found").WithContext("file", "app/fonts/src").Build(),
	}
	ev := o.Event()
	require.Equal(t, notify.StatusFailed, ev.Status)
	require.InDelta(t, 1.5, ev.DurationMS, 0.001)
	require.Equal(t, []notify.FileError{{File: "app/fonts/src", Message: "source directory not found"}}, ev.Errors)
}

func TestObserverCountsTransformErrors(t *testing.T) {
	rec := &countingRecorder{results: map[string]metrics.ResultLabel{}}
	o := NewObserver(rec)
	o.OnTransformError(Styles, ferrors.TransformError("bad").ForFile("sass", "scss/bad.scss").Build())
	require.Equal(t, 1, rec.errors)
}

func listDir(t *testing.T, fsys afero.Fs, rel string) []string {
	t.Helper()
	infos, err := afero.ReadDir(fsys, filepath.Join("app", rel))
	require.NoError(t, err)
	var names []string
	for _, fi := range infos {
		if !fi.IsDir() {
			names = append(names, fi.Name())
		}
	}
	return names
}

func pngSource(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := range 8 {
		for y := range 8 {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func gifSource(t *testing.T) []byte {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, 8, 8), color.Palette{color.Black, color.White})
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 2)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestRunImagesConvertsAndSkipsUpToDate(t *testing.T) {
	fsys := afero.NewMemMapFs()
	write(t, fsys, "images/src/a.png", string(pngSource(t)))
	write(t, fsys, "images/src/b.gif", string(gifSource(t)))
	write(t, fsys, "images/src/c.svg", `<svg xmlns="http://www.w3.org/2000/svg"><rect width="1" height="1"/></svg>`)

	r := newRunner(t, fsys)
	out := r.Run(t.Context(), Images)
	require.NoError(t, out.Err)
	require.Empty(t, out.Warnings)
	require.Equal(t, 5, out.Files)
	require.Equal(t, []string{"a.avif", "a.webp", "b.avif", "b.gif", "b.webp"}, listDir(t, fsys, "images"))

	webp := read(t, fsys, "images/a.webp")
	require.Equal(t, "RIFF", webp[:4])
	require.Equal(t, "WEBP", webp[8:12])
	require.Contains(t, read(t, fsys, "images/a.avif")[:32], "ftyp")
	require.Equal(t, "GIF8", read(t, fsys, "images/b.gif")[:4])

	again := r.Run(t.Context(), Images)
	require.NoError(t, again.Err)
	require.Zero(t, again.Files)
}

func TestRunFontsWritesWebfonts(t *testing.T) {
	fsys := afero.NewMemMapFs()
	font := &webfont.Font{Flavor: 0x00010000, Tables: []webfont.Table{
		{Tag: "glyf", Data: bytes.Repeat([]byte{0, 1, 2, 3}, 128)},
		{Tag: "head", Data: make([]byte, 54)},
		{Tag: "maxp", Data: make([]byte, 32)},
	}}
	write(t, fsys, "fonts/src/go.ttf", string(font.SFNT()))

	out := newRunner(t, fsys).Run(t.Context(), Fonts)
	require.NoError(t, out.Err)
	require.Equal(t, 3, out.Files)
	require.Equal(t, []string{"go.ttf", "go.woff", "go.woff2"}, listDir(t, fsys, "fonts"))

	require.Equal(t, string(font.SFNT()), read(t, fsys, "fonts/go.ttf"))
	require.Equal(t, webfont.FormatWOFF, webfont.Detect([]byte(read(t, fsys, "fonts/go.woff"))))
	require.Equal(t, webfont.FormatWOFF2, webfont.Detect([]byte(read(t, fsys, "fonts/go.woff2"))))
}
