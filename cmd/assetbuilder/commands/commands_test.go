package commands

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/app"
	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

type upperCompiler struct{}

func (upperCompiler) Compile(_ context.Context, src []byte, _ string, _ []string) ([]byte, error) {
	return bytes.ToUpper(src), nil
}

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Name("assetbuilder"), kong.Vars{"version": "test"}, kong.Exit(func(int) {}))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return cli, kctx
}

// project writes a minimal source tree and a config pointing at it.
func project(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "app")
	files := map[string]string{
		"pages/index.html":    "<main>@@include('nav.html', {\"active\": \"home\"})</main>",
		"components/nav.html": "<nav class=\"@@active\"></nav>",
		"scss/style.scss":     "a{b:c}",
		"js/main.js":          "console.log(1);\n",
	}
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "images", "src"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "fonts", "src"), 0o755))
	cfgPath := filepath.Join(dir, "assetbuilder.yaml")
	yaml := "root: " + root + "\ndist: " + filepath.Join(dir, "dist") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))
	return dir, cfgPath
}

func TestWatchIsDefaultCommand(t *testing.T) {
	_, kctx := parse(t)
	require.Equal(t, "watch", kctx.Command())

	cli, kctx := parse(t, "-v", "--root", "site", "styles")
	require.Equal(t, "styles", kctx.Command())
	require.True(t, cli.Verbose)
	require.Equal(t, "site", cli.Root)
}

func TestPagesCommandWritesOutput(t *testing.T) {
	dir, cfgPath := project(t)
	cli, kctx := parse(t, "--config", cfgPath, "pages")

	require.NoError(t, kctx.Run(&Global{}, cli))
	got, err := os.ReadFile(filepath.Join(dir, "app", "index.html"))
	require.NoError(t, err)
	require.Equal(t, `<main><nav class="home"></nav></main>`, string(got))
}

func TestBuildCommandWithManifest(t *testing.T) {
	dir, cfgPath := project(t)
	cli, kctx := parse(t, "--config", cfgPath, "build", "--manifest")

	var out bytes.Buffer
	g := &Global{Out: &out, AppOptions: []app.Option{app.WithCompiler(upperCompiler{})}}
	require.NoError(t, kctx.Run(g, cli))

	require.FileExists(t, filepath.Join(dir, "dist", "css", "style.min.css"))
	require.FileExists(t, filepath.Join(dir, "dist", "index.html"))
	require.FileExists(t, filepath.Join(dir, "dist", "build-manifest.json"))
	require.NoFileExists(t, filepath.Join(dir, "dist", "pages", "index.html"))
	require.Contains(t, out.String(), "Build success: 3 artifacts")
}

func TestTasksCommandListsDefinitions(t *testing.T) {
	_, cfgPath := project(t)
	cli, kctx := parse(t, "--config", cfgPath, "tasks")

	var out bytes.Buffer
	require.NoError(t, kctx.Run(&Global{Out: &out}, cli))
	for _, name := range []string{"styles", "scripts", "pages", "images", "fonts"} {
		require.Contains(t, out.String(), name)
	}
	require.Contains(t, out.String(), "scss/**/*.scss")
}

func TestInitWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assetbuilder.yaml")
	cli, kctx := parse(t, "--config", path, "init")

	var out bytes.Buffer
	require.NoError(t, kctx.Run(&Global{Out: &out}, cli))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, config.Default().Root, cfg.Root)

	err = kctx.Run(&Global{Out: &out}, cli)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestMissingConfigMapsToConfigExitCode(t *testing.T) {
	cli, kctx := parse(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "clean")
	err := kctx.Run(&Global{}, cli)
	require.Error(t, err)
	require.Equal(t, 7, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestRootOverrideIsValidated(t *testing.T) {
	_, cfgPath := project(t)
	cli, kctx := parse(t, "--config", cfgPath, "--root", filepath.Join(filepath.Dir(cfgPath), "dist", "app"), "tasks")
	err := kctx.Run(&Global{Out: &bytes.Buffer{}}, cli)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestWatchPortOverrideIsValidated(t *testing.T) {
	_, cfgPath := project(t)
	cli, kctx := parse(t, "--config", cfgPath, "watch", "--port", "70000")
	err := kctx.Run(&Global{}, cli)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestLogSettingsPrecedence(t *testing.T) {
	t.Setenv("ASSETBUILDER_LOG_LEVEL", "")
	t.Setenv("ASSETBUILDER_LOG_FORMAT", "")
	require.Equal(t, slog.LevelInfo, logLevel(false, ""))
	require.Equal(t, slog.LevelWarn, logLevel(false, config.LogLevelWarn))
	require.Equal(t, config.LogFormatText, logFormat(config.LogFormatText))

	t.Setenv("ASSETBUILDER_LOG_LEVEL", "error")
	t.Setenv("ASSETBUILDER_LOG_FORMAT", "JSON")
	require.Equal(t, slog.LevelError, logLevel(false, config.LogLevelWarn))
	require.Equal(t, slog.LevelDebug, logLevel(true, config.LogLevelWarn))
	require.Equal(t, config.LogFormatJSON, logFormat(config.LogFormatText))
}
