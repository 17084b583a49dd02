package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/spf13/afero"

	"git.home.luguber.info/inful/assetbuilder/internal/app"
	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/transform"
)

// Global carries process-wide values into command Run methods.
type Global struct {
	Logger *slog.Logger
	// Out receives user-facing output; stdout when nil.
	Out io.Writer
	// AppOptions are passed to app.New (tests inject fakes here).
	AppOptions []app.Option
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (default: assetbuilder.yaml if present)"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Root    string           `help:"Override the source root directory"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Watch   WatchCmd   `cmd:"" default:"1" help:"Run all tasks, serve the root with live reload and rebuild on change"`
	Styles  StylesCmd  `cmd:"" help:"Compile SCSS into the minified stylesheet"`
	Scripts ScriptsCmd `cmd:"" help:"Bundle and minify JavaScript"`
	Pages   PagesCmd   `cmd:"" help:"Inline HTML partials into pages"`
	Images  ImagesCmd  `cmd:"" help:"Convert images to AVIF/WebP and optimize the rest"`
	Fonts   FontsCmd   `cmd:"" help:"Generate webfonts"`
	Build   BuildCmd   `cmd:"" help:"Clean the distribution directory, run every task and package the artifacts"`
	Clean   CleanCmd   `cmd:"" help:"Remove the distribution directory"`
	Tasks   TasksCmd   `cmd:"" help:"List the available tasks"`
	Init    InitCmd    `cmd:"" help:"Write a default configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	setupLogging(logLevel(c.Verbose, ""), logFormat(config.LogFormatText))
	return nil
}

// logLevel resolves the level: --verbose wins, then ASSETBUILDER_LOG_LEVEL,
// then the configured level.
func logLevel(verbose bool, configured config.LogLevel) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	if env := os.Getenv("ASSETBUILDER_LOG_LEVEL"); env != "" {
		return config.NormalizeLogLevel(env).SlogLevel()
	}
	if configured != "" {
		return configured.SlogLevel()
	}
	return slog.LevelInfo
}

// logFormat lets ASSETBUILDER_LOG_FORMAT override the configured format.
func logFormat(configured config.LogFormat) config.LogFormat {
	if env := os.Getenv("ASSETBUILDER_LOG_FORMAT"); env != "" {
		return config.NormalizeLogFormat(env)
	}
	return configured
}

func setupLogging(level slog.Level, format config.LogFormat) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if format == config.LogFormatJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// loadConfig loads the configuration named by --config or discovered in the
// working directory and applies CLI overrides.
func loadConfig(root *CLI) (*config.Config, error) {
	path := root.Config
	if path == "" {
		path = config.Discover(".")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	err = applyOverrides(cfg, func(c *config.Config) {
		if root.Root != "" {
			c.Root = root.Root
		}
	})
	if err != nil {
		return nil, err
	}
	setupLogging(logLevel(root.Verbose, cfg.Logging.Level), logFormat(cfg.Logging.Format))
	if path != "" {
		slog.Debug("Loaded configuration", "file", path)
	}
	return cfg, nil
}

// applyOverrides applies flag overrides to cfg and validates the result, so a
// flag can never smuggle in a value the config file would be rejected for.
func applyOverrides(cfg *config.Config, override func(*config.Config)) error {
	override(cfg)
	return config.Validate(cfg)
}

// openApp loads the configuration and constructs the application.
func openApp(g *Global, root *CLI) (*app.App, error) {
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	return newApp(g, cfg)
}

// newApp builds the application on the OS filesystem and the configured sass
// executable; Global.AppOptions are applied last and may replace either.
func newApp(g *Global, cfg *config.Config) (*app.App, error) {
	opts := []app.Option{
		app.WithFs(afero.NewOsFs()),
		app.WithCompiler(transform.SassBinary{Path: cfg.Styles.SassBinary}),
	}
	if g != nil {
		opts = append(opts, g.AppOptions...)
	}
	return app.New(cfg, opts...)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
