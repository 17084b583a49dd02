// Package config loads and validates the assetbuilder YAML configuration.
//
// Every field has a default mirroring the conventional project layout
// (sources under app/, package under dist/), so a configuration file is optional.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// DefaultFileNames are tried, in order, when no config path is given.
var DefaultFileNames = []string{"assetbuilder.yaml", "assetbuilder.yml", ".assetbuilder.yaml"}

// Config represents the application configuration.
type Config struct {
	Root    string        `yaml:"root"`
	Dist    string        `yaml:"dist"`
	Styles  StylesConfig  `yaml:"styles"`
	Scripts ScriptsConfig `yaml:"scripts"`
	Pages   PagesConfig   `yaml:"pages"`
	Images  ImagesConfig  `yaml:"images"`
	Fonts   FontsConfig   `yaml:"fonts"`
	Server  ServerConfig  `yaml:"server"`
	Watch   WatchConfig   `yaml:"watch"`
	Build   BuildConfig   `yaml:"build"`
	Cache   CacheConfig   `yaml:"cache"`
	Notify  NotifyConfig  `yaml:"notify"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// StylesConfig configures the SCSS to minified CSS task.
type StylesConfig struct {
	Sources     []string    `yaml:"sources"`
	Dest        string      `yaml:"dest"`
	Output      string      `yaml:"output"`
	OutputStyle OutputStyle `yaml:"output_style"`
	// Minify runs the concatenated bundle through the built-in CSS minifier.
	// Pair it with output_style: expanded to keep Sass output readable in errors.
	Minify     bool     `yaml:"minify"`
	LoadPaths  []string `yaml:"load_paths,omitempty"`
	SassBinary string   `yaml:"sass_binary"`
	Watch      []string `yaml:"watch"`
}

// ScriptsConfig configures the JavaScript bundle task.
type ScriptsConfig struct {
	Sources []string `yaml:"sources"`
	Dest    string   `yaml:"dest"`
	Output  string   `yaml:"output"`
	Mangle  bool     `yaml:"mangle"`
	Watch   []string `yaml:"watch"`
}

// PagesConfig configures HTML partial inlining.
type PagesConfig struct {
	Sources     []string `yaml:"sources"`
	Dest        string   `yaml:"dest"`
	IncludeBase string   `yaml:"include_base"`
	Prefix      string   `yaml:"prefix"`
	Watch       []string `yaml:"watch"`
}

// ImagesConfig configures image format conversion and optimization.
type ImagesConfig struct {
	Sources     []string `yaml:"sources"`
	Dest        string   `yaml:"dest"`
	AVIFQuality int      `yaml:"avif_quality"`
	// AVIFSpeed is 0 (slowest, smallest) to 10; unset uses the encoder default.
	AVIFSpeed   *int `yaml:"avif_speed,omitempty"`
	WebPQuality int  `yaml:"webp_quality"`
	// OptimizeExclude lists globs the lossless optimizer leaves alone.
	OptimizeExclude []string `yaml:"optimize_exclude"`
	Watch           []string `yaml:"watch"`
}

// FontsConfig configures webfont generation.
type FontsConfig struct {
	Sources []string `yaml:"sources"`
	Dest    string   `yaml:"dest"`
	Formats []string `yaml:"formats"`
	WOFF2   bool     `yaml:"woff2"`
	Watch   []string `yaml:"watch"`
}

// ServerConfig configures the development server.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// WatchConfig controls how change events turn into task runs.
type WatchConfig struct {
	// Debounce coalesces bursts of events for one task. Zero disables it.
	Debounce time.Duration `yaml:"debounce"`
	// Serialize keeps at most one run per task in flight with one queued follow-up.
	Serialize bool `yaml:"serialize"`
	// Resync re-runs every task on an interval. Zero disables it.
	Resync time.Duration `yaml:"resync"`
}

// BuildConfig controls the production package.
type BuildConfig struct {
	Artifacts []string `yaml:"artifacts"`
	Manifest  bool     `yaml:"manifest"`
}

// CacheConfig controls the transform output cache.
type CacheConfig struct {
	Enabled bool        `yaml:"enabled"`
	Driver  CacheDriver `yaml:"driver"`
	// Path is resolved against Root when relative.
	Path string `yaml:"path"`
	// MaxAge expires entries not written for this long. Zero keeps them forever.
	MaxAge time.Duration `yaml:"max_age"`
}

// NotifyConfig configures outbound task notifications.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject"`
}

// MetricsConfig configures the optional Prometheus listener.
type MetricsConfig struct {
	Address string `yaml:"address,omitempty"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Addr returns the dev server listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CachePath returns the SQLite cache location. Relative paths are resolved
// against Root so runs with a different --root keep separate caches.
func (c *Config) CachePath() string {
	if c.Cache.Path == "" || filepath.IsAbs(c.Cache.Path) {
		return c.Cache.Path
	}
	return filepath.Join(c.Root, filepath.FromSlash(c.Cache.Path))
}

// Discover returns the first default config file present in dir, or "".
func Discover(dir string) string {
	for _, name := range DefaultFileNames {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

// Load reads configuration from configPath. An empty path yields the defaults.
// Environment variables from .env and .env.local are loaded first and ${VAR}
// references in the file are expanded.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	cfg := Default()
	if configPath == "" {
		return cfg, finalize(cfg)
	}

	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ferrors.ConfigError("configuration file not found").
			WithContext("file", configPath).
			Build()
	}
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			Fatal().
			WithContext("file", configPath).
			Build()
	}

	if err := Parse([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, err
	}
	if err := finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over cfg. Fields absent from data keep their current values.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to unmarshal config").Fatal().Build()
	}
	return nil
}

func finalize(cfg *Config) error {
	if err := Normalize(cfg); err != nil {
		return err
	}
	return Validate(cfg)
}

// loadEnvFiles loads .env/.env.local if present. Existing process variables win.
func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			slog.Warn("Could not load environment file", "file", name, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "file", name)
	}
}

// Init writes the default configuration to configPath.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return ferrors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("file", configPath).
			Build()
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return ferrors.InternalError("failed to marshal default config").WithCause(err).Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write config file").
			WithContext("file", configPath).
			Build()
	}
	return nil
}
