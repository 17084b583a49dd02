package config

import (
	"path/filepath"
	"slices"
	"strings"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

var knownFontFormats = []string{"ttf", "woff", "woff2"}

// Normalize canonicalizes enumerated fields in place. Unknown enum spellings
// are configuration errors rather than silent fallbacks.
func Normalize(c *Config) error {
	style, err := outputStyleNormalizer.NormalizeWithError(string(c.Styles.OutputStyle))
	if err != nil {
		return fieldError("styles.output_style", err, outputStyleNormalizer.ValidKeys())
	}
	c.Styles.OutputStyle = style

	driver, err := cacheDriverNormalizer.NormalizeWithError(string(c.Cache.Driver))
	if err != nil {
		return fieldError("cache.driver", err, cacheDriverNormalizer.ValidKeys())
	}
	c.Cache.Driver = driver

	level, err := logLevelNormalizer.NormalizeWithError(string(c.Logging.Level))
	if err != nil {
		return fieldError("logging.level", err, logLevelNormalizer.ValidKeys())
	}
	c.Logging.Level = level

	format, err := logFormatNormalizer.NormalizeWithError(string(c.Logging.Format))
	if err != nil {
		return fieldError("logging.format", err, logFormatNormalizer.ValidKeys())
	}
	c.Logging.Format = format

	for i, f := range c.Fonts.Formats {
		c.Fonts.Formats[i] = strings.ToLower(strings.TrimSpace(f))
	}
	return nil
}

// Validate checks bounds and cross-field constraints.
func Validate(c *Config) error {
	if strings.TrimSpace(c.Root) == "" {
		return ferrors.ConfigError("root must not be empty").WithContext("field", "root").Build()
	}
	if strings.TrimSpace(c.Dist) == "" {
		return ferrors.ConfigError("dist must not be empty").WithContext("field", "dist").Build()
	}
	if overlaps(c.Root, c.Dist) {
		// build cleans dist before packaging; it must never contain the sources.
		return ferrors.ConfigError("dist must not overlap root").
			WithContext("root", c.Root).
			WithContext("dist", c.Dist).
			Build()
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ferrors.ConfigError("server.port out of range").WithContext("value", c.Server.Port).Build()
	}
	if c.Images.AVIFQuality < 0 || c.Images.AVIFQuality > 100 {
		return ferrors.ConfigError("images.avif_quality must be within 0-100").WithContext("value", c.Images.AVIFQuality).Build()
	}
	if s := c.Images.AVIFSpeed; s != nil && (*s < 0 || *s > 10) {
		return ferrors.ConfigError("images.avif_speed must be within 0-10").WithContext("value", *s).Build()
	}
	if c.Images.WebPQuality < 0 || c.Images.WebPQuality > 100 {
		return ferrors.ConfigError("images.webp_quality must be within 0-100").WithContext("value", c.Images.WebPQuality).Build()
	}
	if c.Cache.MaxAge < 0 {
		return ferrors.ConfigError("cache.max_age must not be negative").Build()
	}
	if c.Watch.Debounce < 0 || c.Watch.Resync < 0 {
		return ferrors.ConfigError("watch intervals must not be negative").Build()
	}
	for _, f := range c.Fonts.Formats {
		if !slices.Contains(knownFontFormats, f) {
			return ferrors.ConfigError("unknown font format").
				WithContext("value", f).
				WithContext("valid", knownFontFormats).
				Build()
		}
	}
	if c.Styles.Output == "" || c.Scripts.Output == "" {
		return ferrors.ConfigError("bundle output names must not be empty").Build()
	}
	if c.Pages.Prefix == "" {
		return ferrors.ConfigError("pages.prefix must not be empty").Build()
	}
	if c.Cache.Enabled && c.Cache.Driver == CacheDriverSQLite && c.Cache.Path == "" {
		return ferrors.ConfigError("cache.path required for sqlite driver").Build()
	}
	if c.Notify.NATSURL != "" && c.Notify.Subject == "" {
		return ferrors.ConfigError("notify.subject required when nats_url is set").Build()
	}
	return nil
}

func fieldError(field string, err error, valid []string) error {
	return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid "+field).
		Fatal().
		WithContext("field", field).
		WithContext("valid", valid).
		Build()
}

func overlaps(root, dist string) bool {
	r, errR := filepath.Abs(root)
	d, errD := filepath.Abs(dist)
	if errR != nil || errD != nil {
		return filepath.Clean(root) == filepath.Clean(dist)
	}
	if r == d {
		return true
	}
	return strings.HasPrefix(r+string(filepath.Separator), d+string(filepath.Separator))
}
