package config

import (
	"log/slog"

	"git.home.luguber.info/inful/assetbuilder/internal/foundation/normalization"
)

// OutputStyle is the CSS emission style passed to the Sass compiler.
type OutputStyle string

const (
	OutputStyleCompressed OutputStyle = "compressed"
	OutputStyleExpanded   OutputStyle = "expanded"
)

var outputStyleNormalizer = normalization.NewNormalizer(map[string]OutputStyle{
	"compressed": OutputStyleCompressed,
	"expanded":   OutputStyleExpanded,
}, OutputStyleCompressed)

// CacheDriver selects the transform cache backend.
type CacheDriver string

const (
	CacheDriverMemory CacheDriver = "memory"
	CacheDriverSQLite CacheDriver = "sqlite"
)

var cacheDriverNormalizer = normalization.NewNormalizer(map[string]CacheDriver{
	"memory": CacheDriverMemory,
	"sqlite": CacheDriverSQLite,
}, CacheDriverMemory)

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevelNormalizer = normalization.NewNormalizer(map[string]LogLevel{
	"debug":   LogLevelDebug,
	"info":    LogLevelInfo,
	"warn":    LogLevelWarn,
	"warning": LogLevelWarn,
	"error":   LogLevelError,
}, LogLevelInfo)

// NormalizeLogLevel maps a free-form level name onto a LogLevel, defaulting to info.
func NormalizeLogLevel(raw string) LogLevel {
	return logLevelNormalizer.Normalize(raw)
}

// SlogLevel converts the level to its slog equivalent.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var logFormatNormalizer = normalization.NewNormalizer(map[string]LogFormat{
	"json": LogFormatJSON,
	"text": LogFormatText,
}, LogFormatText)

// NormalizeLogFormat maps a free-form format name onto a LogFormat, defaulting to text.
func NormalizeLogFormat(raw string) LogFormat {
	return logFormatNormalizer.Normalize(raw)
}
