package errors

import (
	"bytes"
	stderrors "errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil error", err: nil, expected: 0},
		{name: "validation", err: ValidationError("unknown task").Build(), expected: 2},
		{name: "config", err: ConfigError("bad port").Build(), expected: 7},
		{name: "transform", err: TransformError("bad scss").Build(), expected: 11},
		{name: "filesystem", err: FileSystemError("missing root").Build(), expected: 11},
		{name: "setup", err: SetupError("port in use").Build(), expected: 12},
		{name: "internal", err: InternalError("bug").Build(), expected: 10},
		{name: "wrapped setup", err: stderrors.Join(SetupError("watcher").Build()), expected: 12},
		{name: "setup joined after transform", err: stderrors.Join(TransformError("bad scss").Build(), SetupError("port in use").Build()), expected: 12},
		{name: "build", err: BuildError("build aborted").WithCause(FileSystemError("missing root").Build()).Build(), expected: 11},
		{name: "config under build", err: BuildError("build aborted").WithCause(ConfigError("bad root").Build()).Build(), expected: 7},
		{name: "network", err: NetworkError("nats down").Build(), expected: 8},
		{name: "cache", err: CacheError("locked").Build(), expected: 11},
		{name: "unclassified", err: stderrors.New("unknown"), expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, adapter.ExitCodeFor(tt.err))
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	quiet := NewCLIErrorAdapter(false, slog.Default())
	verbose := NewCLIErrorAdapter(true, slog.Default())

	err := SetupError("dev server could not bind").
		WithContext("file", "localhost:3000").
		WithCause(stderrors.New("address already in use")).
		Build()

	require.Equal(t, "Error: dev server could not bind (localhost:3000): address already in use", quiet.FormatError(err))
	require.Equal(t, err.Error(), verbose.FormatError(err))
	require.Equal(t, "Internal error occurred (use -v for details)", quiet.FormatError(InternalError("x").Build()))
	require.Equal(t, "Error: plain", quiet.FormatError(stderrors.New("plain")))
	require.Equal(t, "Error: build aborted: boom", quiet.FormatError(BuildError("build aborted").WithCause(stderrors.New("boom")).Build()))
	require.Empty(t, quiet.FormatError(nil))
}

func TestCLIErrorAdapter_HandleError(t *testing.T) {
	var out, logs bytes.Buffer
	adapter := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(&logs, nil)))
	adapter.out = &out
	code := -1
	adapter.exit = func(c int) { code = c }

	adapter.HandleError(ConfigError("invalid watch debounce").Build())

	require.Equal(t, 7, code)
	require.Contains(t, out.String(), "invalid watch debounce")
	require.Contains(t, logs.String(), "category=config")

	code = -1
	adapter.HandleError(nil)
	require.Equal(t, -1, code)
}

func TestCLIErrorAdapter_WarningsAreNotLogged(t *testing.T) {
	var out, logs bytes.Buffer
	adapter := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(&logs, nil)))
	adapter.out = &out
	adapter.exit = func(int) {}

	adapter.HandleError(CacheError("cache locked").Build())
	require.Empty(t, logs.String())
	require.Contains(t, out.String(), "Internal error occurred")
}
