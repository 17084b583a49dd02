package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyTask       = "task"
	KeyPipeline   = "pipeline"
	KeyStep       = "step"
	KeyFile       = "file"
	KeyPath       = "path"
	KeyRunID      = "run_id"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyEvent      = "event"
	KeyAddr       = "addr"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyClients    = "clients"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Task(name string) slog.Attr      { return slog.String(KeyTask, name) }
func Pipeline(name string) slog.Attr  { return slog.String(KeyPipeline, name) }
func Step(name string) slog.Attr      { return slog.String(KeyStep, name) }
func File(p string) slog.Attr         { return slog.String(KeyFile, p) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Event(op string) slog.Attr       { return slog.String(KeyEvent, op) }
func Addr(a string) slog.Attr         { return slog.String(KeyAddr, a) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Clients(n int) slog.Attr         { return slog.Int(KeyClients, n) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
