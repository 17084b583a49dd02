// Package notify reports task outcomes to the developer and to other processes.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
)

// Status is the overall result of a task run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
)

// FileError describes one problem reported during a run.
type FileError struct {
	File    string `json:"file,omitempty"`
	Step    string `json:"step,omitempty"`
	Message string `json:"message"`
}

// Event is published once per task run.
type Event struct {
	RunID      string      `json:"run_id"`
	Task       string      `json:"task"`
	Status     Status      `json:"status"`
	Files      int         `json:"files"`
	Errors     []FileError `json:"errors,omitempty"`
	DurationMS float64     `json:"duration_ms"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Notifier receives task events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
	Close() error
}

// LogNotifier writes events to a structured logger. Every file error gets its
// own line so nothing is folded away.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier; nil uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, ev Event) error {
	base := []slog.Attr{
		logfields.Task(ev.Task),
		logfields.RunID(ev.RunID),
		logfields.Count(ev.Files),
		logfields.DurationMS(ev.DurationMS),
	}
	for _, fe := range ev.Errors {
		level := slog.LevelWarn
		if ev.Status == StatusFailed {
			level = slog.LevelError
		}
		n.logger.LogAttrs(ctx, level, fe.Message,
			logfields.Task(ev.Task), logfields.Step(fe.Step), logfields.File(fe.File))
	}
	switch ev.Status {
	case StatusSuccess:
		n.logger.LogAttrs(ctx, slog.LevelInfo, "Task finished", base...)
	case StatusWarning:
		n.logger.LogAttrs(ctx, slog.LevelWarn, "Task finished with errors", append(base, slog.Int("errors", len(ev.Errors)))...)
	default:
		n.logger.LogAttrs(ctx, slog.LevelError, "Task failed", base...)
	}
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// Multi fans an event out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
