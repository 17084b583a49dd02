package tasks

import (
	"log/slog"
	"time"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
)

// Observer feeds pipeline callbacks into a metrics recorder.
type Observer struct {
	rec metrics.Recorder
}

var _ pipeline.Observer = Observer{}

// NewObserver creates a pipeline observer backed by rec.
func NewObserver(rec metrics.Recorder) Observer {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return Observer{rec: rec}
}

func (o Observer) OnStepComplete(_ string, step string, d time.Duration, _, _ int) {
	o.rec.ObserveStepDuration(step, d)
}

func (o Observer) OnTransformError(pipelineName string, err *ferrors.ClassifiedError) {
	step := err.Step()
	o.rec.IncTransformErrors(step, 1)
	slog.Debug("Transform error", logfields.Pipeline(pipelineName), logfields.Step(step), logfields.Error(err))
}
