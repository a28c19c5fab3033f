package sinks

import (
	"context"

	"github.com/scrinshot/scrinshotd/internal/metrics"
	"github.com/scrinshot/scrinshotd/internal/progress"
)

// Prometheus translates progress events into the service's Prometheus
// collectors.
type Prometheus struct{}

// NewPrometheus returns a metrics sink. metrics.Init must have been called.
func NewPrometheus() *Prometheus {
	metrics.Init()
	return &Prometheus{}
}

// Consume updates counters and histograms from the batch.
func (s *Prometheus) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageCaptureDone:
			metrics.RecordCapture("success", evt.Dur)
		case progress.StageCaptureError:
			metrics.RecordCapture("failure", evt.Dur)
		case progress.StagePersistError:
			metrics.RecordPersistFailure()
		case progress.StageNotifySent:
			metrics.RecordNotification(evt.NotificationKind, "sent")
		case progress.StageNotifyError:
			metrics.RecordNotification(evt.NotificationKind, "failed")
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *Prometheus) Close(_ context.Context) error {
	return nil
}
