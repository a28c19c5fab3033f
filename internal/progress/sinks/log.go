// Package sinks contains progress.Sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/scrinshot/scrinshotd/internal/progress"
)

// Log writes progress events to a zap logger.
type Log struct {
	logger *zap.Logger
}

// NewLog returns a logging sink.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Consume logs each event in the batch. Error stages log at warn, the rest
// at debug to keep steady-state output quiet.
func (s *Log) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
			zap.Time("ts", evt.TS),
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		if evt.ArtifactURI != "" {
			fields = append(fields, zap.String("artifact_uri", evt.ArtifactURI))
		}
		if evt.NotificationKind != "" {
			fields = append(fields, zap.String("notification_kind", evt.NotificationKind))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("duration", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageCaptureError, progress.StagePersistError, progress.StageNotifyError:
			s.logger.Warn("capture progress", fields...)
		default:
			s.logger.Debug("capture progress", fields...)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *Log) Close(_ context.Context) error {
	return nil
}
