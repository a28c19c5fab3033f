// Package log implements a notifier that writes to the service log.
// Useful for local runs where no Pub/Sub topic is available.
package log

import (
	"context"

	"go.uber.org/zap"

	"github.com/scrinshot/scrinshotd/internal/screenshot"
)

// Notifier logs notifications instead of delivering them.
type Notifier struct {
	logger *zap.Logger
}

// New returns a logging Notifier.
func New(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{logger: logger}
}

// Send logs the notification and always succeeds.
func (n *Notifier) Send(_ context.Context, notification screenshot.Notification) error {
	fields := []zap.Field{zap.String("kind", string(notification.Kind()))}
	switch v := notification.(type) {
	case screenshot.ArtifactReady:
		fields = append(fields,
			zap.String("address", v.Address),
			zap.String("job_id", v.JobID),
			zap.String("artifact_uri", v.ArtifactURI),
		)
	case screenshot.InvalidURL:
		fields = append(fields,
			zap.String("address", v.Address),
			zap.String("job_id", v.JobID),
			zap.String("reason", v.Reason),
		)
	case screenshot.OperatorAlert:
		fields = append(fields,
			zap.String("job_id", v.JobID),
			zap.String("reason", v.Reason),
		)
	}
	n.logger.Info("notification", fields...)
	return nil
}
