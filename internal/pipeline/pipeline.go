// Package pipeline executes one capture fire: it drives the capture
// engine, persists the outcome, and sends at most one notification.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/scrinshot/scrinshotd/internal/progress"
	"github.com/scrinshot/scrinshotd/internal/screenshot"
)

// Pipeline turns a trigger fire into a durable state transition.
type Pipeline struct {
	engine   screenshot.CaptureEngine
	store    screenshot.JobStore
	notifier screenshot.Notifier
	clock    screenshot.Clock
	hub      *progress.Hub
	logger   *zap.Logger
}

// New constructs a Pipeline. hub may be nil to leave progress unwired.
func New(
	engine screenshot.CaptureEngine,
	store screenshot.JobStore,
	notifier screenshot.Notifier,
	clock screenshot.Clock,
	hub *progress.Hub,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		engine:   engine,
		store:    store,
		notifier: notifier,
		clock:    clock,
		hub:      hub,
		logger:   logger,
	}
}

// Run executes one capture attempt for one job. The outcome's state
// transition is persisted before any notification is attempted, so
// notification content is never based on unpersisted state. A terminal
// outcome tells the scheduler to disable the job's trigger.
func (p *Pipeline) Run(ctx context.Context, jobID, url string) screenshot.FireOutcome {
	p.hub.Emit(progress.Event{
		JobID: jobID,
		TS:    p.clock.Now(),
		Stage: progress.StageFireStart,
		URL:   url,
	})

	start := p.clock.Now()
	ref, captureErr := p.engine.Capture(ctx, url, jobID)
	captureDur := p.clock.Now().Sub(start)

	// An unresolvable owner is a soft failure of this step only: capture
	// bookkeeping proceeds, owner notification is skipped.
	address, addrErr := p.store.OwnerAddress(ctx, jobID)
	if addrErr != nil {
		p.logger.Warn("owner address unresolved",
			zap.String("job_id", jobID),
			zap.Error(addrErr),
		)
	}
	hasAddress := addrErr == nil

	if captureErr != nil {
		return p.captureFailed(ctx, jobID, url, address, hasAddress, captureErr, captureDur)
	}
	return p.captureSucceeded(ctx, jobID, url, address, hasAddress, ref, captureDur)
}

func (p *Pipeline) captureSucceeded(
	ctx context.Context,
	jobID string,
	url string,
	address string,
	hasAddress bool,
	ref screenshot.ArtifactRef,
	dur time.Duration,
) screenshot.FireOutcome {
	evicted, err := p.store.RecordArtifact(ctx, jobID, ref)
	if err != nil {
		// Store unavailable: the trigger stays live and the capture is
		// retried at the next natural occurrence. The operator channel
		// hears about it, the owner does not.
		p.hub.Emit(progress.Event{
			JobID: jobID,
			TS:    p.clock.Now(),
			Stage: progress.StagePersistError,
			URL:   url,
			Note:  err.Error(),
		})
		p.logger.Error("artifact persistence failed",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		p.send(ctx, jobID, screenshot.OperatorAlert{JobID: jobID, Reason: err.Error()})
		return screenshot.FireOutcome{}
	}

	p.hub.Emit(progress.Event{
		JobID:       jobID,
		TS:          p.clock.Now(),
		Stage:       progress.StageCaptureDone,
		URL:         url,
		ArtifactURI: ref.URI,
		Dur:         dur,
	})
	if len(evicted) > 0 {
		p.logger.Debug("retention evicted artifacts",
			zap.String("job_id", jobID),
			zap.Int("evicted", len(evicted)),
		)
	}
	if hasAddress {
		p.send(ctx, jobID, screenshot.ArtifactReady{
			Address:     address,
			JobID:       jobID,
			ArtifactURI: ref.URI,
		})
	}
	return screenshot.FireOutcome{}
}

func (p *Pipeline) captureFailed(
	ctx context.Context,
	jobID string,
	url string,
	address string,
	hasAddress bool,
	captureErr error,
	dur time.Duration,
) screenshot.FireOutcome {
	reason := captureErr.Error()
	p.hub.Emit(progress.Event{
		JobID: jobID,
		TS:    p.clock.Now(),
		Stage: progress.StageCaptureError,
		URL:   url,
		Dur:   dur,
		Note:  reason,
	})

	if err := p.store.SetStatus(ctx, jobID, false, reason); err != nil {
		// The pause could not be made durable; the schedule is disabled
		// regardless, so the job cannot keep firing against a bad URL.
		p.logger.Error("pause persistence failed",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
	if hasAddress {
		p.send(ctx, jobID, screenshot.InvalidURL{
			Address: address,
			JobID:   jobID,
			Reason:  reason,
		})
	}
	return screenshot.FireOutcome{Terminal: true}
}

// send delivers a notification best-effort. Failures are logged and
// reported as progress events, never propagated.
func (p *Pipeline) send(ctx context.Context, jobID string, n screenshot.Notification) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Send(ctx, n); err != nil {
		p.hub.Emit(progress.Event{
			JobID:            jobID,
			TS:               p.clock.Now(),
			Stage:            progress.StageNotifyError,
			NotificationKind: string(n.Kind()),
			Note:             err.Error(),
		})
		p.logger.Warn("notification delivery failed",
			zap.String("job_id", jobID),
			zap.String("kind", string(n.Kind())),
			zap.Error(err),
		)
		return
	}
	p.hub.Emit(progress.Event{
		JobID:            jobID,
		TS:               p.clock.Now(),
		Stage:            progress.StageNotifySent,
		NotificationKind: string(n.Kind()),
	})
}
