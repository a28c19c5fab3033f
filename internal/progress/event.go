// Package progress defines the lifecycle events emitted by the scheduler
// and capture pipeline, and a hub that fans them out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the capture lifecycle milestone an Event represents.
type Stage string

// Supported stages.
const (
	StageFireStart      Stage = "FIRE_START"
	StageCaptureDone    Stage = "CAPTURE_DONE"
	StageCaptureError   Stage = "CAPTURE_ERROR"
	StagePersistError   Stage = "PERSIST_ERROR"
	StageNotifySent     Stage = "NOTIFY_SENT"
	StageNotifyError    Stage = "NOTIFY_ERROR"
	StageTriggerRemoved Stage = "TRIGGER_REMOVED"
)

// Event captures one milestone of a capture fire.
type Event struct {
	// JobID identifies the job this fire belongs to.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// URL is the capture target observed by this fire.
	URL string
	// ArtifactURI is set for CAPTURE_DONE events.
	ArtifactURI string
	// NotificationKind is set for NOTIFY_* events.
	NotificationKind string
	// Dur captures capture latency for CAPTURE_* events.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageFireStart, StageCaptureDone, StageCaptureError,
		StagePersistError, StageTriggerRemoved:
	case StageNotifySent, StageNotifyError:
		if e.NotificationKind == "" {
			return errors.New("notify events require a notification kind")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
