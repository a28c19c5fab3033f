package screenshot

import (
	"context"
	"time"
)

// JobStore persists job records and their artifact history.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) (Job, error)
	GetJob(ctx context.Context, jobID string) (Job, error)
	UpdateJob(ctx context.Context, jobID string, update JobUpdate) (Job, error)
	// DeleteJob removes the record and its artifact history. Deleting an
	// unknown job is a no-op, not an error.
	DeleteJob(ctx context.Context, jobID string) error
	ListJobsByOwner(ctx context.Context, ownerID string) ([]Job, error)
	// ListActiveJobs returns every job whose status is active. Used to
	// restore triggers after a process restart.
	ListActiveJobs(ctx context.Context) ([]Job, error)

	// RecordArtifact prepends ref to the job's history, marks the job
	// active, and clears its last error. It returns any refs evicted by the
	// retention cap so callers can reclaim the underlying blobs.
	RecordArtifact(ctx context.Context, jobID string, ref ArtifactRef) ([]ArtifactRef, error)
	// SetStatus flips the active flag and records the last error text.
	SetStatus(ctx context.Context, jobID string, active bool, lastError string) error
	// OwnerAddress resolves the notification address for the job's owner.
	// Returns ErrNoOwnerAddress when the owner cannot be resolved.
	OwnerAddress(ctx context.Context, jobID string) (string, error)
}

// CaptureEngine performs one screenshot attempt and returns where the
// resulting artifact was stored.
type CaptureEngine interface {
	Capture(ctx context.Context, url string, jobID string) (ArtifactRef, error)
}

// Notifier delivers a typed notification. Send failures are logged by
// callers and never alter job or schedule state.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
	// RemovePrefix deletes every object under prefix. Used to reclaim a
	// job's artifact storage when the job is deleted.
	RemovePrefix(ctx context.Context, prefix string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Hasher computes digests for artifact integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator produces job and artifact IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
