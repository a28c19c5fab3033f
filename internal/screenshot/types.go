// Package screenshot defines core types shared across subsystems.
package screenshot

import "time"

// Job represents a user-owned recurring screenshot task.
type Job struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"owner_id"`
	URL       string        `json:"url"`
	Title     string        `json:"title"`
	Cadence   string        `json:"cadence,omitempty"`
	Active    bool          `json:"active"`
	LastError string        `json:"last_error,omitempty"`
	Artifacts []ArtifactRef `json:"artifacts"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ArtifactRef points at one stored capture. History is kept newest-first.
type ArtifactRef struct {
	URI         string    `json:"uri"`
	ContentHash string    `json:"content_hash"`
	CapturedAt  time.Time `json:"captured_at"`
}

// JobUpdate carries the fields a caller may change on an existing job.
// Nil pointers leave the corresponding field untouched.
type JobUpdate struct {
	URL     *string `json:"url,omitempty"`
	Title   *string `json:"title,omitempty"`
	Cadence *string `json:"cadence,omitempty"`
}

// FireOutcome reports how one capture fire ended. Terminal means the job's
// automatic schedule must be disabled until the job is edited again.
type FireOutcome struct {
	Terminal bool
}
