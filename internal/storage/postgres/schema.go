package postgres

import (
	"context"
	"fmt"
)

// schema is applied at startup. Statements are idempotent so repeated
// boots against the same database are safe.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	address TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS screenshot_jobs (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	cadence TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (owner_id, url),
	UNIQUE (owner_id, title)
);

CREATE TABLE IF NOT EXISTS screenshot_artifacts (
	job_id TEXT NOT NULL REFERENCES screenshot_jobs (id) ON DELETE CASCADE,
	uri TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	captured_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (job_id, uri)
);

CREATE INDEX IF NOT EXISTS screenshot_jobs_owner_idx ON screenshot_jobs (owner_id);
CREATE INDEX IF NOT EXISTS screenshot_artifacts_job_idx ON screenshot_artifacts (job_id, captured_at DESC);
`

// EnsureSchema creates the tables the store needs if they are missing.
func (s *JobStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
