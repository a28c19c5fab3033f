// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrinshot/scrinshotd/internal/screenshot"
)

// uniqueViolation is the Postgres error code for unique constraint hits.
const uniqueViolation = "23505"

// JobStoreConfig controls the Postgres connection pool and retention.
type JobStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// MaxArtifacts caps each job's history. Zero means unbounded.
	MaxArtifacts int
}

// dbPool is the subset of pgxpool.Pool the store needs. pgxmock
// implements it for tests.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// JobStore persists jobs, artifact history, and owner addresses in
// Postgres.
type JobStore struct {
	pool         dbPool
	clock        screenshot.Clock
	maxArtifacts int
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg JobStoreConfig, clock screenshot.Clock) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: pool, clock: clock, maxArtifacts: cfg.MaxArtifacts}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewJobStoreWithPool(pool dbPool, clock screenshot.Clock, maxArtifacts int) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool, clock: clock, maxArtifacts: maxArtifacts}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a new job row. Unique constraints on
// (owner_id, url) and (owner_id, title) turn duplicates into
// ErrDuplicateJob.
func (s *JobStore) CreateJob(ctx context.Context, job screenshot.Job) (screenshot.Job, error) {
	now := s.clock.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	const query = `
INSERT INTO screenshot_jobs (id, owner_id, url, title, cadence, active, last_error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.pool.Exec(ctx, query,
		job.ID, job.OwnerID, job.URL, job.Title, job.Cadence,
		job.Active, job.LastError, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return screenshot.Job{}, screenshot.ErrDuplicateJob
		}
		return screenshot.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetJob fetches a job row and its artifact history, newest first.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (screenshot.Job, error) {
	const query = `
SELECT id, owner_id, url, title, cadence, active, last_error, created_at, updated_at
FROM screenshot_jobs WHERE id = $1`
	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return screenshot.Job{}, screenshot.ErrJobNotFound
		}
		return screenshot.Job{}, fmt.Errorf("select job: %w", err)
	}
	job.Artifacts, err = s.listArtifacts(ctx, jobID)
	if err != nil {
		return screenshot.Job{}, err
	}
	return job, nil
}

// UpdateJob applies the non-nil fields of update and bumps updated_at.
func (s *JobStore) UpdateJob(ctx context.Context, jobID string, update screenshot.JobUpdate) (screenshot.Job, error) {
	const query = `
UPDATE screenshot_jobs
SET url = COALESCE($2, url),
    title = COALESCE($3, title),
    cadence = COALESCE($4, cadence),
    updated_at = $5
WHERE id = $1
RETURNING id, owner_id, url, title, cadence, active, last_error, created_at, updated_at`
	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID, update.URL, update.Title, update.Cadence, s.clock.Now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return screenshot.Job{}, screenshot.ErrJobNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return screenshot.Job{}, screenshot.ErrDuplicateJob
		}
		return screenshot.Job{}, fmt.Errorf("update job: %w", err)
	}
	job.Artifacts, err = s.listArtifacts(ctx, jobID)
	if err != nil {
		return screenshot.Job{}, err
	}
	return job, nil
}

// DeleteJob removes the job row. Artifact rows go with it via the
// foreign key cascade. Unknown IDs are a no-op.
func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM screenshot_jobs WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// ListJobsByOwner returns the owner's job rows, newest first. Artifact
// history is not loaded for listings.
func (s *JobStore) ListJobsByOwner(ctx context.Context, ownerID string) ([]screenshot.Job, error) {
	const query = `
SELECT id, owner_id, url, title, cadence, active, last_error, created_at, updated_at
FROM screenshot_jobs WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list jobs by owner: %w", err)
	}
	return collectJobs(rows)
}

// ListActiveJobs returns every active job row, newest first.
func (s *JobStore) ListActiveJobs(ctx context.Context) ([]screenshot.Job, error) {
	const query = `
SELECT id, owner_id, url, title, cadence, active, last_error, created_at, updated_at
FROM screenshot_jobs WHERE active ORDER BY created_at DESC, id DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	return collectJobs(rows)
}

// RecordArtifact inserts the ref, reactivates the job, and trims the
// history to the retention cap in one transaction. Evicted refs are
// returned so callers can reclaim the blobs.
func (s *JobStore) RecordArtifact(ctx context.Context, jobID string, ref screenshot.ArtifactRef) ([]screenshot.ArtifactRef, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin record artifact: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insert = `
INSERT INTO screenshot_artifacts (job_id, uri, content_hash, captured_at)
VALUES ($1, $2, $3, $4)`
	if _, err := tx.Exec(ctx, insert, jobID, ref.URI, ref.ContentHash, ref.CapturedAt); err != nil {
		return nil, fmt.Errorf("insert artifact: %w", err)
	}

	const reactivate = `
UPDATE screenshot_jobs SET active = TRUE, last_error = '', updated_at = $2 WHERE id = $1`
	tag, err := tx.Exec(ctx, reactivate, jobID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("reactivate job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, screenshot.ErrJobNotFound
	}

	var evicted []screenshot.ArtifactRef
	if s.maxArtifacts > 0 {
		const trim = `
DELETE FROM screenshot_artifacts
WHERE job_id = $1 AND uri NOT IN (
	SELECT uri FROM screenshot_artifacts
	WHERE job_id = $1 ORDER BY captured_at DESC LIMIT $2
)
RETURNING uri, content_hash, captured_at`
		rows, err := tx.Query(ctx, trim, jobID, s.maxArtifacts)
		if err != nil {
			return nil, fmt.Errorf("trim artifacts: %w", err)
		}
		evicted, err = collectArtifacts(rows)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit record artifact: %w", err)
	}
	return evicted, nil
}

// SetStatus flips the active flag and records the last error text.
func (s *JobStore) SetStatus(ctx context.Context, jobID string, active bool, lastError string) error {
	const query = `
UPDATE screenshot_jobs SET active = $2, last_error = $3, updated_at = $4 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, jobID, active, lastError, s.clock.Now())
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return screenshot.ErrJobNotFound
	}
	return nil
}

// OwnerAddress resolves the notification address for the job's owner.
func (s *JobStore) OwnerAddress(ctx context.Context, jobID string) (string, error) {
	const query = `
SELECT u.address
FROM screenshot_jobs j
LEFT JOIN users u ON u.id = j.owner_id
WHERE j.id = $1`
	var address *string
	if err := s.pool.QueryRow(ctx, query, jobID).Scan(&address); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", screenshot.ErrJobNotFound
		}
		return "", fmt.Errorf("select owner address: %w", err)
	}
	if address == nil || strings.TrimSpace(*address) == "" {
		return "", screenshot.ErrNoOwnerAddress
	}
	return *address, nil
}

func (s *JobStore) listArtifacts(ctx context.Context, jobID string) ([]screenshot.ArtifactRef, error) {
	const query = `
SELECT uri, content_hash, captured_at
FROM screenshot_artifacts WHERE job_id = $1 ORDER BY captured_at DESC`
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return collectArtifacts(rows)
}

func scanJob(row pgx.Row) (screenshot.Job, error) {
	var job screenshot.Job
	err := row.Scan(
		&job.ID, &job.OwnerID, &job.URL, &job.Title, &job.Cadence,
		&job.Active, &job.LastError, &job.CreatedAt, &job.UpdatedAt,
	)
	return job, err
}

func collectJobs(rows pgx.Rows) ([]screenshot.Job, error) {
	defer rows.Close()
	var out []screenshot.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

func collectArtifacts(rows pgx.Rows) ([]screenshot.ArtifactRef, error) {
	defer rows.Close()
	var out []screenshot.ArtifactRef
	for rows.Next() {
		var ref screenshot.ArtifactRef
		if err := rows.Scan(&ref.URI, &ref.ContentHash, &ref.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return out, nil
}
