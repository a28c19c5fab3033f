package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/scrinshot/scrinshotd/internal/screenshot"
)

// JobStoreConfig controls retention behavior of the in-memory store.
type JobStoreConfig struct {
	// MaxArtifacts caps each job's history. Zero means unbounded.
	MaxArtifacts int
}

// JobStore provides an in-memory screenshot.JobStore for development
// and testing.
type JobStore struct {
	cfg   JobStoreConfig
	clock screenshot.Clock

	mu     sync.RWMutex
	jobs   map[string]screenshot.Job
	owners map[string]string
}

// NewJobStore constructs a JobStore.
func NewJobStore(cfg JobStoreConfig, clock screenshot.Clock) *JobStore {
	return &JobStore{
		cfg:    cfg,
		clock:  clock,
		jobs:   make(map[string]screenshot.Job),
		owners: make(map[string]string),
	}
}

// PutOwner registers a notification address for an owner.
func (s *JobStore) PutOwner(ownerID, address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[ownerID] = address
}

// CreateJob stores a new job. A second job for the same owner reusing
// either the URL or the title is rejected with ErrDuplicateJob.
func (s *JobStore) CreateJob(_ context.Context, job screenshot.Job) (screenshot.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return screenshot.Job{}, screenshot.ErrDuplicateJob
	}
	if s.conflicts(job) {
		return screenshot.Job{}, screenshot.ErrDuplicateJob
	}
	now := s.clock.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = cloneJob(job)
	return cloneJob(job), nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (screenshot.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return screenshot.Job{}, screenshot.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// UpdateJob applies the non-nil fields of update and bumps UpdatedAt.
// An edit that would collide with another of the owner's jobs fails
// with ErrDuplicateJob and leaves the record unchanged.
func (s *JobStore) UpdateJob(_ context.Context, jobID string, update screenshot.JobUpdate) (screenshot.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return screenshot.Job{}, screenshot.ErrJobNotFound
	}
	if update.URL != nil {
		job.URL = *update.URL
	}
	if update.Title != nil {
		job.Title = *update.Title
	}
	if update.Cadence != nil {
		job.Cadence = *update.Cadence
	}
	if s.conflicts(job) {
		return screenshot.Job{}, screenshot.ErrDuplicateJob
	}
	job.UpdatedAt = s.clock.Now()
	s.jobs[jobID] = job
	return cloneJob(job), nil
}

// DeleteJob removes the record. Unknown IDs are a no-op.
func (s *JobStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}

// ListJobsByOwner returns the owner's jobs, newest first.
func (s *JobStore) ListJobsByOwner(_ context.Context, ownerID string) ([]screenshot.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []screenshot.Job
	for _, job := range s.jobs {
		if job.OwnerID == ownerID {
			out = append(out, cloneJob(job))
		}
	}
	sortJobsNewestFirst(out)
	return out, nil
}

// ListActiveJobs returns every active job, newest first.
func (s *JobStore) ListActiveJobs(_ context.Context) ([]screenshot.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []screenshot.Job
	for _, job := range s.jobs {
		if job.Active {
			out = append(out, cloneJob(job))
		}
	}
	sortJobsNewestFirst(out)
	return out, nil
}

// RecordArtifact prepends ref, marks the job active, clears its last
// error, and trims history to the retention cap. Evicted refs are
// returned so callers can reclaim the blobs.
func (s *JobStore) RecordArtifact(_ context.Context, jobID string, ref screenshot.ArtifactRef) ([]screenshot.ArtifactRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, screenshot.ErrJobNotFound
	}
	job.Artifacts = append([]screenshot.ArtifactRef{ref}, job.Artifacts...)
	var evicted []screenshot.ArtifactRef
	if s.cfg.MaxArtifacts > 0 && len(job.Artifacts) > s.cfg.MaxArtifacts {
		evicted = append([]screenshot.ArtifactRef(nil), job.Artifacts[s.cfg.MaxArtifacts:]...)
		job.Artifacts = job.Artifacts[:s.cfg.MaxArtifacts]
	}
	job.Active = true
	job.LastError = ""
	job.UpdatedAt = s.clock.Now()
	s.jobs[jobID] = job
	return evicted, nil
}

// SetStatus flips the active flag and records the last error text.
func (s *JobStore) SetStatus(_ context.Context, jobID string, active bool, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return screenshot.ErrJobNotFound
	}
	job.Active = active
	job.LastError = lastError
	job.UpdatedAt = s.clock.Now()
	s.jobs[jobID] = job
	return nil
}

// OwnerAddress resolves the notification address for the job's owner.
func (s *JobStore) OwnerAddress(_ context.Context, jobID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return "", screenshot.ErrJobNotFound
	}
	address, ok := s.owners[job.OwnerID]
	if !ok || strings.TrimSpace(address) == "" {
		return "", screenshot.ErrNoOwnerAddress
	}
	return address, nil
}

// conflicts reports whether another of the owner's jobs already uses
// the URL or the title. Callers hold the lock.
func (s *JobStore) conflicts(job screenshot.Job) bool {
	for id, existing := range s.jobs {
		if id == job.ID || existing.OwnerID != job.OwnerID {
			continue
		}
		if existing.URL == job.URL || existing.Title == job.Title {
			return true
		}
	}
	return false
}

func cloneJob(job screenshot.Job) screenshot.Job {
	out := job
	out.Artifacts = append([]screenshot.ArtifactRef(nil), job.Artifacts...)
	return out
}

func sortJobsNewestFirst(jobs []screenshot.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}
