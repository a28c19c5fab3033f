package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrinshot/scrinshotd/internal/screenshot"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)}
}

func testJob(id, owner, url string) screenshot.Job {
	return screenshot.Job{
		ID:      id,
		OwnerID: owner,
		URL:     url,
		Title:   "title-" + id,
		Active:  true,
	}
}

func TestJobStore_CreateJobRejectsDuplicates(t *testing.T) {
	t.Parallel()

	store := NewJobStore(JobStoreConfig{}, newStepClock())
	ctx := context.Background()

	created, err := store.CreateJob(ctx, testJob("job-1", "owner-1", "http://example.com"))
	require.NoError(t, err)
	require.False(t, created.CreatedAt.IsZero())

	// Reusing the URL is enough to collide, even with a fresh title.
	dupURL := testJob("job-2", "owner-1", "http://example.com")
	_, err = store.CreateJob(ctx, dupURL)
	require.ErrorIs(t, err, screenshot.ErrDuplicateJob)

	// So is reusing the title with a fresh URL.
	dupTitle := testJob("job-3", "owner-1", "http://other.example")
	dupTitle.Title = created.Title
	_, err = store.CreateJob(ctx, dupTitle)
	require.ErrorIs(t, err, screenshot.ErrDuplicateJob)

	// Same URL and title under a different owner are fine.
	other := testJob("job-4", "owner-2", "http://example.com")
	other.Title = created.Title
	_, err = store.CreateJob(ctx, other)
	require.NoError(t, err)
}

func TestJobStore_UpdateJobRejectsCollisions(t *testing.T) {
	t.Parallel()

	store := NewJobStore(JobStoreConfig{}, newStepClock())
	ctx := context.Background()

	_, err := store.CreateJob(ctx, testJob("job-1", "owner-1", "http://one.example"))
	require.NoError(t, err)
	_, err = store.CreateJob(ctx, testJob("job-2", "owner-1", "http://two.example"))
	require.NoError(t, err)

	takenURL := "http://one.example"
	_, err = store.UpdateJob(ctx, "job-2", screenshot.JobUpdate{URL: &takenURL})
	require.ErrorIs(t, err, screenshot.ErrDuplicateJob)

	takenTitle := "title-job-1"
	_, err = store.UpdateJob(ctx, "job-2", screenshot.JobUpdate{Title: &takenTitle})
	require.ErrorIs(t, err, screenshot.ErrDuplicateJob)

	// The failed edits left the record untouched.
	job, err := store.GetJob(ctx, "job-2")
	require.NoError(t, err)
	require.Equal(t, "http://two.example", job.URL)
	require.Equal(t, "title-job-2", job.Title)

	// A self-edit that keeps the same URL is not a collision.
	ownURL := "http://two.example"
	_, err = store.UpdateJob(ctx, "job-2", screenshot.JobUpdate{URL: &ownURL})
	require.NoError(t, err)
}

func TestJobStore_UpdateJobAppliesPartialChanges(t *testing.T) {
	t.Parallel()

	store := NewJobStore(JobStoreConfig{}, newStepClock())
	ctx := context.Background()

	created, err := store.CreateJob(ctx, testJob("job-1", "owner-1", "http://old.example"))
	require.NoError(t, err)

	newURL := "http://new.example"
	updated, err := store.UpdateJob(ctx, "job-1", screenshot.JobUpdate{URL: &newURL})
	require.NoError(t, err)
	require.Equal(t, "http://new.example", updated.URL)
	require.Equal(t, created.Title, updated.Title)
	require.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	_, err = store.UpdateJob(ctx, "missing", screenshot.JobUpdate{URL: &newURL})
	require.ErrorIs(t, err, screenshot.ErrJobNotFound)
}

func TestJobStore_DeleteJobIsIdempotent(t *testing.T) {
	t.Parallel()

	store := NewJobStore(JobStoreConfig{}, newStepClock())
	ctx := context.Background()

	_, err := store.CreateJob(ctx, testJob("job-1", "owner-1", "http://example.com"))
	require.NoError(t, err)

	require.NoError(t, store.DeleteJob(ctx, "job-1"))
	require.NoError(t, store.DeleteJob(ctx, "job-1"))
	require.NoError(t, store.DeleteJob(ctx, "never-existed"))

	_, err = store.GetJob(ctx, "job-1")
	require.ErrorIs(t, err, screenshot.ErrJobNotFound)
}

func TestJobStore_RecordArtifactPrependsAndReactivates(t *testing.T) {
	t.Parallel()

	store := NewJobStore(JobStoreConfig{}, newStepClock())
	ctx := context.Background()

	_, err := store.CreateJob(ctx, testJob("job-1", "owner-1", "http://example.com"))
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, "job-1", false, "DNS error"))

	_, err = store.RecordArtifact(ctx, "job-1", screenshot.ArtifactRef{URI: "memory://a1"})
	require.NoError(t, err)
	_, err = store.RecordArtifact(ctx, "job-1", screenshot.ArtifactRef{URI: "memory://a2"})
	require.NoError(t, err)

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, job.Active)
	require.Empty(t, job.LastError)
	require.Equal(t, "memory://a2", job.Artifacts[0].URI)
	require.Equal(t, "memory://a1", job.Artifacts[1].URI)
}

func TestJobStore_RecordArtifactEnforcesRetention(t *testing.T) {
	t.Parallel()

	store := NewJobStore(JobStoreConfig{MaxArtifacts: 2}, newStepClock())
	ctx := context.Background()

	_, err := store.CreateJob(ctx, testJob("job-1", "owner-1", "http://example.com"))
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		evicted, err := store.RecordArtifact(ctx, "job-1", screenshot.ArtifactRef{
			URI: fmt.Sprintf("memory://a%d", i),
		})
		require.NoError(t, err)
		if i < 3 {
			require.Empty(t, evicted)
		} else {
			require.Len(t, evicted, 1)
			require.Equal(t, "memory://a1", evicted[0].URI)
		}
	}

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, job.Artifacts, 2)
	require.Equal(t, "memory://a3", job.Artifacts[0].URI)
	require.Equal(t, "memory://a2", job.Artifacts[1].URI)
}

func TestJobStore_ListActiveJobsSkipsPaused(t *testing.T) {
	t.Parallel()

	store := NewJobStore(JobStoreConfig{}, newStepClock())
	ctx := context.Background()

	_, err := store.CreateJob(ctx, testJob("job-1", "owner-1", "http://one.example"))
	require.NoError(t, err)
	_, err = store.CreateJob(ctx, testJob("job-2", "owner-1", "http://two.example"))
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, "job-1", false, "DNS error"))

	active, err := store.ListActiveJobs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "job-2", active[0].ID)
}

func TestJobStore_ListJobsByOwnerNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewJobStore(JobStoreConfig{}, newStepClock())
	ctx := context.Background()

	_, err := store.CreateJob(ctx, testJob("job-1", "owner-1", "http://one.example"))
	require.NoError(t, err)
	_, err = store.CreateJob(ctx, testJob("job-2", "owner-1", "http://two.example"))
	require.NoError(t, err)
	_, err = store.CreateJob(ctx, testJob("job-3", "owner-2", "http://three.example"))
	require.NoError(t, err)

	jobs, err := store.ListJobsByOwner(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "job-2", jobs[0].ID)
	require.Equal(t, "job-1", jobs[1].ID)
}

func TestJobStore_OwnerAddress(t *testing.T) {
	t.Parallel()

	store := NewJobStore(JobStoreConfig{}, newStepClock())
	ctx := context.Background()

	_, err := store.CreateJob(ctx, testJob("job-1", "owner-1", "http://example.com"))
	require.NoError(t, err)

	_, err = store.OwnerAddress(ctx, "job-1")
	require.ErrorIs(t, err, screenshot.ErrNoOwnerAddress)

	store.PutOwner("owner-1", "owner@example.com")
	address, err := store.OwnerAddress(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, "owner@example.com", address)

	_, err = store.OwnerAddress(ctx, "missing")
	require.ErrorIs(t, err, screenshot.ErrJobNotFound)
}
