package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrinshot/scrinshotd/internal/config"
	"github.com/scrinshot/scrinshotd/internal/id/uuid"
	"github.com/scrinshot/scrinshotd/internal/screenshot"
	"github.com/scrinshot/scrinshotd/internal/storage/memory"
)

type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// fakeScheduling records trigger lifecycle calls.
type fakeScheduling struct {
	mu        sync.Mutex
	created   []string
	edited    []string
	deleted   []string
	createErr error
}

func (f *fakeScheduling) OnJobCreated(job screenshot.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, job.ID)
	return nil
}

func (f *fakeScheduling) OnJobEdited(job screenshot.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, job.ID)
	return nil
}

func (f *fakeScheduling) OnJobDeleted(jobID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, jobID)
}

func (f *fakeScheduling) ActiveTriggers() iter.Seq[string] {
	f.mu.Lock()
	ids := append([]string(nil), f.created...)
	f.mu.Unlock()
	sort.Strings(ids)
	return func(yield func(string) bool) {
		for _, id := range ids {
			if !yield(id) {
				return
			}
		}
	}
}

type fixture struct {
	server *Server
	store  *memory.JobStore
	blobs  *memory.BlobStore
	sched  *fakeScheduling
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	clock := &tickClock{now: time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)}
	store := memory.NewJobStore(memory.JobStoreConfig{}, clock)
	blobs := memory.NewBlobStore()
	sched := &fakeScheduling{}
	server := NewServer(store, blobs, sched, uuid.New(), cfg, zap.NewNop())
	return &fixture{server: server, store: store, blobs: blobs, sched: sched}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createJob(t *testing.T, url, title string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/screenshots/", map[string]string{
		"owner_id": "owner-1",
		"url":      url,
		"title":    title,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Job screenshot.Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Job.ID
}

func TestCreateJobRegistersTrigger(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	jobID := f.createJob(t, "http://example.com", "homepage")

	require.Equal(t, []string{jobID}, f.sched.created)

	job, err := f.store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.True(t, job.Active)
	require.Equal(t, "http://example.com", job.URL)
}

func TestCreateJobValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})

	rec := f.do(t, http.MethodPost, "/v1/screenshots/", map[string]string{
		"owner_id": "owner-1",
		"url":      "not a url",
		"title":    "homepage",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/screenshots/", map[string]string{
		"url":   "http://example.com",
		"title": "homepage",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJobDuplicateConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	f.createJob(t, "http://example.com", "homepage")

	rec := f.do(t, http.MethodPost, "/v1/screenshots/", map[string]string{
		"owner_id": "owner-1",
		"url":      "http://example.com",
		"title":    "homepage",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	// A different title does not help while the URL is taken.
	rec = f.do(t, http.MethodPost, "/v1/screenshots/", map[string]string{
		"owner_id": "owner-1",
		"url":      "http://example.com",
		"title":    "pricing",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateJobDuplicateConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	f.createJob(t, "http://one.example", "homepage")
	jobID := f.createJob(t, "http://two.example", "pricing")

	rec := f.do(t, http.MethodPut, "/v1/screenshots/"+jobID+"/", map[string]string{
		"url": "http://one.example",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateJobRollsBackWhenTriggerInstallFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	f.sched.createErr = fmt.Errorf("table broken")

	rec := f.do(t, http.MethodPost, "/v1/screenshots/", map[string]string{
		"owner_id": "owner-1",
		"url":      "http://example.com",
		"title":    "homepage",
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	jobs, err := f.store.ListJobsByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	rec := f.do(t, http.MethodGet, "/v1/screenshots/missing/", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateJobReplacesTrigger(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	jobID := f.createJob(t, "http://old.example", "homepage")

	rec := f.do(t, http.MethodPut, "/v1/screenshots/"+jobID+"/", map[string]string{
		"url": "http://new.example",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, []string{jobID}, f.sched.edited)

	job, err := f.store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, "http://new.example", job.URL)
	require.Equal(t, "homepage", job.Title)
}

func TestDeleteJobIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	jobID := f.createJob(t, "http://example.com", "homepage")

	_, err := f.blobs.PutObject(context.Background(), "screenshots/"+jobID+"/a1.png", "image/png", []byte("png"))
	require.NoError(t, err)

	rec := f.do(t, http.MethodDelete, "/v1/screenshots/"+jobID+"/", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{jobID}, f.sched.deleted)
	require.Equal(t, 0, f.blobs.Len())

	// Deleting again still succeeds.
	rec = f.do(t, http.MethodDelete, "/v1/screenshots/"+jobID+"/", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestListJobsRequiresOwner(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	rec := f.do(t, http.MethodGet, "/v1/screenshots/", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	f.createJob(t, "http://example.com", "homepage")
	rec = f.do(t, http.MethodGet, "/v1/screenshots/?owner_id=owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Jobs []screenshot.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1)
}

func TestListArtifactsNewestFirst(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	jobID := f.createJob(t, "http://example.com", "homepage")

	ctx := context.Background()
	_, err := f.store.RecordArtifact(ctx, jobID, screenshot.ArtifactRef{URI: "memory://a1"})
	require.NoError(t, err)
	_, err = f.store.RecordArtifact(ctx, jobID, screenshot.ArtifactRef{URI: "memory://a2"})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/v1/screenshots/"+jobID+"/artifacts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Artifacts []screenshot.ArtifactRef `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Artifacts, 2)
	require.Equal(t, "memory://a2", resp.Artifacts[0].URI)
	require.Equal(t, "memory://a1", resp.Artifacts[1].URI)
}

func TestListTriggers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	jobID := f.createJob(t, "http://example.com", "homepage")

	rec := f.do(t, http.MethodGet, "/v1/triggers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), jobID))
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "sekrit"}})

	rec := f.do(t, http.MethodGet, "/v1/triggers", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/triggers", nil)
	req.Header.Set("X-API-Key", "sekrit")
	ok := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(ok, req)
	require.Equal(t, http.StatusOK, ok.Code)
}
