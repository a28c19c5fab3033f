package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrinshot/scrinshotd/internal/screenshot"
)

// callLog records the order of store and notifier calls so tests can assert
// persistence always completes before notification.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeEngine struct {
	ref screenshot.ArtifactRef
	err error
}

func (e *fakeEngine) Capture(_ context.Context, _, _ string) (screenshot.ArtifactRef, error) {
	if e.err != nil {
		return screenshot.ArtifactRef{}, e.err
	}
	return e.ref, nil
}

type fakeJobStore struct {
	log     *callLog
	address string
	addrErr error

	recordErr error
	statusErr error

	mu         sync.Mutex
	recorded   []screenshot.ArtifactRef
	active     *bool
	lastError  *string
	statusSets int
}

func (s *fakeJobStore) CreateJob(context.Context, screenshot.Job) (screenshot.Job, error) {
	return screenshot.Job{}, errors.New("not used")
}

func (s *fakeJobStore) GetJob(context.Context, string) (screenshot.Job, error) {
	return screenshot.Job{}, errors.New("not used")
}

func (s *fakeJobStore) UpdateJob(context.Context, string, screenshot.JobUpdate) (screenshot.Job, error) {
	return screenshot.Job{}, errors.New("not used")
}

func (s *fakeJobStore) DeleteJob(context.Context, string) error {
	return errors.New("not used")
}

func (s *fakeJobStore) ListJobsByOwner(context.Context, string) ([]screenshot.Job, error) {
	return nil, errors.New("not used")
}

func (s *fakeJobStore) ListActiveJobs(context.Context) ([]screenshot.Job, error) {
	return nil, errors.New("not used")
}

func (s *fakeJobStore) RecordArtifact(_ context.Context, _ string, ref screenshot.ArtifactRef) ([]screenshot.ArtifactRef, error) {
	s.log.add("record_artifact")
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append([]screenshot.ArtifactRef{ref}, s.recorded...)
	return nil, nil
}

func (s *fakeJobStore) SetStatus(_ context.Context, _ string, active bool, lastError string) error {
	s.log.add("set_status")
	if s.statusErr != nil {
		return s.statusErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = &active
	s.lastError = &lastError
	s.statusSets++
	return nil
}

func (s *fakeJobStore) OwnerAddress(context.Context, string) (string, error) {
	if s.addrErr != nil {
		return "", s.addrErr
	}
	return s.address, nil
}

type fakeNotifier struct {
	log  *callLog
	err  error
	mu   sync.Mutex
	sent []screenshot.Notification
}

func (n *fakeNotifier) Send(_ context.Context, notification screenshot.Notification) error {
	n.log.add("notify:" + string(notification.Kind()))
	if n.err != nil {
		return n.err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func newTestPipeline(engine *fakeEngine, store *fakeJobStore, notifier *fakeNotifier) *Pipeline {
	return New(engine, store, notifier, &fakeClock{now: time.Unix(100, 0).UTC()}, nil, zap.NewNop())
}

func TestPipeline_SuccessPersistsThenNotifiesOwner(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	engine := &fakeEngine{ref: screenshot.ArtifactRef{URI: "memory://screenshots/job-1/a1.png", ContentHash: "a1"}}
	store := &fakeJobStore{log: log, address: "owner@example.com"}
	notifier := &fakeNotifier{log: log}

	outcome := newTestPipeline(engine, store, notifier).Run(context.Background(), "job-1", "http://good.example")

	require.False(t, outcome.Terminal)
	require.Len(t, store.recorded, 1)
	require.Equal(t, "memory://screenshots/job-1/a1.png", store.recorded[0].URI)
	require.Nil(t, store.active, "success must not touch SetStatus; RecordArtifact owns the flip to active")

	require.Len(t, notifier.sent, 1)
	ready, ok := notifier.sent[0].(screenshot.ArtifactReady)
	require.True(t, ok)
	require.Equal(t, "owner@example.com", ready.Address)
	require.Equal(t, "job-1", ready.JobID)
	require.Equal(t, "memory://screenshots/job-1/a1.png", ready.ArtifactURI)

	require.Equal(t, []string{"record_artifact", "notify:artifact_ready"}, log.all())
}

func TestPipeline_CaptureFailurePausesAndIsTerminal(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	engine := &fakeEngine{err: errors.New("DNS error")}
	store := &fakeJobStore{log: log, address: "owner@example.com"}
	notifier := &fakeNotifier{log: log}

	outcome := newTestPipeline(engine, store, notifier).Run(context.Background(), "job-1", "http://bad.example")

	require.True(t, outcome.Terminal)
	require.NotNil(t, store.active)
	require.False(t, *store.active)
	require.Equal(t, "DNS error", *store.lastError)
	require.Empty(t, store.recorded, "failed capture must not touch artifact history")

	require.Len(t, notifier.sent, 1)
	invalid, ok := notifier.sent[0].(screenshot.InvalidURL)
	require.True(t, ok)
	require.Equal(t, "owner@example.com", invalid.Address)
	require.Equal(t, "DNS error", invalid.Reason)

	require.Equal(t, []string{"set_status", "notify:invalid_url"}, log.all())
}

func TestPipeline_PersistFailureAlertsOperatorNotOwner(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	engine := &fakeEngine{ref: screenshot.ArtifactRef{URI: "memory://screenshots/job-1/a1.png"}}
	store := &fakeJobStore{log: log, address: "owner@example.com", recordErr: errors.New("store down")}
	notifier := &fakeNotifier{log: log}

	outcome := newTestPipeline(engine, store, notifier).Run(context.Background(), "job-1", "http://good.example")

	// Transient: the trigger stays live so the next occurrence retries.
	require.False(t, outcome.Terminal)
	require.Nil(t, store.active)
	require.Zero(t, store.statusSets)

	require.Len(t, notifier.sent, 1)
	alert, ok := notifier.sent[0].(screenshot.OperatorAlert)
	require.True(t, ok)
	require.Equal(t, "job-1", alert.JobID)
	require.Contains(t, alert.Reason, "store down")
}

func TestPipeline_NotificationFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	engine := &fakeEngine{ref: screenshot.ArtifactRef{URI: "memory://screenshots/job-1/a1.png"}}
	store := &fakeJobStore{log: log, address: "owner@example.com"}
	notifier := &fakeNotifier{log: log, err: errors.New("smtp relay down")}

	outcome := newTestPipeline(engine, store, notifier).Run(context.Background(), "job-1", "http://good.example")

	require.False(t, outcome.Terminal)
	require.Len(t, store.recorded, 1)
	require.Nil(t, store.active)
	require.Empty(t, notifier.sent)
}

func TestPipeline_UnresolvableOwnerSkipsNotificationOnly(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	engine := &fakeEngine{ref: screenshot.ArtifactRef{URI: "memory://screenshots/job-1/a1.png"}}
	store := &fakeJobStore{log: log, addrErr: screenshot.ErrNoOwnerAddress}
	notifier := &fakeNotifier{log: log}

	outcome := newTestPipeline(engine, store, notifier).Run(context.Background(), "job-1", "http://good.example")

	require.False(t, outcome.Terminal)
	require.Len(t, store.recorded, 1)
	require.Empty(t, notifier.sent)
}

func TestPipeline_UnresolvableOwnerStillPausesOnFailure(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	engine := &fakeEngine{err: errors.New("navigation timeout")}
	store := &fakeJobStore{log: log, addrErr: screenshot.ErrNoOwnerAddress}
	notifier := &fakeNotifier{log: log}

	outcome := newTestPipeline(engine, store, notifier).Run(context.Background(), "job-1", "http://bad.example")

	require.True(t, outcome.Terminal)
	require.NotNil(t, store.active)
	require.False(t, *store.active)
	require.Equal(t, "navigation timeout", *store.lastError)
	require.Empty(t, notifier.sent)
}

func TestPipeline_PausePersistFailureStillTerminal(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	engine := &fakeEngine{err: errors.New("DNS error")}
	store := &fakeJobStore{log: log, address: "owner@example.com", statusErr: errors.New("store down")}
	notifier := &fakeNotifier{log: log}

	outcome := newTestPipeline(engine, store, notifier).Run(context.Background(), "job-1", "http://bad.example")

	require.True(t, outcome.Terminal)
	require.Len(t, notifier.sent, 1)
	require.IsType(t, screenshot.InvalidURL{}, notifier.sent[0])
}
