// Package trigger implements the in-memory registry of live recurring
// timers, one per active job.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrDuplicateTrigger is returned by Register when the job already has a
// live timer. Callers must Remove (or use Replace) before re-adding.
var ErrDuplicateTrigger = errors.New("trigger already registered")

// FireFunc is invoked once per timer occurrence with the inputs needed to
// re-run the capture pipeline.
type FireFunc func(jobID string, url string)

type entry struct {
	id  cron.EntryID
	url string
}

// Table maps job IDs to cancellable recurring timers. Fires for distinct
// jobs run concurrently; occurrences of the same job that overlap an
// in-flight fire are skipped, never run in parallel.
type Table struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]entry
	fire    FireFunc
	logger  *zap.Logger
}

// NewTable constructs a stopped Table. Call OnFire and Start before
// registering production triggers.
func NewTable(logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Table{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		entries: make(map[string]entry),
		logger:  logger,
	}
}

// OnFire sets the callback invoked on every occurrence. The scheduler calls
// this exactly once during wiring.
func (t *Table) OnFire(fn FireFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fire = fn
}

// Start begins firing registered triggers.
func (t *Table) Start() {
	t.cron.Start()
}

// Stop cancels future occurrences and waits for in-flight fires to finish,
// bounded by ctx.
func (t *Table) Stop(ctx context.Context) error {
	drained := t.cron.Stop()
	select {
	case <-drained.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("trigger table drain: %w", ctx.Err())
	}
}

// Register installs a new recurring timer for jobID. It fails with
// ErrDuplicateTrigger when one already exists.
func (t *Table) Register(jobID string, schedule cron.Schedule, url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[jobID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTrigger, jobID)
	}
	t.entries[jobID] = entry{id: t.schedule(jobID, schedule, url), url: url}
	return nil
}

// Replace atomically cancels any existing timer for jobID and installs a
// new one. At most one in-flight fire from the old timer may still be
// observed after Replace returns.
func (t *Table) Replace(jobID string, schedule cron.Schedule, url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, exists := t.entries[jobID]; exists {
		t.cron.Remove(old.id)
	}
	t.entries[jobID] = entry{id: t.schedule(jobID, schedule, url), url: url}
}

// Remove cancels and deletes the timer for jobID. Removing an unknown job
// is a no-op. An already-running fire completes but cannot resurrect the
// entry.
func (t *Table) Remove(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, exists := t.entries[jobID]
	if !exists {
		return
	}
	t.cron.Remove(e.id)
	delete(t.entries, jobID)
}

// Len reports the number of live triggers.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Contains reports whether jobID has a live trigger.
func (t *Table) Contains(jobID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, exists := t.entries[jobID]
	return exists
}

// List yields the IDs of jobs with live triggers in sorted order. The
// sequence snapshots the table when iteration begins and may be restarted.
func (t *Table) List() iter.Seq[string] {
	return func(yield func(string) bool) {
		t.mu.Lock()
		ids := make([]string, 0, len(t.entries))
		for id := range t.entries {
			ids = append(ids, id)
		}
		t.mu.Unlock()
		sort.Strings(ids)
		for _, id := range ids {
			if !yield(id) {
				return
			}
		}
	}
}

// schedule installs the cron entry. Callers must hold t.mu. Each entry gets
// its own SkipIfStillRunning chain so overlap skipping is per job.
func (t *Table) schedule(jobID string, schedule cron.Schedule, url string) cron.EntryID {
	run := cron.FuncJob(func() {
		t.mu.Lock()
		fn := t.fire
		t.mu.Unlock()
		if fn == nil {
			t.logger.Warn("trigger fired with no callback bound", zap.String("job_id", jobID))
			return
		}
		fn(jobID, url)
	})
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cronLogger{t.logger})).Then(run)
	return t.cron.Schedule(schedule, wrapped)
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
