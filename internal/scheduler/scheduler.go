// Package scheduler mediates between the external API and the trigger
// table, and wires trigger fires to the capture pipeline.
package scheduler

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/scrinshot/scrinshotd/internal/metrics"
	"github.com/scrinshot/scrinshotd/internal/progress"
	"github.com/scrinshot/scrinshotd/internal/screenshot"
	"github.com/scrinshot/scrinshotd/internal/trigger"
)

// Pipeline runs one capture fire for one job.
type Pipeline interface {
	Run(ctx context.Context, jobID string, url string) screenshot.FireOutcome
}

// Config controls fire-spec computation and per-fire timeouts.
type Config struct {
	// FireLead offsets the daily fire time from "now" when a job is
	// created or edited.
	FireLead time.Duration
	// FireTimeout bounds a single pipeline run.
	FireTimeout time.Duration
	// HonorCadence parses the job's declared cadence as a standard cron
	// expression instead of deriving the fixed-offset daily schedule.
	// Unparsable cadences fall back to the fixed-offset schedule.
	HonorCadence bool
}

const (
	defaultFireLead    = 2 * time.Minute
	defaultFireTimeout = 5 * time.Minute
)

// Scheduler is the only component that mutates the trigger table.
type Scheduler struct {
	table    *trigger.Table
	pipeline Pipeline
	clock    screenshot.Clock
	cfg      Config
	hub      *progress.Hub
	logger   *zap.Logger
}

// New wires the scheduler to its trigger table and pipeline. The table's
// fire callback is bound here. hub may be nil to leave progress unwired.
func New(table *trigger.Table, pipeline Pipeline, clock screenshot.Clock, cfg Config, hub *progress.Hub, logger *zap.Logger) *Scheduler {
	if cfg.FireLead <= 0 {
		cfg.FireLead = defaultFireLead
	}
	if cfg.FireTimeout <= 0 {
		cfg.FireTimeout = defaultFireTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		table:    table,
		pipeline: pipeline,
		clock:    clock,
		cfg:      cfg,
		hub:      hub,
		logger:   logger,
	}
	table.OnFire(s.onFire)
	return s
}

// Start begins firing triggers.
func (s *Scheduler) Start() {
	s.table.Start()
}

// Stop cancels future fires and drains in-flight ones, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if err := s.table.Stop(ctx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}

// OnJobCreated computes the initial fire spec and registers the trigger.
func (s *Scheduler) OnJobCreated(job screenshot.Job) error {
	schedule, err := s.fireSchedule(job)
	if err != nil {
		return err
	}
	if err := s.table.Register(job.ID, schedule, job.URL); err != nil {
		return fmt.Errorf("register trigger: %w", err)
	}
	metrics.SetActiveTriggers(s.table.Len())
	s.logger.Info("trigger registered",
		zap.String("job_id", job.ID),
		zap.String("url", job.URL),
	)
	return nil
}

// OnJobEdited recomputes the fire spec and atomically replaces the trigger.
// A trigger is installed even when the job is currently paused; its status
// flips back to active on the next successful fire.
func (s *Scheduler) OnJobEdited(job screenshot.Job) error {
	schedule, err := s.fireSchedule(job)
	if err != nil {
		return err
	}
	s.table.Replace(job.ID, schedule, job.URL)
	metrics.SetActiveTriggers(s.table.Len())
	s.logger.Info("trigger replaced",
		zap.String("job_id", job.ID),
		zap.String("url", job.URL),
	)
	return nil
}

// OnJobDeleted removes the trigger. It always succeeds, even when no
// trigger existed.
func (s *Scheduler) OnJobDeleted(jobID string) {
	s.table.Remove(jobID)
	metrics.SetActiveTriggers(s.table.Len())
	s.logger.Info("trigger removed", zap.String("job_id", jobID))
}

// Restore re-registers triggers for jobs that were active before a
// restart. Jobs whose triggers cannot be installed are logged and skipped.
func (s *Scheduler) Restore(jobs []screenshot.Job) {
	for _, job := range jobs {
		if !job.Active {
			continue
		}
		if err := s.OnJobCreated(job); err != nil {
			s.logger.Warn("restore trigger failed",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
		}
	}
}

// ActiveTriggers yields the IDs of jobs with live triggers, for
// observability surfaces.
func (s *Scheduler) ActiveTriggers() iter.Seq[string] {
	return s.table.List()
}

// onFire runs the pipeline for one occurrence. Trigger fires carry no
// caller context, so each fire gets its own bounded one.
func (s *Scheduler) onFire(jobID, url string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FireTimeout)
	defer cancel()

	outcome := s.pipeline.Run(ctx, jobID, url)
	if !outcome.Terminal {
		return
	}
	s.table.Remove(jobID)
	metrics.SetActiveTriggers(s.table.Len())
	s.hub.Emit(progress.Event{
		JobID: jobID,
		TS:    s.clock.Now(),
		Stage: progress.StageTriggerRemoved,
		URL:   url,
	})
	s.logger.Warn("trigger disabled after terminal capture failure",
		zap.String("job_id", jobID),
		zap.String("url", url),
	)
}

// fireSchedule derives the recurrence for a job. The default mirrors the
// original product behavior: once per day at (now + FireLead)-of-day,
// regardless of the declared cadence.
func (s *Scheduler) fireSchedule(job screenshot.Job) (cron.Schedule, error) {
	if s.cfg.HonorCadence && job.Cadence != "" {
		schedule, err := cron.ParseStandard(job.Cadence)
		if err == nil {
			return schedule, nil
		}
		s.logger.Warn("cadence does not parse, using fixed-offset schedule",
			zap.String("job_id", job.ID),
			zap.String("cadence", job.Cadence),
			zap.Error(err),
		)
	}
	at := s.clock.Now().Add(s.cfg.FireLead)
	spec := fmt.Sprintf("%d %d * * *", at.Minute(), at.Hour())
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse fire spec %q: %w", spec, err)
	}
	return schedule, nil
}
