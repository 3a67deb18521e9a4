// Package scheduler owns every armed job and fires it through gocron.
//
// Armed jobs live in a table keyed by job id. Arming an id that is already
// present removes the old gocron job first, so a key never fires twice.
// Each entry carries a sequence number; a firing whose sequence no longer
// matches the table was superseded or disarmed and is dropped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/remindino/internal/jobs"
	"github.com/edgard/remindino/internal/logger"
	"github.com/edgard/remindino/internal/metrics"
)

// DefaultDispatchTimeout bounds a single handler run.
const DefaultDispatchTimeout = 30 * time.Second

type entry struct {
	job      jobs.Job
	gocronID uuid.UUID
	seq      uint64
}

// Scheduler is the job table plus the gocron scheduler that fires it.
type Scheduler struct {
	cron    gocron.Scheduler
	clock   clockwork.Clock
	logger  *slog.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	armed    map[string]entry
	handlers map[jobs.Kind]jobs.Handler
	seq      uint64
	running  bool
}

// New creates a Scheduler driven by clock. Jobs may be armed before Start.
func New(log *slog.Logger, clock clockwork.Clock, timeout time.Duration) (*Scheduler, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}

	cron, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(logger.SchedulerLogger(log)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron,
		clock:    clock,
		logger:   log.With("component", "scheduler"),
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
		armed:    make(map[string]entry),
		handlers: make(map[jobs.Kind]jobs.Handler),
	}, nil
}

// RegisterHandler sets the handler run when a job of kind fires.
func (s *Scheduler) RegisterHandler(kind jobs.Kind, h jobs.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

func (s *Scheduler) definition(job jobs.Job) (gocron.JobDefinition, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	switch {
	case job.Cron != "":
		return gocron.CronJob(job.Cron, false), nil
	case job.Every > 0:
		return gocron.DurationJob(job.Every), nil
	case job.At.Sub(s.clock.Now()) < time.Second:
		return gocron.OneTimeJob(gocron.OneTimeJobStartImmediately()), nil
	default:
		return gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(job.At)), nil
	}
}

// Arm registers job, replacing any job armed under the same id.
func (s *Scheduler) Arm(job jobs.Job) error {
	def, err := s.definition(job)
	if err != nil {
		return fmt.Errorf("invalid job %q: %w", job.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(job.ID)

	s.seq++
	seq := s.seq
	gj, err := s.cron.NewJob(
		def,
		gocron.NewTask(s.fire, job, seq),
		gocron.WithName(job.ID),
		gocron.WithTags(string(job.Kind)),
	)
	if err != nil {
		s.reportLocked()
		return fmt.Errorf("failed to arm job %q: %w", job.ID, err)
	}

	s.armed[job.ID] = entry{job: job, gocronID: gj.ID(), seq: seq}
	s.reportLocked()
	s.logger.Debug("Job armed", "job_id", job.ID, "kind", job.Kind, "at", job.At, "every", job.Every, "cron", job.Cron)
	return nil
}

// Disarm removes the job armed under id, if any.
func (s *Scheduler) Disarm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeLocked(id) {
		s.logger.Debug("Job disarmed", "job_id", id)
	}
	s.reportLocked()
}

// DisarmPrefix removes every job whose id starts with prefix.
func (s *Scheduler) DisarmPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.armed {
		if strings.HasPrefix(id, prefix) {
			s.removeLocked(id)
		}
	}
	s.reportLocked()
}

func (s *Scheduler) removeLocked(id string) bool {
	old, ok := s.armed[id]
	if !ok {
		return false
	}
	delete(s.armed, id)
	// A fired one-shot may already be gone from gocron.
	if err := s.cron.RemoveJob(old.gocronID); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		s.logger.Warn("Failed to remove gocron job", "job_id", id, "error", err)
	}
	return true
}

func (s *Scheduler) reportLocked() {
	metrics.SetArmedJobs(len(s.armed))
}

// Armed returns a snapshot of the armed jobs ordered by id.
func (s *Scheduler) Armed() []jobs.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]jobs.Job, 0, len(s.armed))
	for _, e := range s.armed {
		out = append(out, e.job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// fire runs the handler for one firing of job. Delivery errors are logged
// and counted; the job is never retried.
func (s *Scheduler) fire(job jobs.Job, seq uint64) {
	s.mu.Lock()
	current, ok := s.armed[job.ID]
	if !ok || current.seq != seq {
		s.mu.Unlock()
		s.logger.Debug("Dropping superseded firing", "job_id", job.ID)
		return
	}
	if job.OneShot() {
		delete(s.armed, job.ID)
		s.reportLocked()
	}
	handler := s.handlers[job.Kind]
	s.mu.Unlock()

	log := s.logger.With("job", job.ID, "kind", job.Kind)
	if handler == nil {
		log.Warn("No handler registered for job kind")
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := s.clock.Now()
	err := handler(ctx, job)
	duration := s.clock.Since(start)
	metrics.ObserveDispatch(string(job.Kind), duration, err)

	if err != nil {
		log.Error("Scheduled job failed", "user_id", job.UserID, "duration", duration, "error", err)
		return
	}
	log.Debug("Scheduled job done", "user_id", job.UserID, "duration", duration)
}

// AddCronTask schedules a maintenance task outside the job table.
func (s *Scheduler) AddCronTask(name, expr string, task func(ctx context.Context) error) error {
	_, err := s.cron.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(func(name string) {
			log := s.logger.With("task_name", name)
			log.Info("Running scheduled task")
			startTime := s.clock.Now()
			ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
			defer cancel()
			if err := task(ctx); err != nil {
				log.Error("Scheduled task failed", "error", err)
			}
			log.Info("Finished scheduled task", "duration", s.clock.Since(startTime))
		}, name),
		gocron.WithName(name),
		gocron.WithTags("task"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule task %q: %w", name, err)
	}
	return nil
}

// Start begins firing jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("Scheduler started", "armed_jobs", len(s.armed))
	return nil
}

// Stop cancels in-flight handlers and waits for gocron to shut down.
func (s *Scheduler) Stop() error {
	s.cancel()

	if err := s.cron.Shutdown(); err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
		return fmt.Errorf("failed to shut down scheduler: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.logger.Info("Scheduler stopped")
	return nil
}
