// Package worker runs queued generation jobs one at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tikuhub/qbank/internal/model"
	"github.com/tikuhub/qbank/internal/repository"
)

var (
	ErrBusy = errors.New("a job is already in flight")
)

// persistTimeout bounds writes of an attempt's outcome, which run on a
// context detached from the worker's own.
const persistTimeout = 10 * time.Second

// Pipeline builds the packet for one claimed job.
type Pipeline interface {
	Run(ctx context.Context, job *model.GenerationJob) (model.JobOutput, error)
}

type Config struct {
	PollInterval  time.Duration
	JobTimeout    time.Duration
	WatchdogGrace time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:  5 * time.Second,
		JobTimeout:    2 * time.Minute,
		WatchdogGrace: time.Second,
	}
}

// Worker polls the queue on a fixed interval and whenever it is notified.
// A one-slot semaphore keeps at most one job in flight per process.
type Worker struct {
	jobs     repository.GenerationJobRepository
	pipeline Pipeline
	cfg      Config
	sem      chan struct{}
	wake     chan struct{}
	now      func() time.Time
	logger   *slog.Logger
}

func New(jobs repository.GenerationJobRepository, pipeline Pipeline, cfg Config) *Worker {
	return &Worker{
		jobs:     jobs,
		pipeline: pipeline,
		cfg:      cfg,
		sem:      make(chan struct{}, 1),
		wake:     make(chan struct{}, 1),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default().With("component", "worker"),
	}
}

// Notify asks for a poll as soon as the worker is free.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. It first recovers attempts left
// running by a previous process. On cancellation the job in flight is
// handed back to the queue without spending an attempt.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("generation worker started",
		"poll_interval", w.cfg.PollInterval,
		"job_timeout", w.cfg.JobTimeout)

	_, err := w.RecoverStale(ctx)
	if err != nil {
		w.logger.Error("stale job recovery failed", "error", err)
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("generation worker stopped")
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
		w.tick(ctx)
	}
}

// tick drains the queue unless another tick is still working.
func (w *Worker) tick(ctx context.Context) {
	if !w.tryAcquire() {
		ticksSkippedTotal.Inc()
		return
	}
	defer w.release()

	for ctx.Err() == nil {
		processed, err := w.runNext(ctx)
		if err != nil {
			w.logger.Error("generation poll failed", "error", err)
			return
		}
		if !processed {
			return
		}
	}
}

// RunOnce claims and runs at most one job. It reports whether a job was
// processed and returns ErrBusy when another job is in flight.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if !w.tryAcquire() {
		return false, ErrBusy
	}
	defer w.release()

	return w.runNext(ctx)
}

// RecoverStale times out attempts that have been running longer than any
// live worker could keep them, such as those of a crashed process.
func (w *Worker) RecoverStale(ctx context.Context) (int64, error) {
	now := w.now()
	cutoff := now.Add(-(w.cfg.JobTimeout + w.cfg.WatchdogGrace))

	n, err := w.jobs.RecoverStale(ctx, cutoff, "attempt abandoned by a stopped worker", now)
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale jobs: %w", err)
	}
	if n > 0 {
		staleRecoveredTotal.Add(float64(n))
		w.logger.Warn("recovered stale generation jobs", "count", n, "started_before", cutoff)
	}
	return n, nil
}

func (w *Worker) tryAcquire() bool {
	select {
	case w.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (w *Worker) release() {
	<-w.sem
}

func (w *Worker) runNext(ctx context.Context) (bool, error) {
	job, err := w.jobs.ClaimNext(ctx, w.now())
	if errors.Is(err, repository.ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}

	log := w.logger.With("job_id", job.ID, "attempt", job.Attempts, "max_attempts", job.MaxAttempts)
	log.Info("generation job claimed", "questions", len(job.QuestionIDs), "vip", job.IsVIP)

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	watchdog := time.AfterFunc(w.cfg.JobTimeout+w.cfg.WatchdogGrace, func() {
		w.expire(context.WithoutCancel(ctx), job)
	})
	defer watchdog.Stop()

	start := time.Now()
	out, runErr := w.pipeline.Run(jobCtx, job)
	elapsed := time.Since(start)
	jobDurationSeconds.Observe(elapsed.Seconds())

	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()

	if runErr == nil {
		ok, err := w.jobs.Complete(persistCtx, job, out, w.now())
		if err == nil {
			if ok {
				jobsFinishedTotal.WithLabelValues(string(model.JobStatusDone)).Inc()
				log.Info("generation job done", "elapsed", elapsed)
			} else {
				log.Warn("generation attempt finished after it was finalised; output not recorded", "elapsed", elapsed)
			}
			return true, nil
		}
		runErr = fmt.Errorf("failed to record job output: %w", err)
	}

	// A stopped watchdog has not flipped the attempt, so it is still ours.
	if ctx.Err() != nil && watchdog.Stop() {
		w.requeue(persistCtx, log, job, runErr)
		return true, nil
	}

	w.fail(persistCtx, log, job, runErr, elapsed)
	return true, nil
}

// requeue returns an attempt cut short by shutdown to the queue.
func (w *Worker) requeue(ctx context.Context, log *slog.Logger, job *model.GenerationJob, cause error) {
	ok, err := w.jobs.Requeue(ctx, job, "interrupted: "+cause.Error(), w.now())
	if err != nil {
		log.Error("failed to requeue interrupted job", "cause", cause, "error", err)
		return
	}
	if !ok {
		log.Warn("interrupted attempt already finalised", "error", cause)
		return
	}

	jobsRequeuedTotal.Inc()
	log.Info("generation job requeued after shutdown", "error", cause)
}

// fail is the single place a failed attempt is persisted.
func (w *Worker) fail(ctx context.Context, log *slog.Logger, job *model.GenerationJob, runErr error, elapsed time.Duration) {
	status := Classify(runErr, elapsed, w.cfg.JobTimeout, job.AttemptsExhausted())

	ok, err := w.jobs.Fail(ctx, job, status, runErr.Error(), w.now())
	if err != nil {
		log.Error("failed to persist job failure", "status", status, "cause", runErr, "error", err)
		return
	}
	if !ok {
		log.Warn("generation attempt already finalised", "status", status, "error", runErr)
		return
	}

	jobsFinishedTotal.WithLabelValues(string(status)).Inc()
	if status == model.JobStatusPermanentFailed {
		log.Error("generation job permanently failed", "error", runErr, "elapsed", elapsed)
		return
	}
	log.Warn("generation attempt failed", "status", status, "error", runErr, "elapsed", elapsed)
}

// expire is the watchdog: it flips the attempt if it is still running.
func (w *Worker) expire(ctx context.Context, job *model.GenerationJob) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	msg := fmt.Sprintf("watchdog: attempt still running after %s", w.cfg.JobTimeout)
	ok, err := w.jobs.MarkTimedOut(ctx, job, msg, w.now())
	if err != nil {
		w.logger.Error("watchdog failed to mark job", "job_id", job.ID, "error", err)
		return
	}
	if ok {
		watchdogFiredTotal.Inc()
		w.logger.Warn("watchdog timed out generation job", "job_id", job.ID, "attempt", job.Attempts)
	}
}

// Classify maps a failed attempt to its status. Running out of time wins
// over the error's own kind; exhausted attempts win over both.
func Classify(err error, elapsed, timeout time.Duration, attemptsExhausted bool) model.JobStatus {
	if attemptsExhausted {
		return model.JobStatusPermanentFailed
	}
	if elapsed >= timeout || errors.Is(err, context.DeadlineExceeded) {
		return model.JobStatusTimeout
	}
	return model.JobStatusFailed
}
