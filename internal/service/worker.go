package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mkaplan/postloom/internal/domain"
	"github.com/mkaplan/postloom/internal/logger"
	"github.com/mkaplan/postloom/internal/repository"
)

// WorkerConfig holds the worker loop knobs.
type WorkerConfig struct {
	PollInterval   time.Duration
	MaxConcurrency int
	LockTimeout    time.Duration
	MaxAttempts    int
	Backoff        BackoffPolicy
}

// TickStats summarizes one polling pass.
type TickStats struct {
	Claimed   int `json:"claimed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// JobPipeline is the handler surface the worker dispatches claimed jobs
// to. GenerationService is the production implementation.
//
// HandleFinalFailure fires exactly once per job, when the worker marks it
// terminally failed. Handlers leave their generation run open on retryable
// errors so a later attempt can still finish it; this hook is where the
// failure becomes user-visible on the run.
type JobPipeline interface {
	GenerateWeek(ctx context.Context, orgID, projectID string, payload *domain.GenerateWeekPayload) error
	GenerateItem(ctx context.Context, orgID string, payload *domain.GenerateItemPayload) error
	PublishItem(ctx context.Context, orgID string, payload *domain.PublishItemPayload) error
	IngestMetrics(ctx context.Context, payload *domain.IngestMetricsPayload) error
	HandleFinalFailure(ctx context.Context, job *domain.Job, cause error)
}

// Worker polls the queue and executes claimed jobs. Any number of worker
// processes can run against the same database; correctness rests entirely
// on the claim operation, not on anything in this struct.
type Worker struct {
	id       string
	jobs     *repository.JobRepository
	pipeline JobPipeline
	cfg      WorkerConfig
}

// NewWorker creates a worker with a unique identity for lock attribution.
// Parameters:
//   - jobs: job repository backing the queue.
//   - pipeline: generation pipeline the handlers delegate to.
//   - cfg: worker loop configuration.
// Returns:
//   - *Worker: initialized worker.
func NewWorker(jobs *repository.JobRepository, pipeline JobPipeline, cfg WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = BackoffPolicy{Base: 30 * time.Second, Max: 15 * time.Minute}
	}
	return &Worker{
		id:       "worker-" + uuid.New().String()[:8],
		jobs:     jobs,
		pipeline: pipeline,
		cfg:      cfg,
	}
}

// ID returns the worker's lock attribution token.
func (w *Worker) ID() string {
	return w.id
}

// Run polls until ctx is canceled: reclaim stale locks, process one tick,
// sleep the poll interval.
// Parameters:
//   - ctx: canceling this context stops the loop after the current tick.
// Returns:
//   - error: ctx.Err() on shutdown.
func (w *Worker) Run(ctx context.Context) error {
	ctx = logger.SetWorkerID(ctx, w.id)
	logger.CtxInfo(ctx, "worker started, poll interval %s", w.cfg.PollInterval)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if reclaimed, err := w.jobs.ReleaseStaleLocks(ctx, w.cfg.LockTimeout); err != nil {
			logger.CtxError(ctx, "stale lock reclaim failed: %v", err)
		} else if reclaimed > 0 {
			logger.CtxWarn(ctx, "reclaimed %d stale jobs", reclaimed)
		}

		stats, err := w.Tick(ctx)
		if err != nil {
			logger.CtxError(ctx, "tick failed: %v", err)
		} else if stats.Claimed > 0 {
			logger.With(logger.Fields{logger.FieldCount: stats.Claimed}).
				Info(ctx, "tick done: %d succeeded, %d failed", stats.Succeeded, stats.Failed)
		}

		select {
		case <-ctx.Done():
			logger.CtxInfo(ctx, "worker stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one polling pass: claim up to MaxConcurrency due jobs and
// process them concurrently. Handlers share no mutable state, so the only
// synchronization here is the WaitGroup.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - TickStats: claimed/succeeded/failed counts for this pass.
//   - error: non-nil if claiming fails; processing errors land in stats.
func (w *Worker) Tick(ctx context.Context) (TickStats, error) {
	jobs, err := w.jobs.ClaimNext(ctx, w.id, w.cfg.MaxConcurrency)
	if err != nil {
		return TickStats{}, fmt.Errorf("claim jobs: %w", err)
	}

	var succeeded, failed int64
	var wg sync.WaitGroup
	for i := range jobs {
		job := jobs[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.processJob(ctx, &job) {
				atomic.AddInt64(&succeeded, 1)
			} else {
				atomic.AddInt64(&failed, 1)
			}
		}()
	}
	wg.Wait()

	return TickStats{
		Claimed:   len(jobs),
		Succeeded: int(atomic.LoadInt64(&succeeded)),
		Failed:    int(atomic.LoadInt64(&failed)),
	}, nil
}

// processJob executes one claimed job and records its outcome. Returns true
// when the job succeeded. Never lets a handler corrupt job state: every
// failure path lands in requeued or failed, never an orphaned running row.
func (w *Worker) processJob(ctx context.Context, job *domain.Job) bool {
	ctx = logger.SetJobID(ctx, job.ID)
	logger.CtxInfo(ctx, "processing %s job (attempt %d)", job.Type, job.Attempts)

	start := time.Now()
	err := w.dispatch(ctx, job)
	elapsed := time.Since(start).Milliseconds()

	if err == nil {
		if markErr := w.jobs.MarkSucceeded(ctx, job.ID); markErr != nil {
			logger.CtxError(ctx, "mark succeeded failed: %v", markErr)
			return false
		}
		logger.With(logger.Fields{logger.FieldDurationMs: elapsed}).
			Info(ctx, "%s job succeeded", job.Type)
		return true
	}

	// Configuration errors cannot be fixed by retrying.
	if errors.Is(err, ErrConfig) {
		logger.CtxWarn(ctx, "%s job failed on configuration: %v", job.Type, err)
		if markErr := w.jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			logger.CtxError(ctx, "mark failed failed: %v", markErr)
		}
		w.pipeline.HandleFinalFailure(ctx, job, err)
		return false
	}

	if job.Attempts < w.cfg.MaxAttempts {
		runAt := w.cfg.Backoff.NextRunAt(time.Now().UTC(), job.Attempts)
		logger.CtxWarn(ctx, "%s job failed (attempt %d/%d), retrying at %s: %v",
			job.Type, job.Attempts, w.cfg.MaxAttempts, runAt.Format(time.RFC3339), err)
		if reqErr := w.jobs.RequeueForRetry(ctx, job.ID, runAt, err.Error()); reqErr != nil {
			logger.CtxError(ctx, "requeue failed: %v", reqErr)
		}
		return false
	}

	logger.With(logger.Fields{logger.FieldDurationMs: elapsed}).
		Error(ctx, "%s job failed after %d attempts: %v", job.Type, job.Attempts, err)
	if markErr := w.jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
		logger.CtxError(ctx, "mark failed failed: %v", markErr)
	}
	w.pipeline.HandleFinalFailure(ctx, job, err)
	return false
}

// dispatch decodes the payload and routes the job to its handler. Panics
// are recovered into errors so a crashing handler becomes a normal retry.
func (w *Worker) dispatch(ctx context.Context, job *domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	payload, err := domain.DecodeJobPayload(job.Type, job.Payload)
	if err != nil {
		// An undecodable payload is a permanent defect, not a transient.
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	switch p := payload.(type) {
	case *domain.GenerateWeekPayload:
		return w.pipeline.GenerateWeek(ctx, job.OrgID, job.ProjectID, p)
	case *domain.GenerateItemPayload:
		return w.pipeline.GenerateItem(ctx, job.OrgID, p)
	case *domain.PublishItemPayload:
		return w.pipeline.PublishItem(ctx, job.OrgID, p)
	case *domain.IngestMetricsPayload:
		return w.pipeline.IngestMetrics(ctx, p)
	default:
		return fmt.Errorf("%w: no handler for job type %q", ErrConfig, job.Type)
	}
}
