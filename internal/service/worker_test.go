package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mkaplan/postloom/internal/domain"
	"github.com/mkaplan/postloom/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

// fakePipeline lets each test script the handler outcome per job type.
// Tick runs handlers concurrently, so the counters are atomic.
type fakePipeline struct {
	weekErr       error
	calls         int32
	finalFailures int32
	panicked      bool
}

func (f *fakePipeline) weekCalls() int {
	return int(atomic.LoadInt32(&f.calls))
}

func (f *fakePipeline) finalFailureCalls() int {
	return int(atomic.LoadInt32(&f.finalFailures))
}

func (f *fakePipeline) GenerateWeek(ctx context.Context, orgID, projectID string, payload *domain.GenerateWeekPayload) error {
	atomic.AddInt32(&f.calls, 1)
	if f.panicked {
		panic("handler exploded")
	}
	return f.weekErr
}

func (f *fakePipeline) GenerateItem(ctx context.Context, orgID string, payload *domain.GenerateItemPayload) error {
	return nil
}

func (f *fakePipeline) PublishItem(ctx context.Context, orgID string, payload *domain.PublishItemPayload) error {
	return nil
}

func (f *fakePipeline) IngestMetrics(ctx context.Context, payload *domain.IngestMetricsPayload) error {
	return nil
}

func (f *fakePipeline) HandleFinalFailure(ctx context.Context, job *domain.Job, cause error) {
	atomic.AddInt32(&f.finalFailures, 1)
}

func testWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:   time.Hour, // ticks driven manually in tests
		MaxConcurrency: 2,
		LockTimeout:    time.Minute,
		MaxAttempts:    2,
		Backoff:        BackoffPolicy{Base: time.Millisecond, Max: 10 * time.Millisecond},
	}
}

func enqueueTestWeekJob(t *testing.T, jobs *repository.JobRepository) *domain.Job {
	t.Helper()
	job, err := jobs.Enqueue(context.Background(), "org-1", "proj-1", domain.JobTypeGenerateWeek,
		domain.GenerateWeekPayload{WeekStartDate: "2026-03-02", GenerationRunID: "run-1"}, time.Time{})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return job
}

func TestWorker_Tick_Success(t *testing.T) {
	jobs := repository.NewJobRepository(newServiceTestDB(t))
	pipeline := &fakePipeline{}
	w := NewWorker(jobs, pipeline, testWorkerConfig())

	job := enqueueTestWeekJob(t, jobs)

	stats, err := w.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if stats.Claimed != 1 || stats.Succeeded != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 1 claimed, 1 succeeded", stats)
	}
	if pipeline.weekCalls() != 1 {
		t.Errorf("handler called %d times, want 1", pipeline.weekCalls())
	}

	got, err := jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.JobStatusSucceeded {
		t.Errorf("status %s, want succeeded", got.Status)
	}
	if got.LockedBy != nil || got.LockedAt != nil {
		t.Error("finished job should have no lock fields")
	}
}

func TestWorker_Tick_RetriesUntilExhausted(t *testing.T) {
	jobs := repository.NewJobRepository(newServiceTestDB(t))
	pipeline := &fakePipeline{weekErr: fmt.Errorf("llm unavailable")}
	w := NewWorker(jobs, pipeline, testWorkerConfig())

	job := enqueueTestWeekJob(t, jobs)

	// Attempt 1 fails and requeues with backoff.
	stats, err := w.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("first tick stats = %+v, want 1 failed", stats)
	}

	got, _ := jobs.GetByID(context.Background(), job.ID)
	if got.Status != domain.JobStatusQueued {
		t.Fatalf("after first failure status %s, want queued", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts %d, want 1", got.Attempts)
	}
	if got.LastError == "" {
		t.Error("last_error should record the failure")
	}
	if pipeline.finalFailureCalls() != 0 {
		t.Error("final-failure hook must not fire while retries remain")
	}

	// Attempt 2 exhausts MaxAttempts and fails terminally.
	time.Sleep(20 * time.Millisecond) // let the backoff window pass
	if _, err := w.Tick(context.Background()); err != nil {
		t.Fatalf("tick 2: %v", err)
	}

	got, _ = jobs.GetByID(context.Background(), job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Errorf("after exhausting retries status %s, want failed", got.Status)
	}
	if got.Attempts != 2 {
		t.Errorf("attempts %d, want 2", got.Attempts)
	}
	if pipeline.weekCalls() != 2 {
		t.Errorf("handler called %d times, want 2", pipeline.weekCalls())
	}
	if pipeline.finalFailureCalls() != 1 {
		t.Errorf("final-failure hook fired %d times, want 1", pipeline.finalFailureCalls())
	}
}

func TestWorker_Tick_ConfigErrorFailsImmediately(t *testing.T) {
	jobs := repository.NewJobRepository(newServiceTestDB(t))
	pipeline := &fakePipeline{weekErr: fmt.Errorf("%w: project has no active channels", ErrConfig)}
	w := NewWorker(jobs, pipeline, testWorkerConfig())

	job := enqueueTestWeekJob(t, jobs)

	if _, err := w.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	got, _ := jobs.GetByID(context.Background(), job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Errorf("status %s, want failed without retry", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts %d, want 1", got.Attempts)
	}
	if pipeline.weekCalls() != 1 {
		t.Errorf("handler called %d times, want 1", pipeline.weekCalls())
	}
	if pipeline.finalFailureCalls() != 1 {
		t.Errorf("final-failure hook fired %d times, want 1", pipeline.finalFailureCalls())
	}
}

func TestWorker_Tick_UndecodablePayloadFailsImmediately(t *testing.T) {
	db := newServiceTestDB(t)
	jobs := repository.NewJobRepository(db)
	pipeline := &fakePipeline{}
	w := NewWorker(jobs, pipeline, testWorkerConfig())

	// Bypass Enqueue's validation to simulate a payload corrupted at rest.
	bad := &domain.Job{
		ID:        uuid.New().String(),
		OrgID:     "org-1",
		ProjectID: "proj-1",
		Type:      domain.JobTypeGenerateWeek,
		Payload:   json.RawMessage(`{"week_start_date":`),
		Status:    domain.JobStatusQueued,
		RunAt:     time.Now().UTC().Add(-time.Minute),
	}
	if err := db.Create(bad).Error; err != nil {
		t.Fatalf("insert bad job: %v", err)
	}

	if _, err := w.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	got, _ := jobs.GetByID(context.Background(), bad.ID)
	if got.Status != domain.JobStatusFailed {
		t.Errorf("status %s, want failed", got.Status)
	}
	if pipeline.weekCalls() != 0 {
		t.Errorf("handler should never run for an undecodable payload, ran %d times", pipeline.weekCalls())
	}
}

func TestWorker_Tick_RecoverFromHandlerPanic(t *testing.T) {
	jobs := repository.NewJobRepository(newServiceTestDB(t))
	pipeline := &fakePipeline{panicked: true}
	w := NewWorker(jobs, pipeline, testWorkerConfig())

	job := enqueueTestWeekJob(t, jobs)

	stats, err := w.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 failed", stats)
	}

	// The panic becomes a normal retryable failure.
	got, _ := jobs.GetByID(context.Background(), job.ID)
	if got.Status != domain.JobStatusQueued {
		t.Errorf("status %s, want queued for retry", got.Status)
	}
}

func TestWorker_Tick_RespectsMaxConcurrency(t *testing.T) {
	jobs := repository.NewJobRepository(newServiceTestDB(t))
	pipeline := &fakePipeline{}
	cfg := testWorkerConfig()
	cfg.MaxConcurrency = 2
	w := NewWorker(jobs, pipeline, cfg)

	for i := 0; i < 5; i++ {
		enqueueTestWeekJob(t, jobs)
	}

	stats, err := w.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if stats.Claimed != 2 {
		t.Errorf("claimed %d jobs in one tick, want 2", stats.Claimed)
	}

	queued, err := jobs.CountByStatus(context.Background(), domain.JobStatusQueued)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if queued != 3 {
		t.Errorf("%d jobs left queued, want 3", queued)
	}
}

func TestBackoffPolicy_Delay(t *testing.T) {
	p := BackoffPolicy{Base: 30 * time.Second, Max: 15 * time.Minute}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{6, 15 * time.Minute}, // 16m capped
		{10, 15 * time.Minute},
		{0, 30 * time.Second}, // clamped up to the first retry
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestWorker_DispatchRejectsUnknownType(t *testing.T) {
	jobs := repository.NewJobRepository(newServiceTestDB(t))
	w := NewWorker(jobs, &fakePipeline{}, testWorkerConfig())

	err := w.dispatch(context.Background(), &domain.Job{
		ID:      "job-x",
		Type:    domain.JobType("bogus"),
		Payload: json.RawMessage(`{}`),
	})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for unknown type, got %v", err)
	}
}
