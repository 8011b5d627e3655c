package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mkaplan/postloom/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

func enqueueWeekJob(t *testing.T, repo *JobRepository, runAt time.Time) *domain.Job {
	t.Helper()
	job, err := repo.Enqueue(context.Background(), "org-1", "proj-1", domain.JobTypeGenerateWeek,
		domain.GenerateWeekPayload{WeekStartDate: "2026-03-02", GenerationRunID: "run-1"}, runAt)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return job
}

func TestJobRepository_EnqueueRejectsUnknownType(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))

	_, err := repo.Enqueue(context.Background(), "org-1", "proj-1", domain.JobType("bogus"),
		map[string]string{"x": "y"}, time.Time{})
	if err == nil {
		t.Fatal("expected error for unknown job type")
	}

	count, err := repo.CountByStatus(context.Background(), domain.JobStatusQueued)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no queued jobs, got %d", count)
	}
}

func TestJobRepository_ClaimNext_ExclusiveOwnership(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))

	for i := 0; i < 5; i++ {
		enqueueWeekJob(t, repo, time.Time{})
	}

	first, err := repo.ClaimNext(context.Background(), "worker-a", 3)
	if err != nil {
		t.Fatalf("claim a: %v", err)
	}
	second, err := repo.ClaimNext(context.Background(), "worker-b", 5)
	if err != nil {
		t.Fatalf("claim b: %v", err)
	}

	if len(first) != 3 {
		t.Errorf("expected worker-a to claim 3 jobs, got %d", len(first))
	}
	if len(second) != 2 {
		t.Errorf("expected worker-b to claim the remaining 2 jobs, got %d", len(second))
	}

	seen := make(map[string]bool)
	for _, job := range append(first, second...) {
		if seen[job.ID] {
			t.Errorf("job %s claimed twice", job.ID)
		}
		seen[job.ID] = true

		if job.Status != domain.JobStatusRunning {
			t.Errorf("claimed job %s has status %s, want running", job.ID, job.Status)
		}
		if job.Attempts != 1 {
			t.Errorf("claimed job %s has attempts %d, want 1", job.ID, job.Attempts)
		}
		if job.LockedBy == nil || job.LockedAt == nil {
			t.Errorf("claimed job %s is missing lock fields", job.ID)
		}
	}

	// Nothing left to claim.
	third, err := repo.ClaimNext(context.Background(), "worker-c", 5)
	if err != nil {
		t.Fatalf("claim c: %v", err)
	}
	if len(third) != 0 {
		t.Errorf("expected empty claim, got %d jobs", len(third))
	}
}

func TestJobRepository_ClaimNext_ConcurrentClaimers(t *testing.T) {
	// WAL mode plus a busy timeout, matching InitDB, so sqlite tolerates
	// simultaneous writers. The claimers race on the same due rows; the
	// conditional update is what keeps ownership exclusive.
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	repo := NewJobRepository(db)

	const queued = 12
	for i := 0; i < queued; i++ {
		enqueueWeekJob(t, repo, time.Time{})
	}

	const workers = 4
	claims := make([][]domain.Job, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claims[i], errs[i] = repo.ClaimNext(context.Background(), fmt.Sprintf("worker-%d", i), queued)
		}(i)
	}
	wg.Wait()

	owner := make(map[string]string)
	total := 0
	for i, claimed := range claims {
		workerID := fmt.Sprintf("worker-%d", i)
		if errs[i] != nil {
			t.Fatalf("claim by %s: %v", workerID, errs[i])
		}
		for _, job := range claimed {
			if prev, dup := owner[job.ID]; dup {
				t.Errorf("job %s claimed by both %s and %s", job.ID, prev, workerID)
			}
			owner[job.ID] = workerID
			total++
		}
	}
	if total != queued {
		t.Errorf("claimed %d jobs across all workers, want %d", total, queued)
	}

	var stored []domain.Job
	if err := db.Find(&stored).Error; err != nil {
		t.Fatalf("load jobs: %v", err)
	}
	for _, job := range stored {
		if job.Status != domain.JobStatusRunning {
			t.Errorf("job %s status %s, want running", job.ID, job.Status)
		}
		if job.Attempts != 1 {
			t.Errorf("job %s attempts %d, want exactly 1", job.ID, job.Attempts)
		}
		if job.LockedBy == nil || *job.LockedBy != owner[job.ID] {
			t.Errorf("job %s locked_by does not match its claimer %s", job.ID, owner[job.ID])
		}
	}
}

func TestJobRepository_ClaimNext_DueOrder(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	now := time.Now().UTC()

	late := enqueueWeekJob(t, repo, now.Add(-1*time.Minute))
	early := enqueueWeekJob(t, repo, now.Add(-10*time.Minute))
	future := enqueueWeekJob(t, repo, now.Add(1*time.Hour))

	claimed, err := repo.ClaimNext(context.Background(), "worker-a", 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 due jobs, got %d", len(claimed))
	}
	if claimed[0].ID != early.ID || claimed[1].ID != late.ID {
		t.Errorf("expected due order [%s %s], got [%s %s]", early.ID, late.ID, claimed[0].ID, claimed[1].ID)
	}

	stored, err := repo.GetByID(context.Background(), future.ID)
	if err != nil {
		t.Fatalf("get future job: %v", err)
	}
	if stored.Status != domain.JobStatusQueued {
		t.Errorf("future job should stay queued, got %s", stored.Status)
	}
}

func TestJobRepository_ReleaseStaleLocks(t *testing.T) {
	db := newTestDB(t)
	repo := NewJobRepository(db)

	enqueueWeekJob(t, repo, time.Time{})
	enqueueWeekJob(t, repo, time.Time{})

	claimed, err := repo.ClaimNext(context.Background(), "worker-a", 2)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed jobs, got %d", len(claimed))
	}

	// Backdate one lock past the timeout; leave the other fresh.
	stale := claimed[0]
	if err := db.Model(&domain.Job{}).Where("id = ?", stale.ID).
		Update("locked_at", time.Now().UTC().Add(-30*time.Minute)).Error; err != nil {
		t.Fatalf("backdate lock: %v", err)
	}

	reclaimed, err := repo.ReleaseStaleLocks(context.Background(), 10*time.Minute)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if reclaimed != 1 {
		t.Errorf("expected 1 reclaimed job, got %d", reclaimed)
	}

	got, err := repo.GetByID(context.Background(), stale.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.JobStatusQueued {
		t.Errorf("reclaimed job status %s, want queued", got.Status)
	}
	if got.LockedBy != nil || got.LockedAt != nil {
		t.Error("reclaimed job should have no lock fields")
	}
	if got.Attempts != 1 {
		t.Errorf("reclaim must not touch attempts, got %d", got.Attempts)
	}

	fresh, err := repo.GetByID(context.Background(), claimed[1].ID)
	if err != nil {
		t.Fatalf("get fresh: %v", err)
	}
	if fresh.Status != domain.JobStatusRunning {
		t.Errorf("fresh lock should survive, got status %s", fresh.Status)
	}
}

func TestJobRepository_RequeueForRetry(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))

	enqueueWeekJob(t, repo, time.Time{})
	claimed, err := repo.ClaimNext(context.Background(), "worker-a", 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v (%d jobs)", err, len(claimed))
	}

	retryAt := time.Now().UTC().Add(5 * time.Minute)
	if err := repo.RequeueForRetry(context.Background(), claimed[0].ID, retryAt, "llm timeout"); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	got, err := repo.GetByID(context.Background(), claimed[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.JobStatusQueued {
		t.Errorf("status %s, want queued", got.Status)
	}
	if got.LastError != "llm timeout" {
		t.Errorf("last_error %q, want %q", got.LastError, "llm timeout")
	}
	if got.LockedBy != nil || got.LockedAt != nil {
		t.Error("requeued job should have no lock fields")
	}

	// Not due yet, so not claimable.
	again, err := repo.ClaimNext(context.Background(), "worker-b", 1)
	if err != nil {
		t.Fatalf("claim again: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("job with future run_at claimed early")
	}
}
