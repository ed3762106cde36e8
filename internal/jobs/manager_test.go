package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	internalErrors "github.com/gcbaptista/go-autocomplete/internal/errors"
	"github.com/gcbaptista/go-autocomplete/model"
)

func waitForStatus(t *testing.T, manager *Manager, jobID string, status model.JobStatus) *model.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := manager.GetJob(jobID)
		if err != nil {
			t.Fatalf("Failed to get job: %v", err)
		}
		if job.Status == status {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Job %s did not reach status %s", jobID, status)
	return nil
}

func TestJobManager_CreateJob(t *testing.T) {
	manager := NewManager(2, nil)
	defer manager.Stop()

	jobID := manager.CreateJob(model.JobTypeReconcile, map[string]string{
		"trigger": "test",
	})

	if jobID == "" {
		t.Error("Expected non-empty job ID")
	}

	job, err := manager.GetJob(jobID)
	if err != nil {
		t.Fatalf("Failed to get created job: %v", err)
	}

	if job.Type != model.JobTypeReconcile {
		t.Errorf("Expected job type %s, got %s", model.JobTypeReconcile, job.Type)
	}

	if job.Status != model.JobStatusPending {
		t.Errorf("Expected job status %s, got %s", model.JobStatusPending, job.Status)
	}

	if job.Metadata["trigger"] != "test" {
		t.Errorf("Expected metadata trigger 'test', got %q", job.Metadata["trigger"])
	}
}

func TestJobManager_ExecuteJob(t *testing.T) {
	manager := NewManager(2, nil)
	manager.Start()
	defer manager.Stop()

	jobID := manager.CreateJob(model.JobTypeReconcile, nil)

	err := manager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		manager.UpdateJobProgress(jobID, 1, 2, "halfway")
		manager.UpdateJobProgress(jobID, 2, 2, "done")
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to execute job: %v", err)
	}

	job := waitForStatus(t, manager, jobID, model.JobStatusCompleted)

	if job.Progress == nil {
		t.Fatal("Expected job progress to be set")
	}
	if job.Progress.GetProgressPercentage() != 100 {
		t.Errorf("Expected 100%% progress, got %f", job.Progress.GetProgressPercentage())
	}
	if job.StartedAt == nil || job.CompletedAt == nil {
		t.Error("Expected start and completion timestamps")
	}

	// A job can only run once
	if err := manager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error { return nil }); err == nil {
		t.Error("Expected error when executing a non-pending job")
	}
}

func TestJobManager_FailedJob(t *testing.T) {
	manager := NewManager(1, nil)
	defer manager.Stop()

	jobID, err := manager.RunJob(model.JobTypeBootstrap, nil, func(ctx context.Context, job *model.Job) error {
		return errors.New("snapshot unavailable")
	})
	if err == nil || err.Error() != "snapshot unavailable" {
		t.Fatalf("Expected job error to be returned, got %v", err)
	}

	job, err := manager.GetJob(jobID)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if job.Status != model.JobStatusFailed {
		t.Errorf("Expected job status %s, got %s", model.JobStatusFailed, job.Status)
	}
	if job.Error != "snapshot unavailable" {
		t.Errorf("Expected job error message, got %q", job.Error)
	}

	metrics := manager.GetMetrics()
	if metrics.JobsFailed != 1 || metrics.FailuresByType[model.JobTypeBootstrap] != 1 {
		t.Errorf("Expected one failed bootstrap job, got %+v", metrics)
	}
	if metrics.LastFailure != "snapshot unavailable" {
		t.Errorf("Expected last failure to be recorded, got %q", metrics.LastFailure)
	}
	if rate := manager.GetJobSuccessRate(); rate != 0 {
		t.Errorf("Expected success rate 0, got %f", rate)
	}
}

func TestJobManager_GetJobNotFound(t *testing.T) {
	manager := NewManager(1, nil)
	defer manager.Stop()

	_, err := manager.GetJob("missing")
	if !errors.Is(err, internalErrors.ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	manager := NewManager(1, nil)
	defer manager.Stop()

	_, _ = manager.RunJob(model.JobTypeBootstrap, nil, func(ctx context.Context, job *model.Job) error { return nil })
	manager.CreateJob(model.JobTypeReconcile, nil)

	if jobs := manager.ListJobs(nil); len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}

	pending := model.JobStatusPending
	jobs := manager.ListJobs(&pending)
	if len(jobs) != 1 || jobs[0].Type != model.JobTypeReconcile {
		t.Errorf("Expected the single pending reconcile job, got %+v", jobs)
	}

	if workload := manager.GetCurrentWorkload(); workload != 1 {
		t.Errorf("Expected workload 1, got %d", workload)
	}
}

func TestJobManager_StopCancelsRunningJobs(t *testing.T) {
	manager := NewManager(1, nil)
	manager.Start()

	jobID := manager.CreateJob(model.JobTypeReconcile, nil)
	started := make(chan struct{})
	err := manager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("Failed to execute job: %v", err)
	}

	<-started
	manager.Stop()

	job, err := manager.GetJob(jobID)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if job.Status != model.JobStatusFailed {
		t.Errorf("Expected cancelled job to be marked failed, got %s", job.Status)
	}
}

func TestJobManager_CleanupOldJobs(t *testing.T) {
	manager := NewManager(1, nil)
	defer manager.Stop()

	jobID, _ := manager.RunJob(model.JobTypeReconcile, nil, func(ctx context.Context, job *model.Job) error { return nil })

	manager.CleanupOldJobs(time.Hour)
	if _, err := manager.GetJob(jobID); err != nil {
		t.Errorf("Recent job should survive cleanup: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	manager.CleanupOldJobs(time.Millisecond)
	if _, err := manager.GetJob(jobID); err == nil {
		t.Error("Expected finished job to be removed")
	}
}
