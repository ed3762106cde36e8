package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gcbaptista/go-autocomplete/internal/errors"
	"github.com/gcbaptista/go-autocomplete/internal/logger"
	"github.com/gcbaptista/go-autocomplete/model"
)

// JobFunc is the body of a job. ctx is cancelled when the manager stops.
type JobFunc func(ctx context.Context, job *model.Job) error

// Manager runs synchronisation passes as tracked jobs
type Manager struct {
	mu      sync.RWMutex
	jobs    map[string]*model.Job
	workers chan struct{} // Limits concurrent jobs
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	metrics *JobMetrics
	logger  *slog.Logger
	started bool
}

// NewManager creates a new job manager with specified worker count
func NewManager(maxWorkers int, l *slog.Logger) *Manager {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		jobs:    make(map[string]*model.Job),
		workers: make(chan struct{}, maxWorkers),
		ctx:     ctx,
		cancel:  cancel,
		metrics: NewJobMetrics(),
		logger:  logger.OrDiscard(l),
	}
}

// Start begins the background cleanup of finished jobs
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	m.logger.Info("job manager started", "max_workers", cap(m.workers))

	m.wg.Add(1)
	go m.cleanupRoutine()
}

// Stop cancels running jobs and waits for them to return
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	m.logger.Info("job manager stopped")
}

// CreateJob creates a new pending job and returns its ID
func (m *Manager) CreateJob(jobType model.JobType, metadata map[string]string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := &model.Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    model.JobStatusPending,
		CreatedAt: time.Now(),
		Metadata:  metadata,
	}

	m.jobs[job.ID] = job
	m.metrics.RecordJobCreated(jobType)
	m.logger.Debug("created job", "job_id", job.ID, "type", job.Type)
	return job.ID
}

// GetJob retrieves a copy of a job by ID
func (m *Manager) GetJob(jobID string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return nil, errors.NewJobNotFoundError(jobID)
	}
	return copyJob(job), nil
}

// ListJobs returns copies of all jobs, optionally filtered by status
func (m *Manager) ListJobs(status *model.JobStatus) []*model.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*model.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if status == nil || job.Status == *status {
			result = append(result, copyJob(job))
		}
	}
	return result
}

func copyJob(job *model.Job) *model.Job {
	jobCopy := *job
	if job.Progress != nil {
		progressCopy := *job.Progress
		jobCopy.Progress = &progressCopy
	}
	return &jobCopy
}

// ExecuteJob runs a pending job in a goroutine once a worker slot is free
func (m *Manager) ExecuteJob(jobID string, jobFunc JobFunc) error {
	job, err := m.markRunning(jobID)
	if err != nil {
		return err
	}

	// Acquire worker slot
	select {
	case m.workers <- struct{}{}:
	case <-m.ctx.Done():
		m.updateJobStatus(jobID, model.JobStatusCancelled, "job manager shutting down")
		return fmt.Errorf("job manager is shutting down")
	}

	m.wg.Add(1)
	go func() {
		defer func() {
			<-m.workers // Release worker slot
			m.wg.Done()
		}()
		_ = m.run(job, jobFunc)
	}()

	return nil
}

// RunJob creates a job and runs it on the caller's goroutine, returning its error
func (m *Manager) RunJob(jobType model.JobType, metadata map[string]string, jobFunc JobFunc) (string, error) {
	jobID := m.CreateJob(jobType, metadata)
	job, err := m.markRunning(jobID)
	if err != nil {
		return jobID, err
	}
	return jobID, m.run(job, jobFunc)
}

func (m *Manager) markRunning(jobID string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return nil, errors.NewJobNotFoundError(jobID)
	}

	if job.Status != model.JobStatusPending {
		return nil, fmt.Errorf("job with ID '%s' is not in pending status (current: %s)", jobID, job.Status)
	}

	oldStatus := job.Status
	job.Status = model.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	m.metrics.RecordJobStatusChange(oldStatus, job.Status)

	return copyJob(job), nil
}

func (m *Manager) run(job *model.Job, jobFunc JobFunc) error {
	startTime := time.Now()
	err := jobFunc(m.ctx, job)
	executionTime := time.Since(startTime)

	if err != nil {
		m.updateJobStatus(job.ID, model.JobStatusFailed, err.Error())
		m.metrics.RecordJobFailed(job.Type, err)
		m.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "duration", executionTime, "error", err)
		return err
	}

	m.updateJobStatus(job.ID, model.JobStatusCompleted, "")
	m.metrics.RecordJobCompleted(job.Type, executionTime)
	m.logger.Debug("job completed", "job_id", job.ID, "type", job.Type, "duration", executionTime)
	return nil
}

// UpdateJobProgress updates the progress of a running job
func (m *Manager) UpdateJobProgress(jobID string, current, total int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return
	}

	if job.Progress == nil {
		job.Progress = &model.JobProgress{}
	}

	job.Progress.Current = current
	job.Progress.Total = total
	job.Progress.Message = message
}

// updateJobStatus updates the status of a job (internal method)
func (m *Manager) updateJobStatus(jobID string, status model.JobStatus, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return
	}

	oldStatus := job.Status
	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}

	if status == model.JobStatusCompleted || status == model.JobStatusFailed || status == model.JobStatusCancelled {
		now := time.Now()
		job.CompletedAt = &now
	}

	m.metrics.RecordJobStatusChange(oldStatus, status)
}

// cleanupRoutine runs periodic job cleanup
func (m *Manager) cleanupRoutine() {
	defer m.wg.Done()

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Reconcile passes run often; keep an hour of history
			m.CleanupOldJobs(1 * time.Hour)
		case <-m.ctx.Done():
			return
		}
	}
}

// CleanupOldJobs removes finished jobs older than the specified duration
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	cleaned := 0

	for jobID, job := range m.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, jobID)
			cleaned++
		}
	}

	if cleaned > 0 {
		m.logger.Debug("cleaned up old jobs", "count", cleaned)
	}
}

// GetMetrics returns current job performance metrics
func (m *Manager) GetMetrics() JobMetricsData {
	return m.metrics.GetMetrics()
}

// GetJobSuccessRate returns the overall job success rate
func (m *Manager) GetJobSuccessRate() float64 {
	return m.metrics.GetSuccessRate()
}

// GetCurrentWorkload returns the number of currently active jobs
func (m *Manager) GetCurrentWorkload() int64 {
	return m.metrics.GetCurrentWorkload()
}
