package jobs

import (
	"maps"
	"sync"
	"time"

	"github.com/gcbaptista/go-autocomplete/model"
)

const executionHistoryPerType = 100

// JobMetricsData is a point-in-time copy of JobMetrics, safe to serialise
type JobMetricsData struct {
	JobsCreated          int64                     `json:"jobs_created"`
	JobsCompleted        int64                     `json:"jobs_completed"`
	JobsFailed           int64                     `json:"jobs_failed"`
	AverageExecutionTime time.Duration             `json:"average_execution_time_ns"`
	JobsByType           map[model.JobType]int64   `json:"jobs_by_type"`
	FailuresByType       map[model.JobType]int64   `json:"failures_by_type"`
	JobsByStatus         map[model.JobStatus]int64 `json:"jobs_by_status"`
	LastFailure          string                    `json:"last_failure,omitempty"`
	LastUpdated          time.Time                 `json:"last_updated"`
}

// JobMetrics aggregates outcomes of bootstrap and reconcile jobs
type JobMetrics struct {
	mu                 sync.RWMutex
	jobsCreated        int64
	jobsCompleted      int64
	jobsFailed         int64
	totalExecutionTime time.Duration
	jobsByType         map[model.JobType]int64
	failuresByType     map[model.JobType]int64
	jobsByStatus       map[model.JobStatus]int64
	executionsByType   map[model.JobType][]time.Duration
	lastFailure        string
	lastUpdated        time.Time
}

// NewJobMetrics creates a new metrics collector
func NewJobMetrics() *JobMetrics {
	return &JobMetrics{
		jobsByType:       make(map[model.JobType]int64),
		failuresByType:   make(map[model.JobType]int64),
		jobsByStatus:     make(map[model.JobStatus]int64),
		executionsByType: make(map[model.JobType][]time.Duration),
		lastUpdated:      time.Now(),
	}
}

// RecordJobCreated counts a new pending job
func (m *JobMetrics) RecordJobCreated(jobType model.JobType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobsCreated++
	m.jobsByType[jobType]++
	m.jobsByStatus[model.JobStatusPending]++
	m.lastUpdated = time.Now()
}

// RecordJobStatusChange moves one job between status buckets
func (m *JobMetrics) RecordJobStatusChange(oldStatus, newStatus model.JobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if oldStatus != "" && m.jobsByStatus[oldStatus] > 0 {
		m.jobsByStatus[oldStatus]--
	}
	m.jobsByStatus[newStatus]++
	m.lastUpdated = time.Now()
}

// RecordJobCompleted records successful job completion
func (m *JobMetrics) RecordJobCompleted(jobType model.JobType, executionTime time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobsCompleted++
	m.totalExecutionTime += executionTime

	history := append(m.executionsByType[jobType], executionTime)
	if len(history) > executionHistoryPerType {
		history = history[1:]
	}
	m.executionsByType[jobType] = history

	m.lastUpdated = time.Now()
}

// RecordJobFailed records job failure and keeps its message
func (m *JobMetrics) RecordJobFailed(jobType model.JobType, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobsFailed++
	m.failuresByType[jobType]++
	if err != nil {
		m.lastFailure = err.Error()
	}
	m.lastUpdated = time.Now()
}

// GetMetrics returns a copy of current metrics
func (m *JobMetrics) GetMetrics() JobMetricsData {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var average time.Duration
	if m.jobsCompleted > 0 {
		average = m.totalExecutionTime / time.Duration(m.jobsCompleted)
	}

	return JobMetricsData{
		JobsCreated:          m.jobsCreated,
		JobsCompleted:        m.jobsCompleted,
		JobsFailed:           m.jobsFailed,
		AverageExecutionTime: average,
		JobsByType:           maps.Clone(m.jobsByType),
		FailuresByType:       maps.Clone(m.failuresByType),
		JobsByStatus:         maps.Clone(m.jobsByStatus),
		LastFailure:          m.lastFailure,
		LastUpdated:          m.lastUpdated,
	}
}

// GetAverageExecutionTimeByType averages the recent executions of one job type
func (m *JobMetrics) GetAverageExecutionTimeByType(jobType model.JobType) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	times := m.executionsByType[jobType]
	if len(times) == 0 {
		return 0
	}

	var total time.Duration
	for _, t := range times {
		total += t
	}
	return total / time.Duration(len(times))
}

// GetSuccessRate returns the success rate (0.0 to 1.0)
func (m *JobMetrics) GetSuccessRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	finished := m.jobsCompleted + m.jobsFailed
	if finished == 0 {
		return 1.0 // No jobs yet, assume 100% success
	}
	return float64(m.jobsCompleted) / float64(finished)
}

// GetCurrentWorkload returns the number of pending or running jobs
func (m *JobMetrics) GetCurrentWorkload() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.jobsByStatus[model.JobStatusPending] + m.jobsByStatus[model.JobStatusRunning]
}
