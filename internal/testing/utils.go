// Package testing provides utilities and helpers for testing autocomplete replicas.
package testing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/go-autocomplete/config"
	"github.com/gcbaptista/go-autocomplete/internal/counterstore"
	"github.com/gcbaptista/go-autocomplete/internal/engine"
	"github.com/gcbaptista/go-autocomplete/model"
	"github.com/gcbaptista/go-autocomplete/services"
)

// TestSettings returns settings with short timeouts suited to tests
func TestSettings() config.Settings {
	settings := config.Default()
	settings.Environment = "dev"
	settings.Store.Timeout = 500 * time.Millisecond
	settings.Sync.ReconcileInterval = time.Hour
	return settings
}

// CreateTestStore creates an in-process counter store seeded with counts,
// closed when the test ends
func CreateTestStore(t *testing.T, counts map[string]int64) *counterstore.MemoryStore {
	t.Helper()
	store := counterstore.NewMemoryStoreWithCounts(counts, nil)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// CreateTestEngine starts a replica over store with automatic shutdown.
// A nil store gets a fresh in-process one.
func CreateTestEngine(t *testing.T, store services.CounterStore) *engine.Engine {
	t.Helper()
	if store == nil {
		store = CreateTestStore(t, nil)
	}

	eng := engine.NewEngine(store, TestSettings(), nil)
	require.NoError(t, eng.Start(context.Background()), "Failed to start test engine")
	t.Cleanup(func() { _ = eng.Stop() })

	return eng
}

// SubmitPhrases submits every phrase in order
func SubmitPhrases(t *testing.T, submitter services.Submitter, phrases ...string) {
	t.Helper()
	for _, phrase := range phrases {
		_, err := submitter.Submit(context.Background(), phrase)
		require.NoError(t, err, "Failed to submit %q", phrase)
	}
}

// JobPollingOptions configures job polling behavior
type JobPollingOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
	LogProgress  bool
}

// DefaultJobPollingOptions returns sensible defaults for job polling
func DefaultJobPollingOptions() JobPollingOptions {
	return JobPollingOptions{
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
		LogProgress:  true,
	}
}

// WaitForJob polls a job until it finishes or times out and returns it in
// its final state, failed jobs included
func WaitForJob(t *testing.T, jobManager services.JobManager, jobID string, opts JobPollingOptions) *model.Job {
	t.Helper()
	timeout := time.After(opts.Timeout)
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			t.Fatalf("Job %s did not finish within %v timeout", jobID, opts.Timeout)
			return nil
		case <-ticker.C:
			job, err := jobManager.GetJob(jobID)
			require.NoError(t, err, "Failed to get job status")

			switch job.Status {
			case model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusCancelled:
				if opts.LogProgress {
					t.Logf("Job %s finished as %s in %v", jobID, job.Status, job.CompletedAt.Sub(job.CreatedAt))
				}
				return job
			case model.JobStatusRunning:
				if opts.LogProgress && job.Progress != nil {
					t.Logf("Job %s progress: %d/%d - %s",
						jobID,
						job.Progress.Current,
						job.Progress.Total,
						job.Progress.Message)
				}
			}
		}
	}
}

// AssertJobCompleted verifies that a job completed successfully
func AssertJobCompleted(t *testing.T, job *model.Job, expectedType model.JobType) {
	t.Helper()
	assert.Equal(t, model.JobStatusCompleted, job.Status, "Job should be completed")
	assert.Equal(t, expectedType, job.Type, "Job type should match")
	assert.NotNil(t, job.CompletedAt, "Job should have completion timestamp")
	assert.Empty(t, job.Error, "Job should not have error")
}

// SearchTestCase represents a test case for prefix searches
type SearchTestCase struct {
	Name     string
	Prefix   string
	TopK     int
	Expected []model.Suggestion
}

// RunSearchTests runs a suite of search tests against a searcher
func RunSearchTests(t *testing.T, searcher services.Searcher, tests []SearchTestCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			results, err := searcher.Search(context.Background(), tt.Prefix, tt.TopK)
			require.NoError(t, err, "Search should not fail")
			assert.Equal(t, tt.Expected, results, "Suggestions should match")
		})
	}
}
