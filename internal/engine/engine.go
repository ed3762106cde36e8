package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gcbaptista/go-autocomplete/config"
	"github.com/gcbaptista/go-autocomplete/index"
	"github.com/gcbaptista/go-autocomplete/internal/errors"
	"github.com/gcbaptista/go-autocomplete/internal/jobs"
	"github.com/gcbaptista/go-autocomplete/internal/logger"
	"github.com/gcbaptista/go-autocomplete/internal/metrics"
	"github.com/gcbaptista/go-autocomplete/internal/replication"
	"github.com/gcbaptista/go-autocomplete/model"
	"github.com/gcbaptista/go-autocomplete/services"
)

const jobWorkers = 2

// Engine runs one autocomplete replica.
// It implements the services.Autocompleter, services.JobManager and
// services.Reconciler interfaces.
type Engine struct {
	index      *index.PrefixIndex
	sync       *replication.Engine
	jobManager *jobs.Manager
	settings   config.Settings
	logger     *slog.Logger

	mu       sync.Mutex
	started  bool
	stopLoop context.CancelFunc
	loopDone chan struct{}
}

// NewEngine creates a replica over store. The store is owned by the caller
// and must outlive the engine.
func NewEngine(store services.CounterStore, settings config.Settings, l *slog.Logger) *Engine {
	settings.ApplyDefaults()
	l = logger.OrDiscard(l)

	idx := index.New()
	replicaID := uuid.NewString()

	return &Engine{
		index: idx,
		sync: replication.New(store, idx, replication.Options{
			ReplicaID:         replicaID,
			Channel:           settings.Store.Channel,
			Timeout:           settings.Store.Timeout,
			VersionGuard:      settings.VersionGuardEnabled(),
			BootstrapAttempts: settings.Sync.BootstrapAttempts,
		}, l),
		jobManager: jobs.NewManager(jobWorkers, l),
		settings:   settings,
		logger:     l.With("replica_id", replicaID),
	}
}

// Start bootstraps the index from the store, subscribes to change
// notifications and starts the reconcile loop. A bootstrap failure is
// returned and the engine must not serve; a subscription failure is not.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	e.jobManager.Start()

	start := time.Now()
	jobID, err := e.jobManager.RunJob(model.JobTypeBootstrap, map[string]string{
		"replica_id": e.sync.ReplicaID(),
	}, func(_ context.Context, job *model.Job) error {
		return e.sync.Bootstrap(ctx)
	})
	if err != nil {
		e.jobManager.Stop()
		return fmt.Errorf("replica cannot start (bootstrap job %s): %w", jobID, err)
	}
	e.logger.Info("index bootstrapped", "job_id", jobID, "phrases", e.index.Len(), "duration", time.Since(start))

	if err := e.sync.Start(ctx); err != nil {
		e.logger.Warn("running in degraded mode", "error", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	e.stopLoop = cancel
	e.loopDone = make(chan struct{})
	go e.reconcileLoop(loopCtx, e.settings.Sync.ReconcileInterval)

	e.started = true
	return nil
}

// Stop halts the reconcile loop, drops the subscription and waits for
// running jobs. It does not close the store.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}
	e.started = false

	e.stopLoop()
	<-e.loopDone

	err := e.sync.Close()
	e.jobManager.Stop()
	e.logger.Info("engine stopped")
	return err
}

// Search returns up to topK suggestions for prefix from the local index.
func (e *Engine) Search(ctx context.Context, prefix string, topK int) ([]model.Suggestion, error) {
	if !e.sync.Bootstrapped() {
		return nil, errors.ErrNotBootstrapped
	}

	start := time.Now()
	results, err := e.index.Search(ctx, prefix, topK)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SearchLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
	return results, err
}

// Submit records one use of phrase and returns its authoritative count.
func (e *Engine) Submit(ctx context.Context, phrase string) (int64, error) {
	if !e.sync.Bootstrapped() {
		return 0, errors.ErrNotBootstrapped
	}
	return e.sync.Submit(ctx, phrase)
}

// Stats describes this replica
func (e *Engine) Stats() services.Stats {
	return services.Stats{
		ReplicaID:          e.sync.ReplicaID(),
		Phrases:            e.index.Len(),
		Nodes:              e.index.Nodes(),
		SubscriptionState:  e.sync.State().String(),
		UnconfirmedPhrases: e.sync.UnconfirmedCount(),
		Bootstrapped:       e.sync.Bootstrapped(),
	}
}

// Settings returns the effective settings, defaults applied
func (e *Engine) Settings() config.Settings {
	return e.settings
}

// GetJob retrieves a job by ID
func (e *Engine) GetJob(jobID string) (*model.Job, error) {
	return e.jobManager.GetJob(jobID)
}

// ListJobs returns jobs, optionally filtered by status
func (e *Engine) ListJobs(status *model.JobStatus) []*model.Job {
	return e.jobManager.ListJobs(status)
}

// GetJobMetrics returns job performance metrics
func (e *Engine) GetJobMetrics() jobs.JobMetricsData {
	return e.jobManager.GetMetrics()
}

// GetJobSuccessRate returns the overall job success rate
func (e *Engine) GetJobSuccessRate() float64 {
	return e.jobManager.GetJobSuccessRate()
}

// GetCurrentWorkload returns the number of pending or running jobs
func (e *Engine) GetCurrentWorkload() int64 {
	return e.jobManager.GetCurrentWorkload()
}
