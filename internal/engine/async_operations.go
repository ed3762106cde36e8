package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gcbaptista/go-autocomplete/model"
)

// TriggerReconcile starts a reconcile pass over unconfirmed phrases as a
// background job and returns its ID.
func (e *Engine) TriggerReconcile() (string, error) {
	pending := e.sync.UnconfirmedCount()

	jobID := e.jobManager.CreateJob(model.JobTypeReconcile, map[string]string{
		"operation":   "reconcile_unconfirmed",
		"unconfirmed": strconv.Itoa(pending),
	})

	err := e.jobManager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		return e.executeReconcileJob(ctx, jobID, pending)
	})
	if err != nil {
		return "", fmt.Errorf("failed to start reconcile job: %w", err)
	}

	return jobID, nil
}

// executeReconcileJob executes the reconcile job.
func (e *Engine) executeReconcileJob(ctx context.Context, jobID string, pending int) error {
	e.jobManager.UpdateJobProgress(jobID, 0, pending, "Reading authoritative counts")

	done, err := e.sync.ReconcileUnconfirmed(ctx)
	if err != nil {
		e.jobManager.UpdateJobProgress(jobID, done, pending, fmt.Sprintf("Interrupted after %d phrases", done))
		return err
	}

	// Phrases marked while the pass ran are left for the next one
	e.jobManager.UpdateJobProgress(jobID, done, max(pending, done), fmt.Sprintf("Reconciled %d phrases", done))
	return nil
}

// reconcileLoop triggers a reconcile pass every interval while phrases are
// waiting for confirmation.
func (e *Engine) reconcileLoop(ctx context.Context, interval time.Duration) {
	defer close(e.loopDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if e.sync.UnconfirmedCount() == 0 {
				continue
			}
			if _, err := e.TriggerReconcile(); err != nil {
				e.logger.Warn("failed to schedule reconcile pass", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
