// Package services declares the contracts between the HTTP boundary, the
// autocomplete core and its external counter store.
package services

import (
	"context"

	"github.com/gcbaptista/go-autocomplete/model"
)

// NotificationHandler receives the raw payload of one change notification.
// It is invoked on the store's delivery path and must not block for long.
type NotificationHandler func(payload []byte)

// Subscription is an acknowledged registration on the change channel.
type Subscription interface {
	Close() error
}

// CounterStore is the authoritative shared counter service all replicas use.
// Every call may cross a process boundary and must honour ctx deadlines.
type CounterStore interface {
	// Snapshot returns every known phrase/count pair. An empty map is valid.
	Snapshot(ctx context.Context) (map[string]int64, error)
	// Increment atomically adds one to phrase (creating it at 1) and returns the new count.
	Increment(ctx context.Context, phrase string) (int64, error)
	// Get returns the current count of phrase, zero when absent.
	Get(ctx context.Context, phrase string) (int64, error)
	// Publish broadcasts payload to subscribers. Delivery is best effort.
	Publish(ctx context.Context, payload []byte) error
	// Subscribe registers handler and returns once the channel acknowledged it.
	Subscribe(ctx context.Context, handler NotificationHandler) (Subscription, error)
	// Close releases the store's connections.
	Close() error
}

// Searcher answers prefix queries
type Searcher interface {
	Search(ctx context.Context, prefix string, topK int) ([]model.Suggestion, error)
}

// Submitter records phrase submissions
type Submitter interface {
	Submit(ctx context.Context, phrase string) (int64, error)
}

// Stats describes the state of one replica
type Stats struct {
	ReplicaID          string `json:"replica_id"`
	Phrases            int    `json:"phrases"`
	Nodes              int    `json:"nodes"`
	SubscriptionState  string `json:"subscription_state"`
	UnconfirmedPhrases int    `json:"unconfirmed_phrases"`
	Bootstrapped       bool   `json:"bootstrapped"`
}

// Autocompleter is the core surface exposed to the HTTP boundary
type Autocompleter interface {
	Searcher
	Submitter
	Stats() Stats
}

// JobManager defines operations for inspecting background jobs
type JobManager interface {
	GetJob(jobID string) (*model.Job, error)
	ListJobs(status *model.JobStatus) []*model.Job
}

// Reconciler can be asked to re-read unconfirmed phrases from the store
type Reconciler interface {
	// TriggerReconcile starts a reconcile pass in the background and returns its job ID.
	TriggerReconcile() (string, error)
}
