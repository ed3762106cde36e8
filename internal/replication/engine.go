// Package replication keeps a replica's PrefixIndex in step with the shared
// counter store. Local submissions are applied optimistically and written
// through to the store; counts learned from other replicas arrive as change
// notifications and overwrite the local projection.
//
// The store's authoritative count only grows, so it doubles as a per-phrase
// version: with the version guard enabled a notification carrying a count
// lower than one already applied is ignored, which keeps duplicated or
// reordered deliveries from regressing a count.
package replication

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gcbaptista/go-autocomplete/index"
	"github.com/gcbaptista/go-autocomplete/internal/errors"
	"github.com/gcbaptista/go-autocomplete/internal/logger"
	"github.com/gcbaptista/go-autocomplete/internal/metrics"
	"github.com/gcbaptista/go-autocomplete/internal/retry"
	"github.com/gcbaptista/go-autocomplete/model"
	"github.com/gcbaptista/go-autocomplete/services"
)

const (
	opSnapshot  = "snapshot"
	opIncrement = "increment"
	opGet       = "get"
	opPublish   = "publish"
	opSubscribe = "subscribe"
)

// Options tunes an Engine. Zero values fall back to the defaults below.
type Options struct {
	ReplicaID         string
	Channel           string        // Only used to label subscription errors
	Timeout           time.Duration // Bound on every counter store call (default 2s)
	VersionGuard      bool
	BootstrapAttempts int           // default 3
	BootstrapDelay    time.Duration // First retry delay, doubled per attempt (default 150ms)
}

// Engine synchronises one PrefixIndex with a CounterStore
type Engine struct {
	store  services.CounterStore
	index  *index.PrefixIndex
	logger *slog.Logger
	opts   Options

	// mu orders the decide-then-apply step of every authoritative count so
	// that two concurrent appliers cannot interleave between check and write.
	mu          sync.Mutex
	applied     map[string]int64
	unconfirmed map[string]struct{}

	state        atomic.Int32
	bootstrapped atomic.Bool

	subMu sync.Mutex
	sub   services.Subscription

	reconciles singleflight.Group
	now        func() time.Time
}

// New creates an Engine over idx. Nothing is read from the store until
// Bootstrap is called.
func New(store services.CounterStore, idx *index.PrefixIndex, opts Options, l *slog.Logger) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.BootstrapAttempts <= 0 {
		opts.BootstrapAttempts = 3
	}
	if opts.BootstrapDelay <= 0 {
		opts.BootstrapDelay = 150 * time.Millisecond
	}

	e := &Engine{
		store:       store,
		index:       idx,
		logger:      logger.OrDiscard(l).With("component", "replication", "replica_id", opts.ReplicaID),
		opts:        opts,
		applied:     make(map[string]int64),
		unconfirmed: make(map[string]struct{}),
		now:         time.Now,
	}
	e.setState(StateDisconnected)
	return e
}

// ReplicaID identifies this replica on the change channel
func (e *Engine) ReplicaID() string {
	return e.opts.ReplicaID
}

// Bootstrapped reports whether the initial snapshot has been loaded
func (e *Engine) Bootstrapped() bool {
	return e.bootstrapped.Load()
}

// Bootstrap loads the store's full snapshot into the index. The fetch is
// retried a bounded number of times; a final failure is returned and should
// stop the replica from serving.
func (e *Engine) Bootstrap(ctx context.Context) error {
	var snapshot map[string]int64

	err := retry.Do(ctx, func(ctx context.Context) error {
		return e.call(ctx, opSnapshot, func(ctx context.Context) error {
			var err error
			snapshot, err = e.store.Snapshot(ctx)
			return err
		})
	},
		retry.WithMaxAttempts(e.opts.BootstrapAttempts),
		retry.WithBaseDelay(e.opts.BootstrapDelay),
		retry.WithOnRetry(func(attempt int, err error) {
			e.logger.Warn("snapshot fetch failed, retrying", "attempt", attempt, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("bootstrap from counter store: %w", err)
	}

	e.mu.Lock()
	skipped := 0
	for phrase, count := range snapshot {
		if phrase == "" || count < 1 {
			skipped++
			continue
		}
		if err := e.index.SetCount(phrase, count); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("apply snapshot entry %q: %w", phrase, err)
		}
		e.applied[phrase] = max(e.applied[phrase], count)
	}
	e.mu.Unlock()

	e.bootstrapped.Store(true)
	metrics.IndexedPhrases.Set(float64(e.index.Len()))
	e.logger.Info("bootstrapped from snapshot", "phrases", len(snapshot)-skipped, "skipped", skipped, "nodes", e.index.Nodes())
	return nil
}

// Submit records one use of phrase. The local index is updated before the
// store is contacted and is not rolled back if the store fails; the phrase is
// marked unconfirmed instead and picked up by ReconcileUnconfirmed.
func (e *Engine) Submit(ctx context.Context, phrase string) (int64, error) {
	if phrase == "" {
		metrics.SubmitsTotal.WithLabelValues("invalid").Inc()
		return 0, errors.NewValidationError("phrase", "phrase must not be empty")
	}

	if err := e.index.Insert(phrase); err != nil {
		metrics.SubmitsTotal.WithLabelValues("invalid").Inc()
		return 0, err
	}

	var newCount int64
	err := e.call(ctx, opIncrement, func(ctx context.Context) error {
		var err error
		newCount, err = e.store.Increment(ctx, phrase)
		return err
	})
	if err != nil {
		e.markUnconfirmed(phrase)
		metrics.SubmitsTotal.WithLabelValues("store_unavailable").Inc()
		e.logger.Warn("submission not confirmed by counter store", "phrase", phrase, "op", opIncrement, "error", err)
		return 0, err
	}

	e.publish(ctx, phrase, newCount)
	e.applyAuthoritative(phrase, newCount, true)

	metrics.SubmitsTotal.WithLabelValues("ok").Inc()
	metrics.IndexedPhrases.Set(float64(e.index.Len()))
	return newCount, nil
}

// publish broadcasts the new count. Failures only cost other replicas a live
// update, so they are logged and not returned.
func (e *Engine) publish(ctx context.Context, phrase string, newCount int64) {
	payload, err := EncodeNotification(model.ChangeNotification{
		Phrase:    phrase,
		NewCount:  newCount,
		ReplicaID: e.opts.ReplicaID,
		SentAt:    e.now().UTC(),
	})
	if err != nil {
		e.logger.Error("failed to encode change notification", "phrase", phrase, "error", err)
		return
	}

	err = e.call(ctx, opPublish, func(ctx context.Context) error {
		return e.store.Publish(ctx, payload)
	})
	if err != nil {
		e.logger.Warn("failed to publish change notification", "phrase", phrase, "op", opPublish, "error", err)
	}
}

// OnRemoteChange handles one payload from the change channel. It has the
// services.NotificationHandler signature and is safe for concurrent use.
func (e *Engine) OnRemoteChange(payload []byte) {
	n, err := DecodeNotification(payload)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(metrics.NotificationMalformed).Inc()
		e.logger.Warn("dropping malformed change notification", "error", err)
		return
	}
	e.Apply(n)
}

// Apply overwrites the local count of n.Phrase with n.NewCount and reports
// whether the notification changed anything. With the version guard enabled,
// counts not greater than the last applied one are ignored.
func (e *Engine) Apply(n model.ChangeNotification) bool {
	applied := e.applyAuthoritative(n.Phrase, n.NewCount, false)
	if !applied {
		metrics.NotificationsTotal.WithLabelValues(metrics.NotificationStale).Inc()
		e.logger.Debug("ignoring stale change notification", "phrase", n.Phrase, "new_count", n.NewCount, "from", n.ReplicaID)
		return false
	}

	metrics.NotificationsTotal.WithLabelValues(metrics.NotificationApplied).Inc()
	metrics.IndexedPhrases.Set(float64(e.index.Len()))
	return true
}

// applyAuthoritative writes count for phrase. A local reconcile always
// overwrites so that optimistic drift is corrected; under the version guard it
// writes the highest count seen so far rather than count itself.
func (e *Engine) applyAuthoritative(phrase string, count int64, reconcile bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.opts.VersionGuard {
		last := e.applied[phrase]
		if !reconcile && count <= last {
			return false
		}
		count = max(count, last)
		e.applied[phrase] = count
	}

	if err := e.index.SetCount(phrase, count); err != nil {
		e.logger.Error("failed to apply count", "phrase", phrase, "count", count, "error", err)
		return false
	}

	if reconcile {
		e.clearUnconfirmedLocked(phrase)
	}
	return true
}

// Start subscribes to the change channel. A failure leaves the replica in
// StateFailed: searches keep working from the bootstrap snapshot, only live
// updates from other replicas are lost. The returned error is informational.
func (e *Engine) Start(ctx context.Context) error {
	e.setState(StateSubscribing)

	var sub services.Subscription
	err := e.call(ctx, opSubscribe, func(ctx context.Context) error {
		var err error
		sub, err = e.store.Subscribe(ctx, e.OnRemoteChange)
		return err
	})
	if err != nil {
		e.setState(StateFailed)
		serr := errors.NewSubscriptionError(e.opts.Channel, err)
		e.logger.Warn("subscription failed, serving without live updates", "channel", e.opts.Channel, "error", err)
		return serr
	}

	e.subMu.Lock()
	e.sub = sub
	e.subMu.Unlock()

	e.setState(StateActive)
	e.logger.Info("subscribed to change notifications", "channel", e.opts.Channel)
	return nil
}

// Close drops the subscription. The store itself is left open.
func (e *Engine) Close() error {
	e.subMu.Lock()
	sub := e.sub
	e.sub = nil
	e.subMu.Unlock()

	e.setState(StateDisconnected)
	if sub == nil {
		return nil
	}
	return sub.Close()
}

func (e *Engine) markUnconfirmed(phrase string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.unconfirmed[phrase] = struct{}{}
	metrics.UnconfirmedPhrases.Set(float64(len(e.unconfirmed)))
}

func (e *Engine) clearUnconfirmedLocked(phrase string) {
	if _, ok := e.unconfirmed[phrase]; !ok {
		return
	}
	delete(e.unconfirmed, phrase)
	metrics.UnconfirmedPhrases.Set(float64(len(e.unconfirmed)))
}

// Unconfirmed returns the sorted phrases whose local count awaits reconciliation
func (e *Engine) Unconfirmed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	phrases := make([]string, 0, len(e.unconfirmed))
	for phrase := range e.unconfirmed {
		phrases = append(phrases, phrase)
	}
	slices.Sort(phrases)
	return phrases
}

// UnconfirmedCount returns the number of phrases awaiting reconciliation
func (e *Engine) UnconfirmedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.unconfirmed)
}

// ReconcileUnconfirmed reads the authoritative count of every unconfirmed
// phrase and overwrites the local one. It stops at the first store failure,
// leaving the remaining phrases marked. Concurrent calls share one pass.
func (e *Engine) ReconcileUnconfirmed(ctx context.Context) (int, error) {
	v, err, shared := e.reconciles.Do("reconcile", func() (any, error) {
		return e.reconcile(ctx)
	})
	if shared {
		e.logger.Debug("joined in-flight reconcile pass")
	}
	return v.(int), err
}

func (e *Engine) reconcile(ctx context.Context) (int, error) {
	phrases := e.Unconfirmed()
	if len(phrases) == 0 {
		return 0, nil
	}

	done := 0
	for _, phrase := range phrases {
		var count int64
		err := e.call(ctx, opGet, func(ctx context.Context) error {
			var err error
			count, err = e.store.Get(ctx, phrase)
			return err
		})
		if err != nil {
			e.logger.Warn("reconcile pass interrupted", "phrase", phrase, "op", opGet, "reconciled", done, "remaining", len(phrases)-done, "error", err)
			return done, err
		}

		e.applyAuthoritative(phrase, count, true)
		done++
	}

	metrics.IndexedPhrases.Set(float64(e.index.Len()))
	e.logger.Info("reconciled unconfirmed phrases", "count", done)
	return done, nil
}

// call runs one counter store operation under the configured timeout and
// maps any failure to a StoreUnavailableError.
func (e *Engine) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	// Drivers often surface an expired deadline as an i/o timeout
	if stdErrors.Is(ctx.Err(), context.DeadlineExceeded) && !stdErrors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", err, context.DeadlineExceeded)
	}

	serr := errors.NewStoreUnavailableError(op, err)
	kind := "unavailable"
	if serr.Timeout() {
		kind = "timeout"
	}
	metrics.StoreErrorsTotal.WithLabelValues(op, kind).Inc()
	return serr
}
