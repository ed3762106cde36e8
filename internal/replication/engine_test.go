package replication

import (
	"context"
	stdErrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/go-autocomplete/index"
	"github.com/gcbaptista/go-autocomplete/internal/counterstore"
	"github.com/gcbaptista/go-autocomplete/internal/errors"
	"github.com/gcbaptista/go-autocomplete/model"
	"github.com/gcbaptista/go-autocomplete/services"
)

var errDown = stdErrors.New("connection refused")

// flakyStore wraps a MemoryStore with switchable failures
type flakyStore struct {
	*counterstore.MemoryStore

	mu            sync.Mutex
	snapshotErr   error
	incrementErr  error
	getErr        error
	publishErr    error
	subscribeErr  error
	blockIncr     bool
	snapshotCalls int
}

func newFlakyStore(counts map[string]int64) *flakyStore {
	return &flakyStore{MemoryStore: counterstore.NewMemoryStoreWithCounts(counts, nil)}
}

func (s *flakyStore) set(fn func(s *flakyStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *flakyStore) Snapshot(ctx context.Context) (map[string]int64, error) {
	s.mu.Lock()
	s.snapshotCalls++
	err := s.snapshotErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.Snapshot(ctx)
}

func (s *flakyStore) Increment(ctx context.Context, phrase string) (int64, error) {
	s.mu.Lock()
	err, block := s.incrementErr, s.blockIncr
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if err != nil {
		return 0, err
	}
	return s.MemoryStore.Increment(ctx, phrase)
}

func (s *flakyStore) Get(ctx context.Context, phrase string) (int64, error) {
	s.mu.Lock()
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return s.MemoryStore.Get(ctx, phrase)
}

func (s *flakyStore) Publish(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	err := s.publishErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.Publish(ctx, payload)
}

func (s *flakyStore) Subscribe(ctx context.Context, handler services.NotificationHandler) (services.Subscription, error) {
	s.mu.Lock()
	err := s.subscribeErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.Subscribe(ctx, handler)
}

func newEngine(t *testing.T, store services.CounterStore, guard bool) (*Engine, *index.PrefixIndex) {
	t.Helper()
	idx := index.New()
	e := New(store, idx, Options{
		ReplicaID:         "replica-test",
		Channel:           "autocomplete_updates",
		Timeout:           200 * time.Millisecond,
		VersionGuard:      guard,
		BootstrapAttempts: 2,
		BootstrapDelay:    time.Millisecond,
	}, nil)
	t.Cleanup(func() { _ = e.Close() })
	return e, idx
}

func search(t *testing.T, idx *index.PrefixIndex, prefix string, topK int) []model.Suggestion {
	t.Helper()
	results, err := idx.Search(context.Background(), prefix, topK)
	require.NoError(t, err)
	return results
}

func TestBootstrap_LoadsSnapshot(t *testing.T) {
	store := newFlakyStore(map[string]int64{"hello": 5, "help": 2})
	e, idx := newEngine(t, store, true)

	require.NoError(t, e.Bootstrap(context.Background()))

	assert.True(t, e.Bootstrapped())
	assert.Equal(t, []model.Suggestion{
		{Phrase: "hello", Count: 5},
		{Phrase: "help", Count: 2},
	}, search(t, idx, "hel", 5))
}

func TestBootstrap_EmptySnapshot(t *testing.T) {
	e, idx := newEngine(t, newFlakyStore(nil), true)

	require.NoError(t, e.Bootstrap(context.Background()))
	assert.True(t, e.Bootstrapped())
	assert.Equal(t, 0, idx.Len())
}

func TestBootstrap_SkipsInvalidEntries(t *testing.T) {
	store := newFlakyStore(map[string]int64{"ok": 1, "zero": 0, "": 4})
	e, idx := newEngine(t, store, true)

	require.NoError(t, e.Bootstrap(context.Background()))
	assert.Equal(t, 1, idx.Len())
}

func TestBootstrap_FailsAfterRetries(t *testing.T) {
	store := newFlakyStore(map[string]int64{"hello": 5})
	store.set(func(s *flakyStore) { s.snapshotErr = errDown })
	e, _ := newEngine(t, store, true)

	err := e.Bootstrap(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errDown)
	assert.False(t, e.Bootstrapped())
	assert.Equal(t, 2, store.snapshotCalls)
}

func TestBootstrap_RecoversOnRetry(t *testing.T) {
	store := newFlakyStore(map[string]int64{"hello": 5})
	store.set(func(s *flakyStore) { s.snapshotErr = errDown })
	e, idx := newEngine(t, store, true)

	// Recover after the first failed attempt
	e.opts.BootstrapDelay = 20 * time.Millisecond
	go func() {
		time.Sleep(5 * time.Millisecond)
		store.set(func(s *flakyStore) { s.snapshotErr = nil })
	}()

	require.NoError(t, e.Bootstrap(context.Background()))
	count, ok := idx.Count("hello")
	assert.True(t, ok)
	assert.Equal(t, int64(5), count)
}

func TestSubmit_ReturnsAuthoritativeCount(t *testing.T) {
	store := newFlakyStore(map[string]int64{"cat": 2})
	e, idx := newEngine(t, store, true)
	require.NoError(t, e.Bootstrap(context.Background()))

	newCount, err := e.Submit(context.Background(), "cat")

	require.NoError(t, err)
	assert.Equal(t, int64(3), newCount)
	assert.Equal(t, []model.Suggestion{{Phrase: "cat", Count: 3}}, search(t, idx, "cat", 1))
}

func TestSubmit_CorrectsLocalDrift(t *testing.T) {
	// Another replica already raised "go" to 7 in the store
	store := newFlakyStore(map[string]int64{"go": 7})
	e, idx := newEngine(t, store, true)

	newCount, err := e.Submit(context.Background(), "go")

	require.NoError(t, err)
	assert.Equal(t, int64(8), newCount)
	count, _ := idx.Count("go")
	assert.Equal(t, int64(8), count)
}

func TestSubmit_RejectsEmptyPhrase(t *testing.T) {
	e, idx := newEngine(t, newFlakyStore(nil), true)

	_, err := e.Submit(context.Background(), "")

	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Equal(t, 0, idx.Len())
}

func TestSubmit_StoreFailureKeepsOptimisticUpdate(t *testing.T) {
	store := newFlakyStore(nil)
	store.set(func(s *flakyStore) { s.incrementErr = errDown })
	e, idx := newEngine(t, store, true)

	_, err := e.Submit(context.Background(), "cat")

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, errors.ErrStoreTimeout)

	count, ok := idx.Count("cat")
	assert.True(t, ok, "optimistic update must not be rolled back")
	assert.Equal(t, int64(1), count)
	assert.Equal(t, []string{"cat"}, e.Unconfirmed())
}

func TestSubmit_StoreTimeout(t *testing.T) {
	store := newFlakyStore(nil)
	store.set(func(s *flakyStore) { s.blockIncr = true })
	e, _ := newEngine(t, store, true)
	e.opts.Timeout = 20 * time.Millisecond

	start := time.Now()
	_, err := e.Submit(context.Background(), "slow")

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStoreTimeout)
	assert.ErrorIs(t, err, errors.ErrStoreUnavailable)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, e.UnconfirmedCount())
}

func TestSubmit_PublishFailureIsNotFatal(t *testing.T) {
	store := newFlakyStore(nil)
	store.set(func(s *flakyStore) { s.publishErr = errDown })
	e, idx := newEngine(t, store, true)

	newCount, err := e.Submit(context.Background(), "cat")

	require.NoError(t, err)
	assert.Equal(t, int64(1), newCount)
	count, _ := idx.Count("cat")
	assert.Equal(t, int64(1), count)
	assert.Zero(t, e.UnconfirmedCount())
}

func TestReconcileUnconfirmed(t *testing.T) {
	store := newFlakyStore(nil)
	store.set(func(s *flakyStore) { s.incrementErr = errDown })
	e, idx := newEngine(t, store, true)

	_, err := e.Submit(context.Background(), "lost")
	require.Error(t, err)
	_, err = e.Submit(context.Background(), "kept")
	require.Error(t, err)

	// "kept" reached the store through another replica meanwhile
	_, err = store.MemoryStore.Increment(context.Background(), "kept")
	require.NoError(t, err)
	_, err = store.MemoryStore.Increment(context.Background(), "kept")
	require.NoError(t, err)

	t.Run("store still down", func(t *testing.T) {
		store.set(func(s *flakyStore) { s.getErr = errDown })

		done, err := e.ReconcileUnconfirmed(context.Background())

		assert.ErrorIs(t, err, errors.ErrStoreUnavailable)
		assert.Zero(t, done)
		assert.Equal(t, 2, e.UnconfirmedCount())
	})

	t.Run("store recovered", func(t *testing.T) {
		store.set(func(s *flakyStore) { s.getErr = nil })

		done, err := e.ReconcileUnconfirmed(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 2, done)
		assert.Zero(t, e.UnconfirmedCount())

		_, ok := idx.Count("lost")
		assert.False(t, ok, "phrase the store never saw must disappear")
		count, _ := idx.Count("kept")
		assert.Equal(t, int64(2), count)
	})

	t.Run("nothing to do", func(t *testing.T) {
		done, err := e.ReconcileUnconfirmed(context.Background())
		require.NoError(t, err)
		assert.Zero(t, done)
	})
}

func TestSubmit_SuccessClearsUnconfirmed(t *testing.T) {
	store := newFlakyStore(nil)
	store.set(func(s *flakyStore) { s.incrementErr = errDown })
	e, idx := newEngine(t, store, true)

	_, err := e.Submit(context.Background(), "cat")
	require.Error(t, err)

	store.set(func(s *flakyStore) { s.incrementErr = nil })
	newCount, err := e.Submit(context.Background(), "cat")

	require.NoError(t, err)
	assert.Equal(t, int64(1), newCount)
	count, _ := idx.Count("cat")
	assert.Equal(t, int64(1), count, "local drift from the failed submit is corrected")
	assert.Zero(t, e.UnconfirmedCount())
}

func TestOnRemoteChange_OverridesLocalCount(t *testing.T) {
	e, idx := newEngine(t, newFlakyStore(nil), true)
	for i := 0; i < 3; i++ {
		require.NoError(t, idx.Insert("cat"))
	}

	e.OnRemoteChange([]byte(`{"phrase":"cat","newCount":10}`))

	assert.Equal(t, []model.Suggestion{{Phrase: "cat", Count: 10}}, search(t, idx, "cat", 1))
}

func TestOnRemoteChange_MalformedPayloads(t *testing.T) {
	e, idx := newEngine(t, newFlakyStore(nil), true)
	require.NoError(t, idx.Insert("cat"))

	payloads := []string{
		`not json`,
		`{"phrase":"","newCount":3}`,
		`{"newCount":3}`,
		`{"phrase":"cat","newCount":0}`,
		`{"phrase":"cat","newCount":-4}`,
		`{"phrase":"cat","newCount":"ten"}`,
	}
	for _, p := range payloads {
		e.OnRemoteChange([]byte(p))
	}

	assert.Equal(t, []model.Suggestion{{Phrase: "cat", Count: 1}}, search(t, idx, "", 10))
}

func TestApply_VersionGuard(t *testing.T) {
	tests := []struct {
		name     string
		guard    bool
		counts   []int64
		expected int64
	}{
		{"in order", true, []int64{1, 2, 3}, 3},
		{"out of order", true, []int64{5, 3}, 5},
		{"duplicate", true, []int64{4, 4}, 4},
		{"without guard, arrival order wins", false, []int64{5, 3}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, idx := newEngine(t, newFlakyStore(nil), tt.guard)
			for _, c := range tt.counts {
				e.Apply(model.ChangeNotification{Phrase: "cat", NewCount: c})
			}
			count, _ := idx.Count("cat")
			assert.Equal(t, tt.expected, count)
		})
	}
}

func TestApply_ReportsStaleNotifications(t *testing.T) {
	e, _ := newEngine(t, newFlakyStore(nil), true)

	assert.True(t, e.Apply(model.ChangeNotification{Phrase: "cat", NewCount: 2}))
	assert.False(t, e.Apply(model.ChangeNotification{Phrase: "cat", NewCount: 2}))
	assert.False(t, e.Apply(model.ChangeNotification{Phrase: "cat", NewCount: 1}))
}

func TestApply_NotificationOlderThanBootstrap(t *testing.T) {
	store := newFlakyStore(map[string]int64{"cat": 9})
	e, idx := newEngine(t, store, true)
	require.NoError(t, e.Bootstrap(context.Background()))

	e.Apply(model.ChangeNotification{Phrase: "cat", NewCount: 4})

	count, _ := idx.Count("cat")
	assert.Equal(t, int64(9), count)
}

func TestStart_SubscriptionStates(t *testing.T) {
	t.Run("active", func(t *testing.T) {
		e, _ := newEngine(t, newFlakyStore(nil), true)
		assert.Equal(t, StateDisconnected, e.State())

		require.NoError(t, e.Start(context.Background()))
		assert.Equal(t, StateActive, e.State())

		require.NoError(t, e.Close())
		assert.Equal(t, StateDisconnected, e.State())
	})

	t.Run("failed subscription keeps search working", func(t *testing.T) {
		store := newFlakyStore(map[string]int64{"hello": 5})
		store.set(func(s *flakyStore) { s.subscribeErr = errDown })
		e, idx := newEngine(t, store, true)
		require.NoError(t, e.Bootstrap(context.Background()))

		err := e.Start(context.Background())

		assert.ErrorIs(t, err, errors.ErrSubscriptionFailure)
		assert.Equal(t, StateFailed, e.State())
		assert.Equal(t, []model.Suggestion{{Phrase: "hello", Count: 5}}, search(t, idx, "he", 5))
	})
}

func TestReplicasConverge(t *testing.T) {
	shared := newFlakyStore(nil)
	a, idxA := newEngine(t, shared, true)
	b, idxB := newEngine(t, shared, true)
	for _, e := range []*Engine{a, b} {
		require.NoError(t, e.Bootstrap(context.Background()))
		require.NoError(t, e.Start(context.Background()))
	}

	for i := 0; i < 2; i++ {
		_, err := a.Submit(context.Background(), "go")
		require.NoError(t, err)
	}
	_, err := b.Submit(context.Background(), "golang")
	require.NoError(t, err)

	expected := []model.Suggestion{{Phrase: "go", Count: 2}, {Phrase: "golang", Count: 1}}
	assert.Eventually(t, func() bool {
		resultsA, errA := idxA.Search(context.Background(), "go", 5)
		resultsB, errB := idxB.Search(context.Background(), "go", 5)
		return errA == nil && errB == nil &&
			assert.ObjectsAreEqual(expected, resultsA) &&
			assert.ObjectsAreEqual(expected, resultsB)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConcurrentSubmitsAndNotifications(t *testing.T) {
	shared := newFlakyStore(nil)
	e, idx := newEngine(t, shared, true)
	require.NoError(t, e.Bootstrap(context.Background()))
	require.NoError(t, e.Start(context.Background()))

	const submitters, perSubmitter = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSubmitter; j++ {
				_, err := e.Submit(context.Background(), "hot")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	// Echoed notifications may still be in flight but can never lower the count
	count, _ := idx.Count("hot")
	assert.Equal(t, int64(submitters*perSubmitter), count)
	assert.Never(t, func() bool {
		c, _ := idx.Count("hot")
		return c != submitters*perSubmitter
	}, 100*time.Millisecond, 10*time.Millisecond)
}
