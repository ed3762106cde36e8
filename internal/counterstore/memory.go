// Package counterstore implements the shared counter store backends replicas
// synchronise through: Redis for multi-replica deployments, and in-process
// memory or an embedded badger database for single-replica setups and tests.
package counterstore

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"

	"github.com/gcbaptista/go-autocomplete/services"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("counter store closed")

// MemoryStore keeps counters in a map and broadcasts notifications to
// subscribers in the same process. Several engines sharing one MemoryStore
// behave like replicas sharing one Redis.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int64
	closed bool
	hub    *hub
}

// NewMemoryStore creates an empty in-process counter store.
func NewMemoryStore(l *slog.Logger) *MemoryStore {
	return &MemoryStore{
		counts: make(map[string]int64),
		hub:    newHub(defaultSubscriberBuffer, l),
	}
}

// NewMemoryStoreWithCounts creates a store pre-populated with counts.
func NewMemoryStoreWithCounts(counts map[string]int64, l *slog.Logger) *MemoryStore {
	s := NewMemoryStore(l)
	maps.Copy(s.counts, counts)
	return s
}

func (s *MemoryStore) Snapshot(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	return maps.Clone(s.counts), nil
}

func (s *MemoryStore) Increment(ctx context.Context, phrase string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	s.counts[phrase]++
	return s.counts[phrase], nil
}

func (s *MemoryStore) Get(ctx context.Context, phrase string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	return s.counts[phrase], nil
}

func (s *MemoryStore) Publish(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	s.hub.publish(payload)
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, handler services.NotificationHandler) (services.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	return s.hub.subscribe(handler), nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.hub.closeAll()
	return nil
}
