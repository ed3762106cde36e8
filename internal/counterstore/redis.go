package counterstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/gcbaptista/go-autocomplete/internal/logger"
	"github.com/gcbaptista/go-autocomplete/services"
)

const defaultScanCount = 1000

// RedisOptions configures a RedisStore
type RedisOptions struct {
	URL       string // redis://[user:password@]host:port/db
	KeyPrefix string // Prepended to every phrase to form its counter key
	Channel   string // Pub/sub channel for change notifications
	ScanCount int64  // SCAN batch size hint used by Snapshot
}

// RedisStore keeps one integer key per phrase and uses Redis pub/sub as the
// change notification channel.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	channel   string
	scanCount int64
	logger    *slog.Logger
}

// NewRedisStore connects to the Redis server named by opts.URL.
func NewRedisStore(opts RedisOptions, l *slog.Logger) (*RedisStore, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	clientOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	return NewRedisStoreFromClient(redis.NewClient(clientOpts), opts, l), nil
}

// NewRedisStoreFromClient wraps an existing client. opts.URL is ignored.
func NewRedisStoreFromClient(client *redis.Client, opts RedisOptions, l *slog.Logger) *RedisStore {
	if opts.ScanCount <= 0 {
		opts.ScanCount = defaultScanCount
	}
	return &RedisStore{
		client:    client,
		prefix:    opts.KeyPrefix,
		channel:   opts.Channel,
		scanCount: opts.ScanCount,
		logger:    logger.OrDiscard(l),
	}
}

func (s *RedisStore) key(phrase string) string {
	return s.prefix + phrase
}

// Snapshot walks the key space with SCAN and reads values in MGET batches.
// Keys whose value is not a positive integer are skipped.
func (s *RedisStore) Snapshot(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	match := s.prefix + "*"

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, s.scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %q: %w", match, err)
		}

		if len(keys) > 0 {
			values, err := s.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, fmt.Errorf("mget %d keys: %w", len(keys), err)
			}
			for i, raw := range values {
				str, ok := raw.(string)
				if !ok {
					continue // key expired or deleted between SCAN and MGET
				}
				count, err := strconv.ParseInt(str, 10, 64)
				if err != nil || count <= 0 {
					s.logger.Debug("skipping non-counter key", "key", keys[i])
					continue
				}
				counts[strings.TrimPrefix(keys[i], s.prefix)] = count
			}
		}

		cursor = next
		if cursor == 0 {
			return counts, nil
		}
	}
}

func (s *RedisStore) Increment(ctx context.Context, phrase string) (int64, error) {
	return s.client.Incr(ctx, s.key(phrase)).Result()
}

func (s *RedisStore) Get(ctx context.Context, phrase string) (int64, error) {
	count, err := s.client.Get(ctx, s.key(phrase)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return count, err
}

func (s *RedisStore) Publish(ctx context.Context, payload []byte) error {
	return s.client.Publish(ctx, s.channel, payload).Err()
}

// Subscribe waits for Redis to confirm the subscription before returning.
// Messages are handed to handler from a dedicated goroutine.
func (s *RedisStore) Subscribe(ctx context.Context, handler services.NotificationHandler) (services.Subscription, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{pubsub: pubsub, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for msg := range pubsub.Channel() {
			if msg.Channel != s.channel {
				continue
			}
			handler([]byte(msg.Payload))
		}
	}()
	return sub, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
}

// Close unsubscribes and waits for the delivery goroutine to finish.
func (s *redisSubscription) Close() error {
	err := s.pubsub.Close()
	<-s.done
	return err
}
