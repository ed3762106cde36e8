package counterstore

import (
	"fmt"
	"log/slog"

	"github.com/gcbaptista/go-autocomplete/config"
	"github.com/gcbaptista/go-autocomplete/services"
)

// Open builds the backend selected by settings.Backend.
func Open(settings config.StoreSettings, l *slog.Logger) (services.CounterStore, error) {
	switch settings.Backend {
	case config.BackendMemory, "":
		return NewMemoryStore(l), nil
	case config.BackendRedis:
		return NewRedisStore(RedisOptions{
			URL:       settings.RedisURL,
			KeyPrefix: settings.KeyPrefix,
			Channel:   settings.Channel,
		}, l)
	case config.BackendBadger:
		return OpenBadgerStore(BadgerOptions{Path: settings.BadgerPath}, l)
	default:
		return nil, fmt.Errorf("unknown counter store backend %q", settings.Backend)
	}
}
