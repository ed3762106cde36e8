package counterstore

import (
	"log/slog"
	"sync"

	"github.com/gcbaptista/go-autocomplete/internal/logger"
	"github.com/gcbaptista/go-autocomplete/internal/metrics"
	"github.com/gcbaptista/go-autocomplete/services"
)

const defaultSubscriberBuffer = 256

// hub fans published payloads out to in-process subscribers. Each subscriber
// has its own buffered queue drained by its own goroutine, so a slow handler
// never blocks the publisher; when a queue is full the payload is dropped.
type hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*hubSubscription
	buffer int
	logger *slog.Logger
}

func newHub(buffer int, l *slog.Logger) *hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &hub{
		subs:   make(map[uint64]*hubSubscription),
		buffer: buffer,
		logger: logger.OrDiscard(l),
	}
}

type hubSubscription struct {
	id    uint64
	hub   *hub
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func (h *hub) subscribe(handler services.NotificationHandler) *hubSubscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &hubSubscription{
		id:    h.nextID,
		hub:   h,
		queue: make(chan []byte, h.buffer),
		done:  make(chan struct{}),
	}
	h.subs[sub.id] = sub

	go sub.deliver(handler)
	return sub
}

func (h *hub) publish(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		msg := append([]byte(nil), payload...)
		select {
		case sub.queue <- msg:
		default:
			metrics.NotificationsTotal.WithLabelValues(metrics.NotificationDropped).Inc()
			h.logger.Warn("subscriber queue full, dropping notification", "subscriber", sub.id)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*hubSubscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (s *hubSubscription) deliver(handler services.NotificationHandler) {
	for {
		select {
		case payload := <-s.queue:
			handler(payload)
		case <-s.done:
			return
		}
	}
}

func (s *hubSubscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Close unregisters the subscription; queued payloads are discarded.
func (s *hubSubscription) Close() error {
	s.hub.mu.Lock()
	delete(s.hub.subs, s.id)
	s.hub.mu.Unlock()

	s.stop()
	return nil
}
