package canvas

import (
	"log/slog"
	"sync"

	"github.com/bert-systems/canvas/internal/logging"
	"github.com/bert-systems/canvas/pkg/domain"
)

// subscriberBuffer is the number of notifications a subscriber may lag behind.
const subscriberBuffer = 64

// hub fans notifications out to subscribers.
type hub struct {
	mu          sync.RWMutex
	subscribers map[chan domain.Notification]struct{}
	closed      bool
	logger      *slog.Logger
}

func newHub() *hub {
	return &hub{
		subscribers: make(map[chan domain.Notification]struct{}),
		logger:      logging.NewNop(),
	}
}

func (h *hub) subscribe() (<-chan domain.Notification, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan domain.Notification, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subscribers[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[ch]; ok {
				delete(h.subscribers, ch)
				close(ch)
			}
		})
	}
}

func (h *hub) publish(n domain.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- n:
		default:
			h.logger.Warn("subscriber buffer full, dropping notification", "kind", n.Kind, "revision", n.Revision)
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
