package http

import (
	"context"
	"sync"

	"forum-quiz-service/internal/domain"
)

// Hub fans announcements out to every websocket client subscribed to a
// conversation topic. It is the engine's Transport: Send broadcasts text into
// the topic with drop-stale semantics so one slow reader never blocks the
// quiz loop.
type Hub struct {
	mu   sync.RWMutex
	subs map[domain.TopicKey]map[chan string]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[domain.TopicKey]map[chan string]struct{})}
}

// Subscribe registers a listener for the topic. The caller must invoke the
// returned cancel function to avoid leaks.
func (h *Hub) Subscribe(key domain.TopicKey) (<-chan string, func()) {
	ch := make(chan string, 16)

	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[chan string]struct{})
	}
	h.subs[key][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[key]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, key)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Send implements app.Transport.
func (h *Hub) Send(_ context.Context, conversationID, topicID int64, text string) error {
	key := domain.TopicKey{ConversationID: conversationID, TopicID: topicID}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[key] {
		select {
		case ch <- text:
		default:
			// drop the oldest pending message rather than block the loop
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- text:
			default:
			}
		}
	}
	return nil
}
