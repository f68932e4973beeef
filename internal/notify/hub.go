// Package notify fans section change events out to per-summons subscribers.
package notify

import (
	"sync"

	"go.uber.org/zap"

	"rechtstreeks/internal/domain"
)

const defaultBuffer = 16

type subscriber struct {
	ch chan domain.SectionEvent
}

// Hub delivers events without ever blocking the publisher. A subscriber whose buffer is
// full misses the event and is expected to re-read state.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: defaultBuffer,
		logger: logger,
	}
}

// Subscribe registers for events of one summons. cancel is idempotent and closes the channel.
func (h *Hub) Subscribe(summonsID string) (<-chan domain.SectionEvent, func()) {
	sub := &subscriber{ch: make(chan domain.SectionEvent, h.buffer)}

	h.mu.Lock()
	if h.subs[summonsID] == nil {
		h.subs[summonsID] = make(map[*subscriber]struct{})
	}
	h.subs[summonsID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[summonsID], sub)
			if len(h.subs[summonsID]) == 0 {
				delete(h.subs, summonsID)
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

func (h *Hub) Publish(ev domain.SectionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[ev.SummonsID] {
		h.send(sub, ev)
	}
}

// Resync tells every subscriber that events may have been lost and state must be re-read.
func (h *Hub) Resync() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for summonsID, subs := range h.subs {
		for sub := range subs {
			h.send(sub, domain.SectionEvent{SummonsID: summonsID, Resync: true})
		}
	}
}

func (h *Hub) send(sub *subscriber, ev domain.SectionEvent) {
	select {
	case sub.ch <- ev:
	default:
		h.logger.Warn("dropping section event for slow subscriber",
			zap.String("summons_id", ev.SummonsID),
			zap.String("section_key", string(ev.SectionKey)),
			zap.Bool("resync", ev.Resync),
		)
	}
}
