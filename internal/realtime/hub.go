package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const subscriberBufferSize = 64

// Hub is the in-process fan-out of events, keyed by owner.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*subscriber // ownerID -> subID
	logger      zerolog.Logger
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
}

func (s *subscriber) close() {
	close(s.done)
	close(s.ch)
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[string]*subscriber),
		logger:      logger.With().Str("component", "realtime_hub").Logger(),
	}
}

// Subscribe registers a receiver for ownerID's events. The channel is closed
// when ctx ends or Unsubscribe is called.
func (h *Hub) Subscribe(ctx context.Context, ownerID string) (<-chan Event, string) {
	subID := uuid.NewString()
	sub := &subscriber{
		ch:   make(chan Event, subscriberBufferSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if _, ok := h.subscribers[ownerID]; !ok {
		h.subscribers[ownerID] = make(map[string]*subscriber)
	}
	h.subscribers[ownerID][subID] = sub
	h.mu.Unlock()

	h.logger.Debug().Str("owner_id", ownerID).Str("sub_id", subID).Msg("subscriber added")

	go func() {
		select {
		case <-ctx.Done():
			h.Unsubscribe(ownerID, subID)
		case <-sub.done:
		}
	}()

	return sub.ch, subID
}

// Publish never blocks. A subscriber whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for subID, sub := range h.subscribers[event.OwnerID] {
		select {
		case sub.ch <- event:
		default:
			h.logger.Debug().Str("owner_id", event.OwnerID).Str("sub_id", subID).Msg("dropped event for slow subscriber")
		}
	}
	return nil
}

func (h *Hub) Unsubscribe(ownerID, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[ownerID]
	if !ok {
		return
	}
	sub, ok := subs[subID]
	if !ok {
		return
	}
	delete(subs, subID)
	sub.close()
	if len(subs) == 0 {
		delete(h.subscribers, ownerID)
	}

	h.logger.Debug().Str("owner_id", ownerID).Str("sub_id", subID).Msg("subscriber removed")
}

func (h *Hub) SubscriberCount(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[ownerID])
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ownerID, subs := range h.subscribers {
		for subID, sub := range subs {
			sub.close()
			delete(subs, subID)
		}
		delete(h.subscribers, ownerID)
	}
}
