package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultKeepAlive = 25 * time.Second
	DefaultBuffer    = 16
)

type Options struct {
	// KeepAlive is the ping interval; zero means DefaultKeepAlive.
	KeepAlive time.Duration
	// Buffer is the per-subscriber queue length; zero means DefaultBuffer.
	Buffer int
}

// Hub is the in-process registry of stream subscribers keyed by resource id.
// Delivery is best-effort: a subscriber whose queue is full is dropped.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	opts   Options
	logger zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(opts Options, logger zerolog.Logger) *Hub {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		opts:   opts,
		logger: logger.With().Str("component", "hub").Logger(),
	}
}

// Subscribe registers a listener for resourceID. The new subscription alone
// receives a connected event first.
func (h *Hub) Subscribe(resourceID string) *Subscription {
	sub := &Subscription{
		ID:         uuid.NewString(),
		ResourceID: resourceID,
		hub:        h,
		events:     make(chan Event, h.opts.Buffer),
		done:       make(chan struct{}),
	}

	h.mu.Lock()
	set, ok := h.subs[resourceID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[resourceID] = set
	}
	set[sub] = struct{}{}
	sub.events <- Event{Kind: KindConnected, ResourceID: resourceID}
	h.mu.Unlock()

	subscribersGauge.Inc()
	h.logger.Debug().Str("resource_id", resourceID).Str("subscription_id", sub.ID).Msg("subscribed")
	return sub
}

// Unsubscribe removes sub. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	removed := h.removeLocked(sub)
	h.mu.Unlock()

	if removed {
		h.logger.Debug().Str("resource_id", sub.ResourceID).Str("subscription_id", sub.ID).Msg("unsubscribed")
	}
}

func (h *Hub) removeLocked(sub *Subscription) bool {
	set, ok := h.subs[sub.ResourceID]
	if !ok {
		return false
	}
	if _, ok := set[sub]; !ok {
		return false
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.ResourceID)
	}
	close(sub.done)
	subscribersGauge.Dec()
	return true
}

// Publish queues an event for every subscriber of resourceID and returns how
// many accepted it. It never blocks on a transport and never fails.
func (h *Hub) Publish(resourceID string, kind Kind, data map[string]any) int {
	ev := Event{Kind: kind, ResourceID: resourceID, Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for sub := range h.subs[resourceID] {
		if h.offerLocked(sub, ev) {
			delivered++
		}
	}
	if delivered > 0 {
		publishedTotal.WithLabelValues(string(kind)).Add(float64(delivered))
	}
	return delivered
}

func (h *Hub) offerLocked(sub *Subscription, ev Event) bool {
	select {
	case sub.events <- ev:
		return true
	default:
		h.logger.Warn().
			Str("resource_id", sub.ResourceID).
			Str("subscription_id", sub.ID).
			Str("kind", string(ev.Kind)).
			Msg("subscriber queue full, dropping subscriber")
		h.removeLocked(sub)
		droppedTotal.Inc()
		return false
	}
}

// SubscriberCount returns the number of live subscriptions for resourceID.
func (h *Hub) SubscriberCount(resourceID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[resourceID])
}

// ResourceCount returns how many resources have at least one subscriber.
func (h *Hub) ResourceCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Start runs the keep-alive loop until Stop or ctx cancellation.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.cancel != nil {
		h.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(h.opts.KeepAlive)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				h.ping()
			case <-ctx.Done():
				return
			}
		}
	}()

	h.logger.Info().Dur("keep_alive", h.opts.KeepAlive).Msg("hub started")
}

// Stop ends the keep-alive loop. Subscriptions stay registered.
func (h *Hub) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	h.logger.Info().Msg("hub stopped")
}

// Close stops the hub and drops every subscription.
func (h *Hub) Close() {
	h.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subs {
		for sub := range set {
			h.removeLocked(sub)
		}
	}
}

func (h *Hub) ping() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, set := range h.subs {
		for sub := range set {
			h.offerLocked(sub, Event{Kind: KindPing, ResourceID: id})
		}
	}
}

// Subscription is one listener on one resource.
type Subscription struct {
	ID         string
	ResourceID string

	hub    *Hub
	events chan Event
	done   chan struct{}
}

// Events yields queued events in publish order.
func (s *Subscription) Events() <-chan Event { return s.events }

// Done is closed once the subscription has been removed from the hub.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close unsubscribes.
func (s *Subscription) Close() { s.hub.Unsubscribe(s) }

// Serve writes events to t until ctx ends, the hub drops the subscription, a
// write fails, or a deleted event has been delivered. It always unsubscribes
// and closes t before returning; a write failure is returned.
func (s *Subscription) Serve(ctx context.Context, t Transport) error {
	defer func() {
		s.hub.Unsubscribe(s)
		_ = t.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case ev := <-s.events:
			if err := t.Send(ev); err != nil {
				s.hub.logger.Debug().Err(err).
					Str("resource_id", s.ResourceID).
					Str("subscription_id", s.ID).
					Msg("transport write failed")
				droppedTotal.Inc()
				return err
			}
			if ev.Kind == KindDeleted {
				return nil
			}
		}
	}
}
