package expiry

import (
	"sync"
	"time"

	"imagehost/internal/events"

	"github.com/rs/zerolog"
)

// Publisher is the part of the event hub the expiry services need.
type Publisher interface {
	Publish(resourceID string, kind events.Kind, data map[string]any) int
}

// Timers arms and cancels per-image expiry notifications.
type Timers interface {
	Schedule(id string, expiresAt *time.Time)
	Cancel(id string)
}

type timerEntry struct {
	timer     *time.Timer
	expiresAt time.Time
}

// Scheduler keeps at most one timer per image. When a timer fires it
// publishes an expired event; deleting the image is left to the Sweeper.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*timerEntry
	pub    Publisher
	now    func() time.Time
	logger zerolog.Logger
}

func NewScheduler(pub Publisher, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		timers: make(map[string]*timerEntry),
		pub:    pub,
		now:    time.Now,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Schedule replaces any timer for id. A nil expiresAt only cancels; a deadline
// at or before now publishes expired right away.
func (s *Scheduler) Schedule(id string, expiresAt *time.Time) {
	s.mu.Lock()
	s.cancelLocked(id)

	if expiresAt == nil {
		s.mu.Unlock()
		return
	}

	at := expiresAt.UTC()
	delay := at.Sub(s.now())
	if delay <= 0 {
		s.mu.Unlock()
		s.fire(id, at)
		return
	}

	entry := &timerEntry{expiresAt: at}
	entry.timer = time.AfterFunc(delay, func() { s.onTimer(id, entry) })
	s.timers[id] = entry
	armedTimersGauge.Inc()
	s.mu.Unlock()

	s.logger.Debug().Str("resource_id", id).Time("expires_at", at).Dur("in", delay).Msg("timer armed")
}

// Cancel drops the pending timer for id, if any.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(id)
}

func (s *Scheduler) cancelLocked(id string) {
	entry, ok := s.timers[id]
	if !ok {
		return
	}
	entry.timer.Stop()
	delete(s.timers, id)
	armedTimersGauge.Dec()
}

// onTimer runs on the timer goroutine. A superseded entry may still fire if
// Stop raced with expiry, so it only publishes while it is the current one.
func (s *Scheduler) onTimer(id string, entry *timerEntry) {
	s.mu.Lock()
	if s.timers[id] != entry {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	armedTimersGauge.Dec()
	s.mu.Unlock()

	s.fire(id, entry.expiresAt)
}

func (s *Scheduler) fire(id string, at time.Time) {
	n := s.pub.Publish(id, events.KindExpired, map[string]any{"expires_at": at})
	timersFiredTotal.Inc()
	s.logger.Debug().Str("resource_id", id).Int("subscribers", n).Msg("expired published")
}

// Armed reports the deadline of the pending timer for id.
func (s *Scheduler) Armed(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.timers[id]
	if !ok {
		return time.Time{}, false
	}
	return entry.expiresAt, true
}

// Len returns the number of pending timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.timers {
		s.cancelLocked(id)
	}
	s.logger.Info().Msg("scheduler stopped")
}
