package app

import (
	"sync"
	"time"

	"forum-quiz-service/internal/domain"
)

// TimerSlot names one of the two timers a topic can have armed.
type TimerSlot int

const (
	// SlotTimeout fires when nobody answers the current question in time.
	SlotTimeout TimerSlot = iota
	// SlotGrace fires after the break between questions.
	SlotGrace
)

type timerKey struct {
	topic domain.TopicKey
	slot  TimerSlot
}

// TimerScheduler owns the per-topic timer registry. Scheduling into an
// occupied slot silently supersedes the previous timer. Cancellation is
// best-effort: work that has already started is never preempted, which is why
// timeout callbacks re-check the question instance before acting.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[timerKey]*time.Timer
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[timerKey]*time.Timer)}
}

// Schedule arms slot for key to run work after delay, cancelling any timer
// already in the slot.
func (s *TimerScheduler) Schedule(key domain.TopicKey, slot TimerSlot, delay time.Duration, work func()) {
	k := timerKey{topic: key, slot: slot}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[k]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[k] == t {
			delete(s.timers, k)
		}
		s.mu.Unlock()
		work()
	})
	s.timers[k] = t
}

// Cancel stops the timer in slot for key if one is armed; no-op otherwise.
func (s *TimerScheduler) Cancel(key domain.TopicKey, slot TimerSlot) {
	k := timerKey{topic: key, slot: slot}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[k]; ok {
		t.Stop()
		delete(s.timers, k)
	}
}

// CancelAll stops both slots for key. Used when a session reaches a terminal
// state or a correct answer arrives.
func (s *TimerScheduler) CancelAll(key domain.TopicKey) {
	s.Cancel(key, SlotTimeout)
	s.Cancel(key, SlotGrace)
}
