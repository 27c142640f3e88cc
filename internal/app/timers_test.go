package app

import (
	"testing"
	"time"

	"forum-quiz-service/internal/domain"
)

var testKey = domain.TopicKey{ConversationID: 1, TopicID: 2}

func TestScheduleFires(t *testing.T) {
	s := NewTimerScheduler()
	fired := make(chan struct{})
	s.Schedule(testKey, SlotTimeout, 10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestScheduleSupersedesSilently(t *testing.T) {
	s := NewTimerScheduler()
	first := make(chan struct{})
	second := make(chan struct{})
	s.Schedule(testKey, SlotTimeout, 30*time.Millisecond, func() { close(first) })
	s.Schedule(testKey, SlotTimeout, 10*time.Millisecond, func() { close(second) })

	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("superseding timer did not fire")
	}
	select {
	case <-first:
		t.Fatal("superseded timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	s := NewTimerScheduler()
	fired := make(chan struct{})
	s.Schedule(testKey, SlotTimeout, 20*time.Millisecond, func() { close(fired) })
	s.Cancel(testKey, SlotTimeout)

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(100 * time.Millisecond):
	}

	// Cancelling an empty slot is a no-op.
	s.Cancel(testKey, SlotTimeout)
}

func TestCancelAllStopsBothSlots(t *testing.T) {
	s := NewTimerScheduler()
	timeoutFired := make(chan struct{})
	graceFired := make(chan struct{})
	s.Schedule(testKey, SlotTimeout, 20*time.Millisecond, func() { close(timeoutFired) })
	s.Schedule(testKey, SlotGrace, 20*time.Millisecond, func() { close(graceFired) })
	s.CancelAll(testKey)

	select {
	case <-timeoutFired:
		t.Fatal("timeout slot fired after CancelAll")
	case <-graceFired:
		t.Fatal("grace slot fired after CancelAll")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSlotsAndKeysAreIndependent(t *testing.T) {
	s := NewTimerScheduler()
	otherKey := domain.TopicKey{ConversationID: 1, TopicID: 3}
	graceFired := make(chan struct{})
	otherFired := make(chan struct{})
	s.Schedule(testKey, SlotTimeout, 10*time.Millisecond, func() {})
	s.Schedule(testKey, SlotGrace, 10*time.Millisecond, func() { close(graceFired) })
	s.Schedule(otherKey, SlotTimeout, 10*time.Millisecond, func() { close(otherFired) })
	s.Cancel(testKey, SlotTimeout)

	select {
	case <-graceFired:
	case <-time.After(time.Second):
		t.Fatal("grace slot was cancelled along with the timeout slot")
	}
	select {
	case <-otherFired:
	case <-time.After(time.Second):
		t.Fatal("other key's timer was cancelled")
	}
}

func TestCancelDoesNotPreemptStartedWork(t *testing.T) {
	s := NewTimerScheduler()
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	s.Schedule(testKey, SlotTimeout, time.Millisecond, func() {
		close(started)
		<-release
		close(done)
	})

	<-started
	s.Cancel(testKey, SlotTimeout)
	close(release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("in-flight work was interrupted by cancel")
	}
}
