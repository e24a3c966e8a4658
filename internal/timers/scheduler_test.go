package timers

import (
	"testing"
	"time"
)

type fakeTimer struct {
	delay   time.Duration
	fire    func()
	stopped bool
}

type fakeTimers struct {
	armed []*fakeTimer
}

func (f *fakeTimers) start(delay time.Duration, fire func()) StopFunc {
	timer := &fakeTimer{delay: delay, fire: fire}
	f.armed = append(f.armed, timer)
	return func() bool {
		if timer.stopped {
			return false
		}
		timer.stopped = true
		return true
	}
}

func (f *fakeTimers) fireLast() {
	if len(f.armed) == 0 {
		return
	}
	timer := f.armed[len(f.armed)-1]
	if !timer.stopped {
		timer.fire()
	}
}

func TestScheduleReplacesExistingTimer(t *testing.T) {
	fake := &fakeTimers{}
	scheduler := NewScheduler(WithStartFunc(fake.start))
	key := SessionKey(KindSessionIdle, "ABC123")

	first := 0
	scheduler.Schedule(key, time.Minute, func() { first++ })
	second := 0
	scheduler.Schedule(key, time.Minute, func() { second++ })

	if !fake.armed[0].stopped {
		t.Fatal("expected first timer to be stopped on replacement")
	}
	// Firing the replaced timer anyway must not run its callback.
	fake.armed[0].stopped = false
	fake.armed[0].fire()
	if first != 0 {
		t.Fatal("replaced callback ran")
	}

	fake.fireLast()
	if second != 1 {
		t.Fatalf("replacement callback ran %d times", second)
	}
	if scheduler.Pending(key) {
		t.Fatal("fired timer should no longer be pending")
	}
}

func TestCancelPreventsCallback(t *testing.T) {
	fake := &fakeTimers{}
	scheduler := NewScheduler(WithStartFunc(fake.start))
	key := PlayerKey("ABC123", 2)

	fired := 0
	scheduler.Schedule(key, time.Minute, func() { fired++ })
	if !scheduler.Cancel(key) {
		t.Fatal("expected a pending timer to cancel")
	}
	fake.armed[0].stopped = false
	fake.armed[0].fire()
	if fired != 0 {
		t.Fatal("cancelled callback ran")
	}
	if scheduler.Cancel(key) {
		t.Fatal("second cancel should report nothing pending")
	}
}

func TestCancelSessionSweepsAllKinds(t *testing.T) {
	fake := &fakeTimers{}
	scheduler := NewScheduler(WithStartFunc(fake.start))

	scheduler.Schedule(SessionKey(KindSessionIdle, "S1"), time.Minute, func() {})
	scheduler.Schedule(SessionKey(KindEmptyTeardown, "S1"), time.Minute, func() {})
	scheduler.Schedule(PlayerKey("S1", 1), time.Minute, func() {})
	scheduler.Schedule(SessionKey(KindSessionIdle, "S2"), time.Minute, func() {})

	if cancelled := scheduler.CancelSession("S1"); cancelled != 3 {
		t.Fatalf("expected 3 cancellations, got %d", cancelled)
	}
	if scheduler.Active() != 1 {
		t.Fatalf("expected one surviving timer, got %d", scheduler.Active())
	}
	if !scheduler.Pending(SessionKey(KindSessionIdle, "S2")) {
		t.Fatal("unrelated session timer was cancelled")
	}
}

// TestScheduleWhileArming replaces a timer whose StartFunc has not returned
// yet, the window where the entry is registered but has no stop handle.
func TestScheduleWhileArming(t *testing.T) {
	fake := &fakeTimers{}
	key := SessionKey(KindSessionIdle, "ABC123")
	first := 0
	second := 0

	//1.- Re-enter Schedule from inside start: the outer call holds no lock
	// there and its entry still has a nil stop.
	var scheduler *Scheduler
	arming := true
	scheduler = NewScheduler(WithStartFunc(func(delay time.Duration, fire func()) StopFunc {
		if arming {
			arming = false
			scheduler.Schedule(key, time.Minute, func() { second++ })
		}
		return fake.start(delay, fire)
	}))

	scheduler.Schedule(key, time.Minute, func() { first++ })

	if scheduler.Active() != 1 {
		t.Fatalf("expected one surviving timer, got %d", scheduler.Active())
	}
	//2.- The superseded timer must be stopped the moment its arming lands.
	superseded := fake.armed[len(fake.armed)-1]
	if !superseded.stopped {
		t.Fatal("superseded timer was not stopped after arming")
	}
	superseded.stopped = false
	superseded.fire()
	if first != 0 {
		t.Fatal("superseded callback ran")
	}

	for _, timer := range fake.armed {
		if !timer.stopped {
			timer.fire()
		}
	}
	if second != 1 {
		t.Fatalf("replacement callback ran %d times", second)
	}
}

func TestDistinctPlayersDoNotCollide(t *testing.T) {
	fake := &fakeTimers{}
	scheduler := NewScheduler(WithStartFunc(fake.start))

	scheduler.Schedule(PlayerKey("S1", 1), time.Minute, func() {})
	scheduler.Schedule(PlayerKey("S1", 2), time.Minute, func() {})

	if scheduler.Active() != 2 {
		t.Fatalf("expected independent timers per player, got %d", scheduler.Active())
	}
}
