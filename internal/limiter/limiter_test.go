package limiter

import (
	"testing"
	"time"
)

func TestSlidingWindowEnforcesLimit(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewSlidingWindow(time.Minute, 2, func() time.Time { return now })

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatal("expected first two calls to be allowed")
	}
	if limiter.Allow("a") {
		t.Fatal("expected third call to be denied")
	}

	now = now.Add(30 * time.Second)
	if limiter.Allow("a") {
		t.Fatal("expected call within window to still be denied")
	}

	now = now.Add(31 * time.Second)
	if !limiter.Allow("a") {
		t.Fatal("expected limiter to permit call after window passes")
	}
}

func TestSlidingWindowKeysAreIndependent(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewSlidingWindow(time.Minute, 1, func() time.Time { return now })

	if !limiter.Allow("a") {
		t.Fatal("first key should be allowed")
	}
	if !limiter.Allow("b") {
		t.Fatal("second key should not share the first key's budget")
	}
	if limiter.Allow("a") {
		t.Fatal("first key should now be denied")
	}
}

func TestSlidingWindowForgetResetsBudget(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewSlidingWindow(time.Minute, 1, func() time.Time { return now })

	if !limiter.Allow("a") || limiter.Allow("a") {
		t.Fatal("unexpected admission pattern")
	}
	limiter.Forget("a")
	if !limiter.Allow("a") {
		t.Fatal("expected budget reset after Forget")
	}
}

func TestSlidingWindowDisabled(t *testing.T) {
	if !NewSlidingWindow(0, 0, nil).Allow("any") {
		t.Fatal("limiter with zero configuration should allow")
	}
}

func TestSlidingWindowScenario(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewSlidingWindow(time.Minute, 60, func() time.Time { return now })

	for i := 0; i < 60; i++ {
		now = now.Add(500 * time.Millisecond)
		if !limiter.Allow("conn") {
			t.Fatalf("message %d should be admitted", i+1)
		}
	}
	now = now.Add(500 * time.Millisecond)
	if limiter.Allow("conn") {
		t.Fatal("61st message inside the window should be rejected")
	}
}
