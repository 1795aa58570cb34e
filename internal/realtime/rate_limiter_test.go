package realtime

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Second)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !rl.Allow(now) {
			t.Fatalf("event %d should be allowed", i)
		}
	}
	if rl.Allow(now) {
		t.Fatalf("event over the limit should be denied")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)
	now := time.Now()

	rl.Allow(now)
	rl.Allow(now)
	if rl.Allow(now.Add(500 * time.Millisecond)) {
		t.Fatalf("still inside the window")
	}
	if !rl.Allow(now.Add(1100 * time.Millisecond)) {
		t.Fatalf("old events should have expired")
	}
}

func TestRateLimiter_InvalidConfigFallsBack(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if !rl.Allow(time.Now()) {
		t.Fatalf("defaulted limiter should allow traffic")
	}
}
