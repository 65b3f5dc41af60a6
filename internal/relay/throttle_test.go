package relay

import (
	"sync"
	"testing"
	"time"
)

func TestThrottle_ZeroIntervalAlwaysAllows(t *testing.T) {
	throttle := NewThrottle(0)

	for i := 0; i < 100; i++ {
		if !throttle.Allow("conn-1") {
			t.Fatal("Disabled throttle must allow every event")
		}
	}
}

func TestThrottle_EnforcesMinimumInterval(t *testing.T) {
	throttle := NewThrottle(time.Hour)

	if !throttle.Allow("conn-1") {
		t.Fatal("First event must always pass")
	}
	if throttle.Allow("conn-1") {
		t.Error("Second event inside the interval must be dropped")
	}
}

func TestThrottle_AllowsAfterInterval(t *testing.T) {
	throttle := NewThrottle(10 * time.Millisecond)

	if !throttle.Allow("conn-1") {
		t.Fatal("First event must always pass")
	}
	time.Sleep(20 * time.Millisecond)
	if !throttle.Allow("conn-1") {
		t.Error("Event after the interval elapsed must pass")
	}
}

func TestThrottle_PerConnectionState(t *testing.T) {
	throttle := NewThrottle(time.Hour)

	if !throttle.Allow("conn-1") {
		t.Fatal("First event for conn-1 must pass")
	}
	if !throttle.Allow("conn-2") {
		t.Error("conn-1's throttle window must not affect conn-2")
	}
}

func TestThrottle_ForgetResetsWindow(t *testing.T) {
	throttle := NewThrottle(time.Hour)

	throttle.Allow("conn-1")
	throttle.Forget("conn-1")

	if !throttle.Allow("conn-1") {
		t.Error("Expected fresh window after Forget")
	}
}

func TestThrottle_CleanupKeepsRecentEntries(t *testing.T) {
	throttle := NewThrottle(time.Hour)

	throttle.Allow("conn-1")
	throttle.Cleanup()

	if throttle.Allow("conn-1") {
		t.Error("Cleanup must not evict a recently active connection")
	}
}

func TestThrottle_ConcurrentAccess(t *testing.T) {
	throttle := NewThrottle(time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			connID := string(rune('a' + id%5))
			for j := 0; j < 50; j++ {
				throttle.Allow(connID)
			}
			throttle.Forget(connID)
		}(i)
	}
	wg.Wait()
}
