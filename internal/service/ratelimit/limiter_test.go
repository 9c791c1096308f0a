package ratelimit

import (
	"testing"
	"time"
)

func testLimiter(start time.Time) (*Limiter, *time.Time) {
	now := start
	l := New()
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowConsumesCapacity(t *testing.T) {
	l, _ := testLimiter(time.Unix(1000, 0))

	for i := 0; i < 3; i++ {
		if !l.Allow("client", 3, 1) {
			t.Fatalf("request %d rejected with tokens remaining", i)
		}
	}
	if l.Allow("client", 3, 1) {
		t.Fatal("request allowed on an empty bucket")
	}
}

func TestAllowRefillsOverTime(t *testing.T) {
	l, now := testLimiter(time.Unix(1000, 0))

	if !l.Allow("client", 1, 2) {
		t.Fatal("first request rejected")
	}
	if l.Allow("client", 1, 2) {
		t.Fatal("bucket should be empty")
	}

	// 2 tokens/s, so half a second restores the single slot.
	*now = now.Add(500 * time.Millisecond)
	if !l.Allow("client", 1, 2) {
		t.Fatal("bucket did not refill")
	}
}

func TestRefillCapsAtCapacity(t *testing.T) {
	l, now := testLimiter(time.Unix(1000, 0))

	l.Allow("client", 2, 1)
	*now = now.Add(time.Hour)

	allowed := 0
	for i := 0; i < 10; i++ {
		if l.Allow("client", 2, 1) {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("allowed %d after long idle, want capacity 2", allowed)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := testLimiter(time.Unix(1000, 0))

	if !l.Allow("a", 1, 1) {
		t.Fatal("key a rejected")
	}
	if l.Allow("a", 1, 1) {
		t.Fatal("key a should be drained")
	}
	if !l.Allow("b", 1, 1) {
		t.Fatal("key b should have its own bucket")
	}
}

func TestPruneDropsIdleBuckets(t *testing.T) {
	l, now := testLimiter(time.Unix(1000, 0))

	l.Allow("old", 1, 1)
	*now = now.Add(10 * time.Minute)
	l.Allow("fresh", 1, 1)

	if removed := l.Prune(5 * time.Minute); removed != 1 {
		t.Fatalf("pruned %d buckets, want 1", removed)
	}
	if _, ok := l.m["old"]; ok {
		t.Fatal("idle bucket survived prune")
	}
	if _, ok := l.m["fresh"]; !ok {
		t.Fatal("fresh bucket was pruned")
	}
}
