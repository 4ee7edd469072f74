package main

import (
	"fmt"
	"testing"
	"time"
)

func makeNotification(jobID string, receivedAt time.Time) *notification {
	return &notification{
		jobID:      jobID,
		prevHash:   "00000000000000000001a2b3c4d5e6f700000000000000000001a2b3c4d5e6f7",
		coinbase1:  "01000000010000",
		coinbase2:  "ffffffff00",
		bbVersion:  "20000000",
		nBits:      "17034a3b",
		nTime:      "665f1c2a",
		receivedAt: receivedAt,
	}
}

func TestNotifyCacheMonotonicIDs(t *testing.T) {
	c := newNotifyCache()
	var last int64 = -1
	for i := 0; i < 10; i++ {
		id := c.add(makeNotification(fmt.Sprintf("job%d", i), time.Now()))
		if id <= last {
			t.Fatalf("id %d not strictly monotonic after %d", id, last)
		}
		last = id
	}
	if c.size() != 10 {
		t.Fatalf("expected 10 entries, got %d", c.size())
	}
}

func TestNotifyCacheCurrentTracksNewest(t *testing.T) {
	c := newNotifyCache()
	c.add(makeNotification("old", time.Now()))
	newest := makeNotification("new", time.Now())
	c.add(newest)
	if got := c.currentNotify(); got != newest {
		t.Fatalf("current should be the most recent insert")
	}
}

func TestNotifyCacheUpstreamJobID(t *testing.T) {
	c := newNotifyCache()
	id := c.add(makeNotification("upstream-abc", time.Now()))
	jobID, ok := c.upstreamJobID(id)
	if !ok || jobID != "upstream-abc" {
		t.Fatalf("lookup got %q ok=%v", jobID, ok)
	}
	if _, ok := c.upstreamJobID(id + 100); ok {
		t.Fatal("lookup of unknown id should miss")
	}
}

func TestNotifyCacheSmallNeverAges(t *testing.T) {
	c := newNotifyCache()
	old := time.Now().Add(-2 * notifyExpiry)
	c.add(makeNotification("a", old))
	c.add(makeNotification("b", old))
	if removed := c.age(time.Now()); removed != 0 {
		t.Fatalf("cache of size 2 must not age, removed %d", removed)
	}
	if c.size() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.size())
	}
}

func TestNotifyCacheAgesStaleEntries(t *testing.T) {
	// Ten jobs inserted one second apart, then a 700 second quiet spell:
	// the reaper keeps the newest three.
	c := newNotifyCache()
	base := time.Now()
	for i := 0; i < 10; i++ {
		c.add(makeNotification(fmt.Sprintf("job%d", i), base.Add(time.Duration(i)*time.Second)))
	}
	removed := c.age(base.Add(700 * time.Second))
	if removed != 7 {
		t.Fatalf("expected 7 reaped, got %d", removed)
	}
	if c.size() != 3 {
		t.Fatalf("expected 3 survivors, got %d", c.size())
	}
	// The survivors are the newest ones.
	for i := 7; i < 10; i++ {
		if _, ok := c.upstreamJobID(int64(i)); !ok {
			t.Fatalf("expected job id %d to survive", i)
		}
	}
}

func TestNotifyCacheFreshEntriesSurviveAging(t *testing.T) {
	c := newNotifyCache()
	now := time.Now()
	for i := 0; i < 5; i++ {
		c.add(makeNotification(fmt.Sprintf("job%d", i), now))
	}
	if removed := c.age(now.Add(time.Minute)); removed != 0 {
		t.Fatalf("fresh entries reaped: %d", removed)
	}
}

func TestNotifyCacheFlush(t *testing.T) {
	c := newNotifyCache()
	c.add(makeNotification("a", time.Now()))
	c.add(makeNotification("b", time.Now()))
	c.flush()
	if c.size() != 0 {
		t.Fatalf("expected empty cache after flush, got %d", c.size())
	}
	if c.currentNotify() != nil {
		t.Fatal("current pointer must be nil after flush")
	}
	// Ids keep counting across a flush; a reconnect must not reuse them.
	if id := c.add(makeNotification("c", time.Now())); id != 2 {
		t.Fatalf("expected id 2 after flush, got %d", id)
	}
}
