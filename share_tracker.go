package main

import (
	"encoding/json"
	"sync"
	"time"
)

// shareRecord correlates one upstream share submission with the stratifier
// client that produced it. The local id doubles as the JSON-RPC request id of
// the outgoing mining.submit, so the upstream response can be matched back.
type shareRecord struct {
	id int64

	clientID   int64
	msgID      json.RawMessage // stratum message id as the client sent it
	submitTime time.Time
}

type shareTracker struct {
	mu      sync.Mutex
	entries map[int64]*shareRecord
	order   []int64
	nextID  int64
}

func newShareTracker() *shareTracker {
	return &shareTracker{entries: make(map[int64]*shareRecord)}
}

func (t *shareTracker) add(clientID int64, msgID json.RawMessage, now time.Time) *shareRecord {
	rec := &shareRecord{
		clientID:   clientID,
		msgID:      msgID,
		submitTime: now,
	}
	t.mu.Lock()
	rec.id = t.nextID
	t.nextID++
	t.entries[rec.id] = rec
	t.order = append(t.order, rec.id)
	t.mu.Unlock()
	return rec
}

// remove takes the record for an upstream response out of the tracker. A
// miss means the share was already reaped; the late response is dropped.
func (t *shareTracker) remove(id int64) (*shareRecord, bool) {
	t.mu.Lock()
	rec, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	return rec, ok
}

func (t *shareTracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// reap drops entries older than shareExpiry unconditionally; no correlation
// can succeed for them afterwards.
func (t *shareTracker) reap(now time.Time) int {
	cutoff := now.Add(-shareExpiry)
	reaped := 0
	t.mu.Lock()
	kept := t.order[:0]
	for _, id := range t.order {
		rec, ok := t.entries[id]
		if !ok {
			continue
		}
		if rec.submitTime.Before(cutoff) {
			delete(t.entries, id)
			reaped++
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
	t.mu.Unlock()
	return reaped
}
