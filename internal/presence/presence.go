// Package presence tracks which users currently hold a live session.
package presence

import (
	"sort"
	"sync"
	"time"
)

// Snapshot is the full presence state: online users plus last-seen stamps of offline users.
// Version grows with every change, so of two snapshots the larger Version is newer.
type Snapshot struct {
	Version  uint64
	Online   []string
	LastSeen map[string]time.Time
}

// Table maps user identities to their single active session handle.
// A second Connect for the same user replaces the earlier handle.
type Table[H comparable] struct {
	mu       sync.RWMutex
	online   map[string]H
	lastSeen map[string]time.Time
	version  uint64
	now      func() time.Time
}

// Option configures a Table.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for last-seen stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewTable creates an empty presence table.
func NewTable[H comparable](opts ...Option) *Table[H] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Table[H]{
		online:   make(map[string]H),
		lastSeen: make(map[string]time.Time),
		now:      o.now,
	}
}

// Connect records h as the active handle of userID.
// It returns the handle it replaced, if any.
func (t *Table[H]) Connect(userID string, h H) (prev H, replaced bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, replaced = t.online[userID]
	if replaced && prev == h {
		var zero H
		prev, replaced = zero, false
	}
	t.online[userID] = h
	delete(t.lastSeen, userID)
	t.version++
	return prev, replaced
}

// Disconnect removes userID if h is still its active handle and stamps last-seen.
// A stale handle (one already replaced by a newer Connect) leaves the table untouched.
func (t *Table[H]) Disconnect(userID string, h H) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.online[userID]
	if !ok || current != h {
		return time.Time{}, false
	}
	delete(t.online, userID)
	at := t.now()
	t.lastSeen[userID] = at
	t.version++
	return at, true
}

// IsOnline reports whether userID has an active handle.
func (t *Table[H]) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

// Handle returns the active handle of userID.
func (t *Table[H]) Handle(userID string) (H, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.online[userID]
	return h, ok
}

// LastSeen returns when userID last disconnected. Absent while online or never seen.
func (t *Table[H]) LastSeen(userID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	at, ok := t.lastSeen[userID]
	return at, ok
}

// Snapshot copies the current state. Online ids are sorted.
func (t *Table[H]) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot()
}

// SnapshotWithHandles returns the state together with the handles it lists as online.
func (t *Table[H]) SnapshotWithHandles() (Snapshot, []H) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	handles := make([]H, 0, len(t.online))
	for _, h := range t.online {
		handles = append(handles, h)
	}
	return t.snapshot(), handles
}

func (t *Table[H]) snapshot() Snapshot {
	snap := Snapshot{
		Version:  t.version,
		Online:   make([]string, 0, len(t.online)),
		LastSeen: make(map[string]time.Time, len(t.lastSeen)),
	}
	for id := range t.online {
		snap.Online = append(snap.Online, id)
	}
	sort.Strings(snap.Online)
	for id, at := range t.lastSeen {
		snap.LastSeen[id] = at
	}
	return snap
}
