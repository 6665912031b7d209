package chatclient

import (
	"sync"
	"time"

	"github.com/vovakirdan/wiredm/internal/proto"
	"github.com/vovakirdan/wiredm/internal/store"
)

// Entry is one line of a conversation as the local user sees it.
type Entry struct {
	ClientID string
	Message  proto.Message
	// Pending is set until the server echoes the message back.
	Pending bool
	// Failed carries the server's reason when a pending send was rejected.
	Failed string
}

// Timeline is the local, optimistically updated view of one room.
// An optimistic entry is keyed by its client id until the echo carrying
// the same client id replaces it with the persisted message.
type Timeline struct {
	mu       sync.Mutex
	self     string
	entries  []*Entry
	byID     map[string]*Entry
	byClient map[string]*Entry
}

// NewTimeline creates an empty timeline for selfID.
func NewTimeline(selfID string) *Timeline {
	return &Timeline{
		self:     selfID,
		byID:     make(map[string]*Entry),
		byClient: make(map[string]*Entry),
	}
}

// AddPending appends an optimistic entry for a message about to be sent.
func (t *Timeline) AddPending(clientID, room, peerID, text string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := &Entry{
		ClientID: clientID,
		Pending:  true,
		Message: proto.Message{
			Room:       room,
			SenderID:   t.self,
			ReceiverID: peerID,
			Text:       text,
			SentAt:     at,
			Status:     string(store.StatusSent),
		},
	}
	t.entries = append(t.entries, e)
	t.byClient[clientID] = e
}

// Load replaces confirmed entries with history. Pending entries are kept at the end.
func (t *Timeline) Load(history []proto.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pending []*Entry
	for _, e := range t.entries {
		if e.Pending {
			pending = append(pending, e)
		}
	}

	t.entries = t.entries[:0]
	t.byID = make(map[string]*Entry, len(history))
	for _, m := range history {
		e := &Entry{Message: m}
		t.entries = append(t.entries, e)
		t.byID[m.ID] = e
	}
	t.entries = append(t.entries, pending...)
}

// ApplyMessage reconciles a message event. It reports whether the event
// replaced an optimistic entry rather than adding a new one.
func (t *Timeline) ApplyMessage(ev proto.EventMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.byID[ev.ID]; ok {
		mergeMessage(e, ev.Message)
		return false
	}
	if ev.ClientID != "" {
		if e, ok := t.byClient[ev.ClientID]; ok && e.Pending {
			e.Message = ev.Message
			e.Pending = false
			e.Failed = ""
			t.byID[ev.ID] = e
			return true
		}
	}

	e := &Entry{ClientID: ev.ClientID, Message: ev.Message}
	t.entries = append(t.entries, e)
	t.byID[ev.ID] = e
	return false
}

// ApplyStatus advances the status of a known message. Older states are ignored.
func (t *Timeline) ApplyStatus(u proto.StatusUpdate) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byID[u.ID]
	if !ok || store.Status(u.Status).Rank() <= store.Status(e.Message.Status).Rank() {
		return false
	}
	e.Message.Status = u.Status
	if u.DeliveredAt != nil {
		e.Message.DeliveredAt = u.DeliveredAt
	}
	if u.ReadAt != nil {
		e.Message.ReadAt = u.ReadAt
	}
	return true
}

// ApplyUpdated replaces a message deleted for everyone with its tombstone.
func (t *Timeline) ApplyUpdated(m proto.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.byID[m.ID]; ok {
		mergeMessage(e, m)
	}
}

// Hide drops a message hidden for the local user.
func (t *Timeline) Hide(messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byID[messageID]
	if !ok {
		return
	}
	delete(t.byID, messageID)
	if e.ClientID != "" {
		delete(t.byClient, e.ClientID)
	}
	for i, cur := range t.entries {
		if cur == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
}

// Clear drops every confirmed entry.
func (t *Timeline) Clear() {
	t.Load(nil)
}

// Fail marks a pending send as rejected.
func (t *Timeline) Fail(clientID, reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byClient[clientID]
	if !ok || !e.Pending {
		return false
	}
	e.Failed = reason
	return true
}

// Entries returns a copy of the timeline in display order.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	return out
}

// mergeMessage applies a newer server copy without regressing status.
func mergeMessage(e *Entry, m proto.Message) {
	status, deliveredAt, readAt := e.Message.Status, e.Message.DeliveredAt, e.Message.ReadAt
	e.Message = m
	if store.Status(status).Rank() > store.Status(m.Status).Rank() {
		e.Message.Status, e.Message.DeliveredAt, e.Message.ReadAt = status, deliveredAt, readAt
	}
}
