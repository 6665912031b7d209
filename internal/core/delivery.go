package core

import (
	"context"

	"github.com/vovakirdan/wiredm/internal/store"
)

// Delivery status moves sent -> delivered -> read and never back. The store
// enforces the guard in its UPDATE statements; the hub only decides when to
// attempt a transition and whom to tell.

// flushPending marks everything addressed to userID as delivered, one
// statement for the whole backlog, and notifies each online sender once.
func (h *Hub) flushPending(ctx context.Context, userID string) []notification {
	changes, err := h.store.MarkPendingDelivered(ctx, userID, h.now())
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("mark pending delivered")
		return nil
	}
	h.metrics.StatusTransitions(string(store.StatusDelivered), len(changes))
	return h.statusNotifications(EventStatusBatch, changes)
}

// deliverNow marks msg delivered when its receiver is online at send time.
func (h *Hub) deliverNow(ctx context.Context, msg *store.Message) []notification {
	if !h.presence.IsOnline(msg.ReceiverID) {
		return nil
	}
	at := h.now()
	ok, err := h.store.MarkDelivered(ctx, msg.ID, at)
	if err != nil {
		h.log.Warn().Err(err).Str("message_id", msg.ID).Msg("mark delivered")
		return nil
	}
	if !ok {
		return nil
	}
	h.metrics.StatusTransitions(string(store.StatusDelivered), 1)
	return h.statusNotifications(EventStatus, []store.StatusChange{{
		ID:       msg.ID,
		Room:     msg.Room,
		SenderID: msg.SenderID,
		Status:   store.StatusDelivered,
		At:       at,
	}})
}

// markRead advances the delivered messages of room addressed to readerID.
func (h *Hub) markRead(ctx context.Context, room, readerID string) ([]notification, error) {
	changes, err := h.store.MarkRoomRead(ctx, room, readerID, h.now())
	if err != nil {
		return nil, err
	}
	h.metrics.StatusTransitions(string(store.StatusRead), len(changes))
	return h.statusNotifications(EventStatusBatch, changes), nil
}

// statusNotifications groups changes by sender and addresses one event to
// each sender that is online. Offline senders learn the state from history.
func (h *Hub) statusNotifications(kind EventKind, changes []store.StatusChange) []notification {
	if len(changes) == 0 {
		return nil
	}

	var order []string
	bySender := make(map[string][]store.StatusChange)
	for _, ch := range changes {
		if _, seen := bySender[ch.SenderID]; !seen {
			order = append(order, ch.SenderID)
		}
		bySender[ch.SenderID] = append(bySender[ch.SenderID], ch)
	}

	out := make([]notification, 0, len(order))
	for _, sender := range order {
		session, ok := h.presence.Handle(sender)
		if !ok {
			continue
		}
		batch := bySender[sender]
		out = append(out, notification{
			to:    []*Client{session},
			event: &Event{Kind: kind, Room: batch[0].Room, User: sender, Changes: batch},
		})
	}
	return out
}
