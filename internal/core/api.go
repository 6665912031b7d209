package core

import (
	"context"
	"fmt"

	"github.com/vovakirdan/wiredm/internal/store"
)

// Request/response operations used by the REST surface. They share
// validation and fan-out with the session commands.

// History returns the messages between userID and peerID visible to userID.
func (h *Hub) History(ctx context.Context, userID, peerID string) ([]*store.Message, error) {
	if err := validatePeer(userID, peerID); err != nil {
		return nil, err
	}
	msgs, err := h.store.ListRoomMessages(ctx, RoomID(userID, peerID), userID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return msgs, nil
}

// SendMessage sends text from senderID to peerID as if it came from a session.
func (h *Hub) SendMessage(ctx context.Context, senderID, peerID, text, clientID string) (*store.Message, error) {
	msg, out, err := h.sendMessage(ctx, senderID, nil, peerID, text, clientID)
	if err != nil {
		return nil, err
	}
	h.publish(out)
	return msg, nil
}

// Conversations returns the inbox of userID.
func (h *Hub) Conversations(ctx context.Context, userID string) ([]store.Conversation, error) {
	convs, err := h.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// ClearForMe hides the whole conversation with peerID for userID only.
func (h *Hub) ClearForMe(ctx context.Context, userID, peerID string) (int64, error) {
	if err := validatePeer(userID, peerID); err != nil {
		return 0, err
	}
	room := RoomID(userID, peerID)
	n, err := h.store.HideRoomForUser(ctx, room, userID)
	if err != nil {
		return 0, fmt.Errorf("clear room: %w", err)
	}
	if session, ok := h.presence.Handle(userID); ok && n > 0 {
		h.publish([]notification{{
			to:    []*Client{session},
			event: &Event{Kind: EventRoomCleared, Room: room, User: userID, Cleared: n},
		}})
	}
	return n, nil
}
