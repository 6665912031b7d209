package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/wiredm/internal/store"
)

type notification struct {
	to    []*Client
	event *Event
}

// handlerFunc applies one command from session c and returns who must be told what.
type handlerFunc func(ctx context.Context, c *Client, cmd *Command) ([]notification, error)

func (h *Hub) handleJoin(ctx context.Context, c *Client, cmd *Command) ([]notification, error) {
	if err := validatePeer(c.UserID, cmd.PeerID); err != nil {
		return nil, err
	}
	room := RoomID(c.UserID, cmd.PeerID)
	if !h.subscribe(c, room) {
		return nil, nil
	}

	history, err := h.store.ListRoomMessages(ctx, room, c.UserID)
	if err != nil {
		h.unsubscribe(c, room)
		return nil, fmt.Errorf("load history of %s: %w", room, err)
	}
	return []notification{{
		to:    []*Client{c},
		event: &Event{Kind: EventHistory, Room: room, User: c.UserID, Messages: history},
	}}, nil
}

func (h *Hub) handleLeave(_ context.Context, c *Client, cmd *Command) ([]notification, error) {
	if err := validatePeer(c.UserID, cmd.PeerID); err != nil {
		return nil, err
	}
	h.unsubscribe(c, RoomID(c.UserID, cmd.PeerID))
	return nil, nil
}

func (h *Hub) handleTyping(kind EventKind) handlerFunc {
	return func(_ context.Context, c *Client, cmd *Command) ([]notification, error) {
		if err := validatePeer(c.UserID, cmd.PeerID); err != nil {
			return nil, err
		}
		room := RoomID(c.UserID, cmd.PeerID)
		return []notification{{
			to:    h.members(room, c),
			event: &Event{Kind: kind, Room: room, User: c.UserID},
		}}, nil
	}
}

func (h *Hub) handleSend(ctx context.Context, c *Client, cmd *Command) ([]notification, error) {
	_, out, err := h.sendMessage(ctx, c.UserID, c, cmd.PeerID, cmd.Text, cmd.ClientID)
	return out, err
}

// sendMessage validates, persists and fans out one message. origin is the
// sending session, or nil when the message arrives over REST.
func (h *Hub) sendMessage(ctx context.Context, senderID string, origin *Client, peerID, text, clientID string) (*store.Message, []notification, error) {
	if err := validatePeer(senderID, peerID); err != nil {
		return nil, nil, withClientID(err, clientID)
	}
	if err := validateText(text, h.maxText); err != nil {
		return nil, nil, withClientID(err, clientID)
	}

	room := RoomID(senderID, peerID)
	if origin != nil {
		h.subscribe(origin, room)
	}

	msg := &store.Message{
		Room:       room,
		SenderID:   senderID,
		ReceiverID: peerID,
		Text:       text,
		SentAt:     h.now(),
	}
	if err := h.store.CreateMessage(ctx, msg); err != nil {
		h.log.Error().Err(err).Str("room", room).Str("client_id", clientID).Msg("persist message")
		return nil, nil, &CoreError{Code: ErrCodeDeliveryFailed, Message: "message could not be saved", ClientID: clientID}
	}
	h.metrics.MessageSent()

	targets := h.members(room, nil)
	if origin == nil {
		if session, ok := h.presence.Handle(senderID); ok && !h.joined(session, room) {
			targets = append(targets, session)
		}
	}

	out := []notification{{
		to:    targets,
		event: &Event{Kind: EventMessage, Room: room, User: senderID, Message: msg, ClientID: clientID},
	}}
	out = append(out, h.deliverNow(ctx, msg)...)
	return msg, out, nil
}

func (h *Hub) handleMarkRead(ctx context.Context, c *Client, cmd *Command) ([]notification, error) {
	if err := validatePeer(c.UserID, cmd.PeerID); err != nil {
		return nil, err
	}
	out, err := h.markRead(ctx, RoomID(c.UserID, cmd.PeerID), c.UserID)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return out, nil
}

func (h *Hub) handleDeleteForEveryone(ctx context.Context, c *Client, cmd *Command) ([]notification, error) {
	if cmd.MessageID == "" {
		return nil, coreError(ErrCodeBadRequest, "message id is required")
	}
	msg, err := h.store.GetMessage(ctx, cmd.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load message %s: %w", cmd.MessageID, err)
	}
	if msg.SenderID != c.UserID {
		return nil, coreError(ErrCodeForbidden, "only the sender can delete a message for everyone")
	}

	updated, err := h.store.SoftDelete(ctx, msg.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete message %s: %w", msg.ID, err)
	}

	var targets []*Client
	includesCaller := false
	for _, member := range h.members(updated.Room, nil) {
		if !updated.VisibleTo(member.UserID) {
			continue
		}
		if member == c {
			includesCaller = true
		}
		targets = append(targets, member)
	}
	if !includesCaller && updated.VisibleTo(c.UserID) {
		targets = append(targets, c)
	}
	return []notification{{
		to:    targets,
		event: &Event{Kind: EventMessageUpdated, Room: updated.Room, User: c.UserID, Message: updated},
	}}, nil
}

func (h *Hub) handleDeleteForMe(ctx context.Context, c *Client, cmd *Command) ([]notification, error) {
	if cmd.MessageID == "" {
		return nil, coreError(ErrCodeBadRequest, "message id is required")
	}
	msg, err := h.store.GetMessage(ctx, cmd.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load message %s: %w", cmd.MessageID, err)
	}
	// Strangers get the same silence as a missing id.
	if msg.SenderID != c.UserID && msg.ReceiverID != c.UserID {
		return nil, nil
	}

	if err := h.store.HideForUser(ctx, msg.ID, c.UserID); err != nil {
		return nil, fmt.Errorf("hide message %s: %w", msg.ID, err)
	}
	return []notification{{
		to:    []*Client{c},
		event: &Event{Kind: EventMessageHidden, Room: msg.Room, User: c.UserID, MessageID: msg.ID},
	}}, nil
}

func withClientID(err error, clientID string) error {
	ce := *AsCoreError(err)
	ce.ClientID = clientID
	return &ce
}
