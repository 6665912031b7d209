package core

import (
	"github.com/vovakirdan/wiredm/internal/presence"
	"github.com/vovakirdan/wiredm/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventReady confirms an authenticated session.
	EventReady EventKind = iota
	// EventHistory delivers the visible history of a room upon joining it.
	EventHistory
	// EventMessage carries a newly persisted message to the room, with the sender's client id echoed.
	EventMessage
	// EventStatus tells a sender that one of its messages changed status.
	EventStatus
	// EventStatusBatch tells a sender that several of its messages changed status at once.
	EventStatusBatch
	// EventMessageUpdated carries a message deleted for everyone.
	EventMessageUpdated
	// EventMessageHidden tells the caller a message is now hidden for them.
	EventMessageHidden
	// EventRoomCleared tells the caller every message of a room is now hidden for them.
	EventRoomCleared
	// EventPresence carries the full presence snapshot.
	EventPresence
	// EventTyping notifies the room that a participant is typing.
	EventTyping
	// EventStopTyping notifies the room that a participant stopped typing.
	EventStopTyping
	// EventSessionReplaced tells an evicted session that a newer one took over.
	EventSessionReplaced
	// EventError notifies clients about a domain error.
	EventError
)

var eventNames = map[EventKind]string{
	EventReady:           "ready",
	EventHistory:         "history",
	EventMessage:         "message",
	EventStatus:          "status",
	EventStatusBatch:     "status_batch",
	EventMessageUpdated:  "message_updated",
	EventMessageHidden:   "message_hidden",
	EventRoomCleared:     "room_cleared",
	EventPresence:        "presence",
	EventTyping:          "typing",
	EventStopTyping:      "stop_typing",
	EventSessionReplaced: "session_replaced",
	EventError:           "error",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind EventKind
	Room string
	User string

	Message  *store.Message
	Messages []*store.Message // EventHistory
	ClientID string           // EventMessage, echoed to every recipient

	Changes []store.StatusChange // EventStatus, EventStatusBatch

	MessageID string // EventMessageHidden
	Cleared   int64  // EventRoomCleared

	Presence *presence.Snapshot
	Error    *CoreError
}
