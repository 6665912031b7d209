package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a message does not exist.
var ErrNotFound = errors.New("not found")

// Tombstone replaces the text of a message deleted for everyone.
const Tombstone = "This message was deleted"

// Status is the delivery state of a message.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// Rank orders statuses along sent < delivered < read.
func (s Status) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Message represents a persisted two-party chat message.
type Message struct {
	ID          string     `db:"id"`
	Room        string     `db:"room"`
	SenderID    string     `db:"sender_id"`
	ReceiverID  string     `db:"receiver_id"`
	Text        string     `db:"text"`
	SentAt      time.Time  `db:"sent_at"`
	Status      Status     `db:"status"`
	DeliveredAt *time.Time `db:"delivered_at"`
	ReadAt      *time.Time `db:"read_at"`
	Deleted     bool       `db:"deleted"`

	// HiddenFor is populated by GetMessage only; list queries filter on it instead.
	HiddenFor []string `db:"-"`
}

// VisibleTo reports whether the message is visible to the user.
func (m *Message) VisibleTo(userID string) bool {
	for _, id := range m.HiddenFor {
		if id == userID {
			return false
		}
	}
	return true
}

// Peer returns the other participant relative to userID.
func (m *Message) Peer(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// StatusChange is one row of a batch status transition.
type StatusChange struct {
	ID       string    `db:"id"`
	Room     string    `db:"room"`
	SenderID string    `db:"sender_id"`
	Status   Status    `db:"-"`
	At       time.Time `db:"-"`
}

// Conversation summarises a room for the inbox listing.
type Conversation struct {
	Room          string    `db:"room"`
	PeerID        string    `db:"peer_id"`
	LastMessageID string    `db:"last_message_id"`
	LastText      string    `db:"last_text"`
	LastSenderID  string    `db:"last_sender_id"`
	LastSentAt    time.Time `db:"last_sent_at"`
	Unread        int       `db:"unread"`
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a new message in the sent state and assigns its id and sent time.
	CreateMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by id, including its hidden-for set.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// ListRoomMessages returns the messages of a room visible to viewerID,
	// ordered by send time ascending.
	ListRoomMessages(ctx context.Context, room, viewerID string) ([]*Message, error)

	// MarkDelivered advances a single message from sent to delivered.
	// Returns false when the message was not in the sent state.
	MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error)

	// MarkPendingDelivered advances every sent message addressed to receiverID
	// to delivered in one statement and returns the affected rows.
	MarkPendingDelivered(ctx context.Context, receiverID string, at time.Time) ([]StatusChange, error)

	// MarkRoomRead advances every delivered message of the room addressed to
	// readerID to read in one statement and returns the affected rows.
	MarkRoomRead(ctx context.Context, room, readerID string, at time.Time) ([]StatusChange, error)

	// SoftDelete flags a message deleted for everyone and replaces its text with the tombstone.
	SoftDelete(ctx context.Context, id string) (*Message, error)

	// HideForUser adds userID to the message's hidden-for set. Idempotent.
	HideForUser(ctx context.Context, id, userID string) error

	// HideRoomForUser hides every message of a room for userID and returns how many were newly hidden.
	HideRoomForUser(ctx context.Context, room, userID string) (int64, error)

	// ListConversations returns one summary per counterpart of userID,
	// most recent first, built from messages visible to userID.
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
}

// Store aggregates storage interfaces.
type Store interface {
	MessageStore

	// Ping checks the underlying database connection.
	Ping(ctx context.Context) error

	// Close closes the underlying database connection.
	Close() error
}
