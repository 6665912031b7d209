package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeAuth              = "auth"
	InboundTypeJoin              = "join"
	InboundTypeLeave             = "leave"
	InboundTypeTyping            = "typing"
	InboundTypeStopTyping        = "stop_typing"
	InboundTypeSend              = "send"
	InboundTypeMarkRead          = "mark_read"
	InboundTypeDeleteForEveryone = "delete_for_everyone"
	InboundTypeDeleteForMe       = "delete_for_me"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// UserID accepts both JSON strings and JSON numbers.
type UserID string

func (id *UserID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// AuthData authenticates a socket that did not present a credential at upgrade.
type AuthData struct {
	Token    string `json:"token" validate:"required"`
	Protocol int    `json:"protocol,omitempty"`
}

// PeerData names the counterpart of a two-party room.
type PeerData struct {
	OtherUserID UserID `json:"other_user_id" validate:"required"`
}

// SendData is a chat message from the client.
type SendData struct {
	OtherUserID UserID `json:"other_user_id" validate:"required"`
	Text        string `json:"text"`
	ClientID    string `json:"client_id,omitempty" validate:"omitempty,max=128"`
}

// MessageRef points at an existing message.
type MessageRef struct {
	MessageID string `json:"message_id" validate:"required"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// NewEvent wraps payload into an event envelope.
func NewEvent(name string, payload any) (Outbound, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Outbound{}, fmt.Errorf("encode %s event: %w", name, err)
	}
	return Outbound{Type: OutboundTypeEvent, Event: name, Data: data}, nil
}

// Decode unmarshals the event payload into v.
func (o Outbound) Decode(v any) error {
	return json.Unmarshal(o.Data, v)
}

// EventReady confirms an authenticated session.
type EventReady struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Protocol  int    `json:"protocol"`
}

// Message is the wire form of a stored message.
type Message struct {
	ID          string     `json:"id"`
	Room        string     `json:"room"`
	SenderID    string     `json:"sender_id"`
	ReceiverID  string     `json:"receiver_id"`
	Text        string     `json:"text"`
	SentAt      time.Time  `json:"sent_at"`
	Status      string     `json:"status"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	Deleted     bool       `json:"deleted"`
}

// EventMessage carries a new message. ClientID is set when the sender supplied one.
type EventMessage struct {
	Message
	ClientID string `json:"client_id,omitempty"`
}

// EventHistory carries the visible history of a room.
type EventHistory struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}

// StatusUpdate is one message's new delivery status.
type StatusUpdate struct {
	ID          string     `json:"id"`
	Room        string     `json:"room"`
	Status      string     `json:"status"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// EventStatusBatch carries several status updates at once.
type EventStatusBatch struct {
	Updates []StatusUpdate `json:"updates"`
}

// EventMessageHidden tells the caller a message is hidden for them.
type EventMessageHidden struct {
	Room      string `json:"room"`
	MessageID string `json:"message_id"`
}

// EventRoomCleared tells the caller a whole room is hidden for them.
type EventRoomCleared struct {
	Room    string `json:"room"`
	Cleared int64  `json:"cleared"`
}

// EventPresence is the full presence snapshot. Seq grows with every presence
// change; a client should ignore a snapshot older than the last one applied.
type EventPresence struct {
	Seq      uint64               `json:"seq"`
	Online   []string             `json:"online"`
	LastSeen map[string]time.Time `json:"last_seen"`
}

// EventTyping notifies that a participant started or stopped typing.
type EventTyping struct {
	Room   string `json:"room"`
	UserID string `json:"user_id"`
}

// EventSessionReplaced is sent to a session evicted by a newer one.
type EventSessionReplaced struct {
	Reason string `json:"reason"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code     string `json:"code"`
	Msg      string `json:"msg"`
	ClientID string `json:"client_id,omitempty"`
}
