package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoin subscribes the session to the room shared with a peer.
	CommandJoin CommandKind = iota
	// CommandLeave unsubscribes the session from a room.
	CommandLeave
	// CommandTyping forwards a typing indicator to the room.
	CommandTyping
	// CommandStopTyping clears a typing indicator.
	CommandStopTyping
	// CommandSend persists and broadcasts a message to the peer's room.
	CommandSend
	// CommandMarkRead marks delivered messages from the peer as read.
	CommandMarkRead
	// CommandDeleteForEveryone replaces a message with a tombstone for all participants.
	CommandDeleteForEveryone
	// CommandDeleteForMe hides a message for the caller only.
	CommandDeleteForMe
)

var commandNames = map[CommandKind]string{
	CommandJoin:              "join",
	CommandLeave:             "leave",
	CommandTyping:            "typing",
	CommandStopTyping:        "stop_typing",
	CommandSend:              "send",
	CommandMarkRead:          "mark_read",
	CommandDeleteForEveryone: "delete_for_everyone",
	CommandDeleteForMe:       "delete_for_me",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command represents an action requested by a client.
type Command struct {
	Kind      CommandKind
	PeerID    string
	Text      string
	ClientID  string
	MessageID string
}
