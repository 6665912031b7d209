package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredm/internal/core"
	"github.com/vovakirdan/wiredm/internal/proto"
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	hub Gateway
	log *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(hub Gateway, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{hub: hub, log: logger}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SendRequest is the body of POST /api/messages.
type SendRequest struct {
	OtherUserID proto.UserID `json:"other_user_id" binding:"required"`
	Text        string       `json:"text"`
	ClientID    string       `json:"client_id" binding:"omitempty,max=128"`
}

// PeerRequest names the counterpart of a conversation.
type PeerRequest struct {
	OtherUserID proto.UserID `json:"other_user_id" binding:"required"`
}

// HistoryResponse lists the messages of a conversation.
type HistoryResponse struct {
	Room     string          `json:"room"`
	Messages []proto.Message `json:"messages"`
}

// ConversationResponse is one inbox entry.
type ConversationResponse struct {
	Room          string     `json:"room"`
	PeerID        string     `json:"peer_id"`
	Online        bool       `json:"online"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	LastMessageID string     `json:"last_message_id"`
	LastText      string     `json:"last_text"`
	LastSenderID  string     `json:"last_sender_id"`
	LastSentAt    time.Time  `json:"last_sent_at"`
	Unread        int        `json:"unread"`
}

// ClearResponse reports how many messages were newly hidden.
type ClearResponse struct {
	Room    string `json:"room"`
	Cleared int64  `json:"cleared"`
}

// History returns the conversation with another user.
// GET /api/messages/:otherUserId
func (h *APIHandlers) History(c *gin.Context) {
	userID := c.GetString(ContextKeyUserID)
	peerID := c.Param("otherUserId")

	msgs, err := h.hub.History(c.Request.Context(), userID, peerID)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := HistoryResponse{Room: core.RoomID(userID, peerID), Messages: make([]proto.Message, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, messageToProto(m))
	}
	c.JSON(http.StatusOK, resp)
}

// Send persists a message without a live socket.
// POST /api/messages
func (h *APIHandlers) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	msg, err := h.hub.SendMessage(c.Request.Context(), c.GetString(ContextKeyUserID), string(req.OtherUserID), req.Text, req.ClientID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, proto.EventMessage{Message: messageToProto(msg), ClientID: req.ClientID})
}

// Conversations lists the caller's inbox with the presence of each counterpart.
// GET /api/conversations
func (h *APIHandlers) Conversations(c *gin.Context) {
	convs, err := h.hub.Conversations(c.Request.Context(), c.GetString(ContextKeyUserID))
	if err != nil {
		h.fail(c, err)
		return
	}

	snap := h.hub.Presence()
	online := make(map[string]bool, len(snap.Online))
	for _, id := range snap.Online {
		online[id] = true
	}

	resp := make([]ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		entry := ConversationResponse{
			Room:          conv.Room,
			PeerID:        conv.PeerID,
			Online:        online[conv.PeerID],
			LastMessageID: conv.LastMessageID,
			LastText:      conv.LastText,
			LastSenderID:  conv.LastSenderID,
			LastSentAt:    conv.LastSentAt,
			Unread:        conv.Unread,
		}
		if seen, ok := snap.LastSeen[conv.PeerID]; ok {
			entry.LastSeen = &seen
		}
		resp = append(resp, entry)
	}
	c.JSON(http.StatusOK, resp)
}

// ClearForMe hides a whole conversation for the caller.
// POST /api/chats/clear-for-me
func (h *APIHandlers) ClearForMe(c *gin.Context) {
	var req PeerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	userID := c.GetString(ContextKeyUserID)
	peerID := string(req.OtherUserID)
	n, err := h.hub.ClearForMe(c.Request.Context(), userID, peerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ClearResponse{Room: core.RoomID(userID, peerID), Cleared: n})
}

// Presence returns the presence snapshot.
// GET /api/presence
func (h *APIHandlers) Presence(c *gin.Context) {
	snap := h.hub.Presence()
	c.JSON(http.StatusOK, proto.EventPresence{Seq: snap.Version, Online: snap.Online, LastSeen: snap.LastSeen})
}

func (h *APIHandlers) fail(c *gin.Context, err error) {
	ce := core.AsCoreError(err)
	status := http.StatusBadRequest
	switch ce.Code {
	case core.ErrCodeForbidden:
		status = http.StatusForbidden
	case core.ErrCodeInternal, core.ErrCodeDeliveryFailed:
		status = http.StatusInternalServerError
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, ErrorResponse{Error: ce.Message, Code: ce.Code})
}
