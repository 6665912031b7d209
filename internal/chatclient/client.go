// Package chatclient is a WebSocket client for the chat gateway that keeps
// an optimistic per-room timeline.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wiredm/internal/core"
	"github.com/vovakirdan/wiredm/internal/proto"
	"github.com/vovakirdan/wiredm/internal/utils"
)

// statusSessionReplaced is the close code the gateway uses for an evicted session.
const statusSessionReplaced websocket.StatusCode = 4000

// ErrSessionReplaced is returned by Run when the same user connected elsewhere.
var ErrSessionReplaced = errors.New("session replaced by a newer connection")

// Client is one authenticated socket.
type Client struct {
	conn      *websocket.Conn
	userID    string
	sessionID string
	now       func() time.Time

	mu        sync.Mutex
	timelines map[string]*Timeline
}

// Dial connects to addr with a bearer token and waits for the server's ready event.
func Dial(ctx context.Context, addr, token string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, addr, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	var out proto.Outbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("read ready: %w", err)
	}
	if out.Type == proto.OutboundTypeError && out.Error != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("%s: %s", out.Error.Code, out.Error.Msg)
	}
	var ready proto.EventReady
	if out.Event != "ready" || out.Decode(&ready) != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("unexpected first frame %q", out.Event)
	}

	return &Client{
		conn:      conn,
		userID:    ready.UserID,
		sessionID: ready.SessionID,
		now:       time.Now,
		timelines: make(map[string]*Timeline),
	}, nil
}

// UserID returns the authenticated user.
func (c *Client) UserID() string { return c.userID }

// SessionID returns the server-assigned session id.
func (c *Client) SessionID() string { return c.sessionID }

// Timeline returns the local view of the conversation with peerID.
func (c *Client) Timeline(peerID string) *Timeline {
	return c.room(core.RoomID(c.userID, peerID))
}

func (c *Client) room(name string) *Timeline {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.timelines[name]
	if !ok {
		t = NewTimeline(c.userID)
		c.timelines[name] = t
	}
	return t
}

func (c *Client) write(ctx context.Context, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

// Join subscribes to the conversation with peerID; the server answers with history.
func (c *Client) Join(ctx context.Context, peerID string) error {
	return c.write(ctx, proto.InboundTypeJoin, proto.PeerData{OtherUserID: proto.UserID(peerID)})
}

// Send adds an optimistic entry and sends text to peerID. It returns the correlation id.
func (c *Client) Send(ctx context.Context, peerID, text string) (string, error) {
	clientID := utils.NewClientID()
	room := core.RoomID(c.userID, peerID)
	c.room(room).AddPending(clientID, room, peerID, text, c.now())

	err := c.write(ctx, proto.InboundTypeSend, proto.SendData{
		OtherUserID: proto.UserID(peerID),
		Text:        text,
		ClientID:    clientID,
	})
	if err != nil {
		c.room(room).Fail(clientID, err.Error())
		return clientID, err
	}
	return clientID, nil
}

func (c *Client) MarkRead(ctx context.Context, peerID string) error {
	return c.write(ctx, proto.InboundTypeMarkRead, proto.PeerData{OtherUserID: proto.UserID(peerID)})
}

func (c *Client) Typing(ctx context.Context, peerID string) error {
	return c.write(ctx, proto.InboundTypeTyping, proto.PeerData{OtherUserID: proto.UserID(peerID)})
}

func (c *Client) StopTyping(ctx context.Context, peerID string) error {
	return c.write(ctx, proto.InboundTypeStopTyping, proto.PeerData{OtherUserID: proto.UserID(peerID)})
}

func (c *Client) DeleteForEveryone(ctx context.Context, messageID string) error {
	return c.write(ctx, proto.InboundTypeDeleteForEveryone, proto.MessageRef{MessageID: messageID})
}

func (c *Client) DeleteForMe(ctx context.Context, messageID string) error {
	return c.write(ctx, proto.InboundTypeDeleteForMe, proto.MessageRef{MessageID: messageID})
}

// Run reads frames until the socket closes, applying them to the timelines
// before handing them to fn (which may be nil).
func (c *Client) Run(ctx context.Context, fn func(proto.Outbound)) error {
	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, c.conn, &out); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			case statusSessionReplaced:
				return ErrSessionReplaced
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := c.apply(out); err != nil {
			return err
		}
		if fn != nil {
			fn(out)
		}
	}
}

func (c *Client) apply(out proto.Outbound) error {
	if out.Type == proto.OutboundTypeError {
		if out.Error != nil && out.Error.ClientID != "" {
			c.mu.Lock()
			timelines := make([]*Timeline, 0, len(c.timelines))
			for _, t := range c.timelines {
				timelines = append(timelines, t)
			}
			c.mu.Unlock()
			for _, t := range timelines {
				if t.Fail(out.Error.ClientID, out.Error.Code) {
					break
				}
			}
		}
		return nil
	}

	var err error
	switch out.Event {
	case "history":
		var ev proto.EventHistory
		if err = out.Decode(&ev); err == nil {
			c.room(ev.Room).Load(ev.Messages)
		}
	case "message":
		var ev proto.EventMessage
		if err = out.Decode(&ev); err == nil {
			c.room(ev.Room).ApplyMessage(ev)
		}
	case "message_updated":
		var ev proto.EventMessage
		if err = out.Decode(&ev); err == nil {
			c.room(ev.Room).ApplyUpdated(ev.Message)
		}
	case "message_hidden":
		var ev proto.EventMessageHidden
		if err = out.Decode(&ev); err == nil {
			c.room(ev.Room).Hide(ev.MessageID)
		}
	case "room_cleared":
		var ev proto.EventRoomCleared
		if err = out.Decode(&ev); err == nil {
			c.room(ev.Room).Clear()
		}
	case "status":
		var u proto.StatusUpdate
		if err = out.Decode(&u); err == nil {
			c.room(u.Room).ApplyStatus(u)
		}
	case "status_batch":
		var ev proto.EventStatusBatch
		if err = out.Decode(&ev); err == nil {
			for _, u := range ev.Updates {
				c.room(u.Room).ApplyStatus(u)
			}
		}
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", out.Event, err)
	}
	return nil
}

// Close ends the session normally.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
