package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/wiredm/internal/config"
	"github.com/vovakirdan/wiredm/internal/core"
	"github.com/vovakirdan/wiredm/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t)

	status, body := env.request(t, http.MethodGet, "/health", "", nil)
	if status != http.StatusOK || string(body) != "ok" {
		t.Fatalf("unexpected health response: %d %s", status, body)
	}
}

func TestWebSocketSendEchoAndDelivered(t *testing.T) {
	env := startTestServer(t)
	alice := env.dial(t, "1")
	bob := env.dial(t, "2")

	writeFrame(t, alice, proto.InboundTypeJoin, proto.PeerData{OtherUserID: "2"})
	readEvent(t, alice, "history")
	writeFrame(t, bob, proto.InboundTypeJoin, proto.PeerData{OtherUserID: "1"})
	readEvent(t, bob, "history")

	writeFrame(t, alice, proto.InboundTypeSend, proto.SendData{OtherUserID: "2", Text: "hello", ClientID: "c-1"})

	echo := decodeData[proto.EventMessage](t, readEvent(t, alice, "message"))
	if echo.ClientID != "c-1" || echo.Text != "hello" || echo.Status != "sent" || echo.Room != "1_2" {
		t.Fatalf("unexpected echo: %+v", echo)
	}

	got := decodeData[proto.EventMessage](t, readEvent(t, bob, "message"))
	if got.ID != echo.ID || got.SenderID != "1" || got.ReceiverID != "2" {
		t.Fatalf("unexpected message for bob: %+v", got)
	}

	status := decodeData[proto.StatusUpdate](t, readEvent(t, alice, "status"))
	if status.ID != echo.ID || status.Status != "delivered" || status.DeliveredAt == nil {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestWebSocketOfflineMessagesDeliveredInOneBatch(t *testing.T) {
	env := startTestServer(t)
	alice := env.dial(t, "1")

	for _, id := range []string{"c-1", "c-2", "c-3"} {
		writeFrame(t, alice, proto.InboundTypeSend, proto.SendData{OtherUserID: "2", Text: "ping", ClientID: id})
		readEvent(t, alice, "message")
	}

	env.dial(t, "2")

	batch := decodeData[proto.EventStatusBatch](t, readEvent(t, alice, "status_batch"))
	if len(batch.Updates) != 3 {
		t.Fatalf("expected 3 updates, got %+v", batch.Updates)
	}
	for _, u := range batch.Updates {
		if u.Status != "delivered" {
			t.Fatalf("unexpected update: %+v", u)
		}
	}
}

func TestWebSocketReadReceipts(t *testing.T) {
	env := startTestServer(t)
	alice := env.dial(t, "1")
	bob := env.dial(t, "2")

	writeFrame(t, alice, proto.InboundTypeSend, proto.SendData{OtherUserID: "2", Text: "read me", ClientID: "c-1"})
	readEvent(t, alice, "status")

	writeFrame(t, bob, proto.InboundTypeMarkRead, proto.PeerData{OtherUserID: "1"})

	batch := decodeData[proto.EventStatusBatch](t, readEvent(t, alice, "status_batch"))
	if len(batch.Updates) != 1 || batch.Updates[0].Status != "read" || batch.Updates[0].ReadAt == nil {
		t.Fatalf("unexpected read batch: %+v", batch.Updates)
	}
}

func TestWebSocketTyping(t *testing.T) {
	env := startTestServer(t)
	alice := env.dial(t, "1")
	bob := env.dial(t, "2")

	writeFrame(t, bob, proto.InboundTypeJoin, proto.PeerData{OtherUserID: "1"})
	readEvent(t, bob, "history")

	writeFrame(t, alice, proto.InboundTypeTyping, proto.PeerData{OtherUserID: "2"})
	typing := decodeData[proto.EventTyping](t, readEvent(t, bob, "typing"))
	if typing.UserID != "1" || typing.Room != "1_2" {
		t.Fatalf("unexpected typing: %+v", typing)
	}

	writeFrame(t, alice, proto.InboundTypeStopTyping, proto.PeerData{OtherUserID: "2"})
	readEvent(t, bob, "stop_typing")
}

func TestWebSocketDeletes(t *testing.T) {
	env := startTestServer(t)
	alice := env.dial(t, "1")
	bob := env.dial(t, "2")

	writeFrame(t, bob, proto.InboundTypeJoin, proto.PeerData{OtherUserID: "1"})
	readEvent(t, bob, "history")

	writeFrame(t, alice, proto.InboundTypeSend, proto.SendData{OtherUserID: "2", Text: "first", ClientID: "c-1"})
	first := decodeData[proto.EventMessage](t, readEvent(t, alice, "message"))
	writeFrame(t, alice, proto.InboundTypeSend, proto.SendData{OtherUserID: "2", Text: "second", ClientID: "c-2"})
	second := decodeData[proto.EventMessage](t, readEvent(t, alice, "message"))

	writeFrame(t, bob, proto.InboundTypeDeleteForEveryone, proto.MessageRef{MessageID: first.ID})
	readError(t, bob, core.ErrCodeForbidden)

	writeFrame(t, alice, proto.InboundTypeDeleteForEveryone, proto.MessageRef{MessageID: first.ID})
	updated := decodeData[proto.EventMessage](t, readEvent(t, bob, "message_updated"))
	if updated.ID != first.ID || !updated.Deleted || updated.Text != "This message was deleted" {
		t.Fatalf("unexpected tombstone: %+v", updated)
	}

	writeFrame(t, bob, proto.InboundTypeDeleteForMe, proto.MessageRef{MessageID: second.ID})
	hidden := decodeData[proto.EventMessageHidden](t, readEvent(t, bob, "message_hidden"))
	if hidden.MessageID != second.ID {
		t.Fatalf("unexpected hidden: %+v", hidden)
	}

	history, err := env.hub.History(context.Background(), "2", "1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != first.ID {
		t.Fatalf("expected only the tombstone visible to bob, got %+v", history)
	}
}

func TestWebSocketValidationErrors(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) { cfg.MaxTextLength = 4 })
	alice := env.dial(t, "1")

	writeFrame(t, alice, proto.InboundTypeSend, proto.SendData{OtherUserID: "1", Text: "me", ClientID: "c-self"})
	if perr := readError(t, alice, core.ErrCodeSelfMessage); perr.ClientID != "c-self" {
		t.Fatalf("expected client id on error, got %+v", perr)
	}

	writeFrame(t, alice, proto.InboundTypeSend, proto.SendData{OtherUserID: "2", Text: " ", ClientID: "c-empty"})
	readError(t, alice, core.ErrCodeEmptyText)

	writeFrame(t, alice, proto.InboundTypeSend, proto.SendData{OtherUserID: "2", Text: "too long", ClientID: "c-long"})
	readError(t, alice, core.ErrCodeTextTooLong)

	writeFrame(t, alice, proto.InboundTypeJoin, map[string]string{})
	readError(t, alice, core.ErrCodeBadRequest)

	writeFrame(t, alice, "shout", map[string]string{})
	readError(t, alice, core.ErrCodeInvalidMessage)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := alice.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write raw: %v", err)
	}
	readError(t, alice, core.ErrCodeInvalidMessage)

	// The socket survives rejected frames.
	writeFrame(t, alice, proto.InboundTypeJoin, proto.PeerData{OtherUserID: "2"})
	readEvent(t, alice, "history")
}

func TestWebSocketRateLimited(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.RateLimitRPS = 0.001
		cfg.RateLimitBurst = 1
	})
	alice := env.dial(t, "1")

	writeFrame(t, alice, proto.InboundTypeTyping, proto.PeerData{OtherUserID: "2"})
	writeFrame(t, alice, proto.InboundTypeTyping, proto.PeerData{OtherUserID: "2"})
	readError(t, alice, core.ErrCodeRateLimited)
}

func TestWebSocketSessionReplaced(t *testing.T) {
	env := startTestServer(t)
	first := env.dial(t, "2")
	second := env.dial(t, "2")

	readEvent(t, first, "session_replaced")
	if code := readClose(t, first); code != StatusSessionReplaced {
		t.Fatalf("expected close %d, got %d", StatusSessionReplaced, code)
	}

	// The newer session keeps working and the user stays online.
	writeFrame(t, second, proto.InboundTypeJoin, proto.PeerData{OtherUserID: "1"})
	readEvent(t, second, "history")
	if snap := env.hub.Presence(); len(snap.Online) != 1 || snap.Online[0] != "2" {
		t.Fatalf("unexpected presence: %+v", snap)
	}
}

func TestWebSocketPresenceBroadcast(t *testing.T) {
	env := startTestServer(t)
	alice := env.dial(t, "1")
	bob := env.dial(t, "2")

	var seq uint64
	for {
		p := decodeData[proto.EventPresence](t, readEvent(t, alice, "presence"))
		if p.Seq < seq {
			t.Fatalf("presence seq went backwards: %d after %d", p.Seq, seq)
		}
		seq = p.Seq
		if len(p.Online) == 2 {
			break
		}
	}

	_ = bob.Close(websocket.StatusNormalClosure, "bye")

	for {
		p := decodeData[proto.EventPresence](t, readEvent(t, alice, "presence"))
		if p.Seq < seq {
			t.Fatalf("presence seq went backwards: %d after %d", p.Seq, seq)
		}
		seq = p.Seq
		if len(p.Online) == 1 {
			if _, ok := p.LastSeen["2"]; !ok {
				t.Fatalf("expected last seen for 2, got %+v", p)
			}
			break
		}
	}
}
