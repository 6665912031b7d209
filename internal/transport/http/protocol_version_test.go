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

func dialAnonymous(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, env.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func TestWebSocketAuthFrame(t *testing.T) {
	env := startTestServer(t)
	conn := dialAnonymous(t, env)

	writeFrame(t, conn, proto.InboundTypeAuth, proto.AuthData{Token: env.token(t, "5"), Protocol: proto.ProtocolVersion})

	ready := decodeData[proto.EventReady](t, readEvent(t, conn, "ready"))
	if ready.UserID != "5" || ready.SessionID == "" || ready.Protocol != proto.ProtocolVersion {
		t.Fatalf("unexpected ready: %+v", ready)
	}
}

func TestWebSocketAuthFrameInvalidToken(t *testing.T) {
	env := startTestServer(t)
	conn := dialAnonymous(t, env)

	writeFrame(t, conn, proto.InboundTypeAuth, proto.AuthData{Token: "invalid"})
	readError(t, conn, core.ErrCodeUnauthorized)
	if code := readClose(t, conn); code != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation close, got %d", code)
	}
}

func TestWebSocketFirstFrameMustAuthenticate(t *testing.T) {
	env := startTestServer(t)
	conn := dialAnonymous(t, env)

	writeFrame(t, conn, proto.InboundTypeJoin, proto.PeerData{OtherUserID: "2"})
	readError(t, conn, core.ErrCodeUnauthorized)
}

func TestProtocolVersionMismatch(t *testing.T) {
	env := startTestServer(t)
	conn := dialAnonymous(t, env)

	writeFrame(t, conn, proto.InboundTypeAuth, proto.AuthData{Token: env.token(t, "1"), Protocol: proto.ProtocolVersion + 1})
	readError(t, conn, core.ErrCodeUnsupportedVersion)
}

func TestWebSocketAuthTimeout(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) { cfg.AuthTimeout = 100 * time.Millisecond })
	conn := dialAnonymous(t, env)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatalf("expected the server to drop an unauthenticated socket")
	}
}

func TestWebSocketRejectsInvalidTokenAtUpgrade(t *testing.T) {
	env := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, env.wsURL()+"?token=garbage", nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}
