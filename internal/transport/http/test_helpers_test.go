package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredm/internal/auth"
	"github.com/vovakirdan/wiredm/internal/config"
	"github.com/vovakirdan/wiredm/internal/core"
	"github.com/vovakirdan/wiredm/internal/metrics"
	"github.com/vovakirdan/wiredm/internal/proto"
	"github.com/vovakirdan/wiredm/internal/store/sqlstore"
)

const testSecret = "test-secret-123"

type testEnv struct {
	ts       *httptest.Server
	hub      *core.Hub
	verifier *auth.JWTVerifier
}

// startTestServer runs the full HTTP stack over an in-memory store.
func startTestServer(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.JWTSecret = testSecret
	cfg.AuthTimeout = time.Second
	cfg.RateLimitRPS = 0
	for _, m := range mutate {
		m(&cfg)
	}

	st, err := sqlstore.New(sqlstore.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	verifier := auth.NewJWTVerifier(&auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})

	reg := prometheus.NewRegistry()
	gm := metrics.NewGateway(reg)
	hub := core.NewHub(st, core.WithMetrics(gm), core.WithMaxTextLength(cfg.MaxTextLength))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	disabledLogger := zerolog.Nop()
	server := NewServer(hub, verifier, &cfg, &disabledLogger, WithHealthCheck(st), WithMetrics(reg, gm))
	ts := httptest.NewServer(server.Handler)

	t.Cleanup(func() {
		cancel()
		hub.Shutdown()
		ts.Close()
		_ = st.Close()
	})
	return &testEnv{ts: ts, hub: hub, verifier: verifier}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()

	token, err := e.verifier.Issue(userID, "user"+userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

// dial connects userID with a bearer header and waits for ready.
func (e *testEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, e.wsURL(), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + e.token(t, userID)}},
	})
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })

	readEvent(t, conn, "ready")
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readEvent reads frames until the named event (or "error") arrives, skipping others.
func readEvent(t *testing.T, conn *websocket.Conn, name string) proto.Outbound {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %s: %v", name, err)
		}
		if name == proto.OutboundTypeError && out.Type == proto.OutboundTypeError {
			return out
		}
		if out.Type == proto.OutboundTypeEvent && out.Event == name {
			return out
		}
	}
}

func readError(t *testing.T, conn *websocket.Conn, code string) *proto.Error {
	t.Helper()

	out := readEvent(t, conn, proto.OutboundTypeError)
	if out.Error == nil || out.Error.Code != code {
		t.Fatalf("expected %s error, got %+v", code, out.Error)
	}
	return out.Error
}

// readClose reads until the server closes the socket and returns the close status.
func readClose(t *testing.T, conn *websocket.Conn) websocket.StatusCode {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			var ce websocket.CloseError
			if errors.As(err, &ce) {
				return ce.Code
			}
			t.Fatalf("expected close frame, got %v", err)
		}
	}
}

func decodeData[T any](t *testing.T, out proto.Outbound) T {
	t.Helper()

	var v T
	if err := out.Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", out.Event, err)
	}
	return v
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, raw
}
