package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/wiredm/internal/store/sqlstore"
	"github.com/vovakirdan/wiredm/internal/utils"
)

func newTestHub(t testing.TB, opts ...Option) (*Hub, *sqlstore.SQLStore) {
	t.Helper()

	st, err := sqlstore.New(sqlstore.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	hub := NewHub(st, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		hub.Shutdown()
		_ = st.Close()
	})
	return hub, st
}

func connect(t *testing.T, hub *Hub, userID string) *Client {
	t.Helper()

	c := NewClient(utils.NewID(), userID, "")
	hub.RegisterClient(context.Background(), c)
	mustEvent(t, c.Events, EventReady)
	return c
}

func join(t *testing.T, c *Client, peerID string) *Event {
	t.Helper()

	c.Commands <- &Command{Kind: CommandJoin, PeerID: peerID}
	return mustEvent(t, c.Events, EventHistory)
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected %v event: %+v", kind, ev)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func mustError(t *testing.T, c *Client, code string) *CoreError {
	t.Helper()

	ev := mustEvent(t, c.Events, EventError)
	if ev.Error == nil || ev.Error.Code != code {
		t.Fatalf("expected %s error, got %+v", code, ev.Error)
	}
	return ev.Error
}
