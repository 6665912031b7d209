package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestMirror(t *testing.T) *RedisMirror {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisMirror(rdb)
}

func TestRedisMirror(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := m.Online(ctx, "1"); err != nil {
		t.Fatalf("online: %v", err)
	}
	if err := m.Online(ctx, "2"); err != nil {
		t.Fatalf("online: %v", err)
	}
	if err := m.Offline(ctx, "2", at); err != nil {
		t.Fatalf("offline: %v", err)
	}

	snap, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Online) != 1 || snap.Online[0] != "1" {
		t.Fatalf("unexpected online: %v", snap.Online)
	}
	if !snap.LastSeen["2"].Equal(at) {
		t.Fatalf("unexpected last seen: %v", snap.LastSeen)
	}

	// Coming back online clears the stamp.
	if err := m.Online(ctx, "2"); err != nil {
		t.Fatalf("online: %v", err)
	}
	snap, err = m.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := snap.LastSeen["2"]; ok {
		t.Fatalf("expected last seen cleared, got %v", snap.LastSeen)
	}

	if err := m.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	snap, err = m.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Online) != 0 {
		t.Fatalf("expected empty online set after reset, got %v", snap.Online)
	}
}
