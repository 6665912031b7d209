package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/wiredm/internal/store"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	st, err := New(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seed(t *testing.T, st *SQLStore, from, to, text string, at time.Time) *store.Message {
	t.Helper()

	room := from + "_" + to
	if to < from {
		room = to + "_" + from
	}
	msg := &store.Message{Room: room, SenderID: from, ReceiverID: to, Text: text, SentAt: at}
	if err := st.CreateMessage(context.Background(), msg); err != nil {
		t.Fatalf("create message %q: %v", text, err)
	}
	return msg
}

func TestCreateAndGetMessage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	msg := seed(t, st, "1", "2", "hi", time.Now())
	if msg.ID == "" {
		t.Fatalf("expected id to be assigned")
	}
	if msg.Status != store.StatusSent {
		t.Fatalf("expected sent status, got %s", msg.Status)
	}

	got, err := st.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got.Text != "hi" || got.SenderID != "1" || got.ReceiverID != "2" || got.Room != "1_2" {
		t.Fatalf("unexpected message: %+v", got)
	}
	if got.Deleted || got.DeliveredAt != nil || got.ReadAt != nil || len(got.HiddenFor) != 0 {
		t.Fatalf("unexpected lifecycle fields: %+v", got)
	}

	if _, err := st.GetMessage(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRoomMessagesOrderAndVisibility(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	first := seed(t, st, "1", "2", "first", base)
	second := seed(t, st, "2", "1", "second", base.Add(time.Second))
	third := seed(t, st, "1", "2", "third", base.Add(2*time.Second))
	seed(t, st, "1", "3", "other room", base)

	if err := st.HideForUser(ctx, second.ID, "1"); err != nil {
		t.Fatalf("hide: %v", err)
	}
	// Idempotent per user.
	if err := st.HideForUser(ctx, second.ID, "1"); err != nil {
		t.Fatalf("hide twice: %v", err)
	}

	forOne, err := st.ListRoomMessages(ctx, "1_2", "1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(forOne) != 2 || forOne[0].ID != first.ID || forOne[1].ID != third.ID {
		t.Fatalf("unexpected list for user 1: %+v", forOne)
	}

	forTwo, err := st.ListRoomMessages(ctx, "1_2", "2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(forTwo) != 3 || forTwo[1].ID != second.ID {
		t.Fatalf("peer visibility must be unaffected, got %+v", forTwo)
	}

	got, err := st.GetMessage(ctx, second.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.HiddenFor) != 1 || got.HiddenFor[0] != "1" {
		t.Fatalf("expected hidden-for [1], got %v", got.HiddenFor)
	}
}

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	msg := seed(t, st, "1", "2", "hi", now)

	// Read before delivered is not a valid transition.
	read, err := st.MarkRoomRead(ctx, "1_2", "2", now)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if len(read) != 0 {
		t.Fatalf("expected no read transition from sent, got %+v", read)
	}

	ok, err := st.MarkDelivered(ctx, msg.ID, now)
	if err != nil || !ok {
		t.Fatalf("mark delivered: ok=%v err=%v", ok, err)
	}
	ok, err = st.MarkDelivered(ctx, msg.ID, now)
	if err != nil || ok {
		t.Fatalf("second delivered must be a no-op: ok=%v err=%v", ok, err)
	}

	read, err = st.MarkRoomRead(ctx, "1_2", "2", now)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if len(read) != 1 || read[0].ID != msg.ID || read[0].Status != store.StatusRead || read[0].SenderID != "1" {
		t.Fatalf("unexpected read batch: %+v", read)
	}

	// Nothing left to transition; a delivered pass must not regress read.
	pending, err := st.MarkPendingDelivered(ctx, "2", now)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty pending batch, got %+v", pending)
	}

	got, err := st.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != store.StatusRead || got.DeliveredAt == nil || got.ReadAt == nil {
		t.Fatalf("unexpected final state: %+v", got)
	}
}

func TestMarkPendingDeliveredBatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	a := seed(t, st, "1", "2", "from one", now)
	b := seed(t, st, "3", "2", "from three", now)
	seed(t, st, "2", "1", "outgoing", now)

	changes, err := st.MarkPendingDelivered(ctx, "2", now)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %+v", changes)
	}
	bySender := map[string]string{}
	for _, c := range changes {
		if c.Status != store.StatusDelivered {
			t.Fatalf("unexpected status in batch: %+v", c)
		}
		bySender[c.SenderID] = c.ID
	}
	if bySender["1"] != a.ID || bySender["3"] != b.ID {
		t.Fatalf("unexpected batch contents: %+v", changes)
	}
}

func TestSoftDelete(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	msg := seed(t, st, "1", "2", "secret", time.Now())

	deleted, err := st.SoftDelete(ctx, msg.ID)
	if err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if !deleted.Deleted || deleted.Text != store.Tombstone {
		t.Fatalf("expected tombstone, got %+v", deleted)
	}

	if _, err := st.SoftDelete(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHideRoomAndConversations(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	seed(t, st, "1", "2", "hello two", base)
	seed(t, st, "2", "1", "hello one", base.Add(time.Minute))
	seed(t, st, "3", "1", "hello from three", base.Add(2*time.Minute))

	convs, err := st.ListConversations(ctx, "1")
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %+v", convs)
	}
	if convs[0].PeerID != "3" || convs[0].LastText != "hello from three" || convs[0].Unread != 1 {
		t.Fatalf("unexpected first conversation: %+v", convs[0])
	}
	if convs[1].PeerID != "2" || convs[1].LastText != "hello one" || convs[1].Unread != 1 {
		t.Fatalf("unexpected second conversation: %+v", convs[1])
	}

	n, err := st.HideRoomForUser(ctx, "1_2", "1")
	if err != nil {
		t.Fatalf("hide room: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 hidden, got %d", n)
	}
	if n, err = st.HideRoomForUser(ctx, "1_2", "1"); err != nil || n != 0 {
		t.Fatalf("second clear must hide nothing new: n=%d err=%v", n, err)
	}

	convs, err = st.ListConversations(ctx, "1")
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(convs) != 1 || convs[0].PeerID != "3" {
		t.Fatalf("expected only conversation with 3, got %+v", convs)
	}

	peer, err := st.ListConversations(ctx, "2")
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(peer) != 1 || peer[0].PeerID != "1" {
		t.Fatalf("peer inbox must be unaffected, got %+v", peer)
	}
}
