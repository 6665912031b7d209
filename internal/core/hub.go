package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	wlog "github.com/vovakirdan/wiredm/internal/log"
	"github.com/vovakirdan/wiredm/internal/metrics"
	"github.com/vovakirdan/wiredm/internal/presence"
	"github.com/vovakirdan/wiredm/internal/store"
)

const mirrorTimeout = 2 * time.Second

// Close reasons reported through Client.Reason.
const (
	ReasonDisconnected    = "disconnected"
	ReasonSessionReplaced = "session replaced"
	ReasonShutdown        = "server shutting down"
)

// Hub is the session gateway: it owns room subscriptions and presence,
// runs one command loop per session and fans events out to sessions.
type Hub struct {
	store    store.MessageStore
	presence *presence.Table[*Client]
	mirror   presence.Mirror
	metrics  *metrics.Gateway
	log      *zerolog.Logger
	now      func() time.Time
	maxText  int

	mu       sync.RWMutex
	rooms    map[string]*Room
	sessions map[*Client]struct{}

	handlers map[CommandKind]handlerFunc

	// presenceMu orders presence broadcasts so no session sees an older snapshot after a newer one.
	presenceMu sync.Mutex

	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.log = logger
		}
	}
}

// WithMirror publishes presence changes to m.
func WithMirror(m presence.Mirror) Option {
	return func(h *Hub) {
		if m != nil {
			h.mirror = m
		}
	}
}

// WithMetrics records gateway activity on g.
func WithMetrics(g *metrics.Gateway) Option {
	return func(h *Hub) { h.metrics = g }
}

// WithClock overrides the time source for message and status timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// WithMaxTextLength caps message text in runes. Zero disables the cap.
func WithMaxTextLength(n int) Option {
	return func(h *Hub) { h.maxText = n }
}

// NewHub creates a hub backed by st.
func NewHub(st store.MessageStore, opts ...Option) *Hub {
	h := &Hub{
		store:    st,
		mirror:   presence.NopMirror{},
		log:      wlog.Nop(),
		now:      time.Now,
		rooms:    make(map[string]*Room),
		sessions: make(map[*Client]struct{}),
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.presence = presence.NewTable[*Client](presence.WithClock(h.now))
	h.handlers = map[CommandKind]handlerFunc{
		CommandJoin:              h.handleJoin,
		CommandLeave:             h.handleLeave,
		CommandTyping:            h.handleTyping(EventTyping),
		CommandStopTyping:        h.handleTyping(EventStopTyping),
		CommandSend:              h.handleSend,
		CommandMarkRead:          h.handleMarkRead,
		CommandDeleteForEveryone: h.handleDeleteForEveryone,
		CommandDeleteForMe:       h.handleDeleteForMe,
	}
	return h
}

// Run blocks until ctx is done, then ends every session.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.Shutdown()
}

// Shutdown ends every session and waits for their command loops to exit.
func (h *Hub) Shutdown() {
	h.quitOnce.Do(func() {
		h.mu.Lock()
		close(h.quit)
		clients := make([]*Client, 0, len(h.sessions))
		for c := range h.sessions {
			clients = append(clients, c)
		}
		h.mu.Unlock()

		for _, c := range clients {
			c.Close(ReasonShutdown)
		}
	})
	h.wg.Wait()
}

// RegisterClient brings an authenticated session online. An earlier session
// of the same user is told it was replaced and ended. Messages waiting for
// the user are marked delivered and their senders notified.
func (h *Hub) RegisterClient(ctx context.Context, c *Client) {
	h.mu.Lock()
	select {
	case <-h.quit:
		h.mu.Unlock()
		c.Close(ReasonShutdown)
		return
	default:
	}
	h.sessions[c] = struct{}{}
	// Counted under mu so Shutdown never waits before a registered loop is added.
	h.wg.Add(1)
	h.mu.Unlock()

	prev, replaced := h.presence.Connect(c.UserID, c)
	if replaced {
		h.evict(prev)
	} else {
		h.metrics.SessionOpened()
	}
	h.mirrorOnline(ctx, c.UserID)

	h.log.Debug().Str("user_id", c.UserID).Str("session_id", c.ID).Bool("replaced", replaced).Msg("session connected")

	h.publish([]notification{{to: []*Client{c}, event: &Event{Kind: EventReady, User: c.UserID}}})
	h.publish(h.flushPending(ctx, c.UserID))
	h.broadcastPresence()

	go h.serve(c)
}

// UnregisterClient ends a session. If it was the user's active session the
// user goes offline and everyone receives the new presence snapshot.
func (h *Hub) UnregisterClient(ctx context.Context, c *Client) {
	c.Close(ReasonDisconnected)
	h.detach(c)

	at, ok := h.presence.Disconnect(c.UserID, c)
	if !ok {
		return
	}
	h.metrics.SessionClosed()
	h.mirrorOffline(ctx, c.UserID, at)

	h.log.Debug().Str("user_id", c.UserID).Str("session_id", c.ID).Msg("session disconnected")

	h.broadcastPresence()
}

// Presence returns the current presence snapshot.
func (h *Hub) Presence() presence.Snapshot {
	return h.presence.Snapshot()
}

// IsOnline reports whether userID has an active session.
func (h *Hub) IsOnline(userID string) bool {
	return h.presence.IsOnline(userID)
}

func (h *Hub) serve(c *Client) {
	defer h.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.Done():
		case <-h.quit:
		}
		cancel()
	}()

	for {
		select {
		case cmd := <-c.Commands:
			if cmd != nil {
				h.dispatch(ctx, c, cmd)
			}
		case <-c.Done():
			return
		case <-h.quit:
			return
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Client, cmd *Command) {
	h.metrics.Event(cmd.Kind.String())

	handler, ok := h.handlers[cmd.Kind]
	if !ok {
		h.fail(c, coreError(ErrCodeInvalidMessage, "unknown command"))
		return
	}

	out, err := handler(ctx, c, cmd)
	h.publish(out)
	if err == nil {
		return
	}

	ce := AsCoreError(err)
	if ce.Code == ErrCodeInternal || ce.Code == ErrCodeDeliveryFailed {
		h.log.Error().Err(err).Str("user_id", c.UserID).Str("command", cmd.Kind.String()).Msg("command failed")
	}
	h.fail(c, ce)
}

func (h *Hub) fail(c *Client, ce *CoreError) {
	h.metrics.Error(ce.Code)
	h.publish([]notification{{to: []*Client{c}, event: &Event{Kind: EventError, Error: ce}}})
}

// publish delivers notifications in order. Slow or closed sessions lose the event.
func (h *Hub) publish(out []notification) {
	for _, n := range out {
		for _, to := range n.to {
			if to == nil {
				continue
			}
			if !to.deliver(n.event) {
				h.metrics.Dropped()
				h.log.Debug().Str("session_id", to.ID).Str("event", n.event.Kind.String()).Msg("event dropped")
			}
		}
	}
}

func (h *Hub) evict(prev *Client) {
	h.publish([]notification{{to: []*Client{prev}, event: &Event{Kind: EventSessionReplaced, User: prev.UserID}}})
	prev.Close(ReasonSessionReplaced)
	h.detach(prev)
	h.log.Info().Str("user_id", prev.UserID).Str("session_id", prev.ID).Msg("session replaced")
}

// detach drops c from the session set and from every room it joined.
func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.sessions, c)
	for name := range c.rooms {
		if room, ok := h.rooms[name]; ok {
			room.RemoveClient(c)
			if room.Empty() {
				delete(h.rooms, name)
			}
		}
		delete(c.rooms, name)
	}
}

// subscribe adds c to room. Returns false if c was already subscribed or is no longer registered.
func (h *Hub) subscribe(c *Client, name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[c]; !ok {
		return false
	}
	room, ok := h.rooms[name]
	if !ok {
		room = NewRoom(name)
		h.rooms[name] = room
	}
	if !room.AddClient(c) {
		return false
	}
	c.rooms[name] = struct{}{}
	return true
}

func (h *Hub) unsubscribe(c *Client, name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[name]
	if !ok || !room.RemoveClient(c) {
		return false
	}
	delete(c.rooms, name)
	if room.Empty() {
		delete(h.rooms, name)
	}
	return true
}

// members returns the sessions subscribed to room, skipping except.
func (h *Hub) members(name string, except *Client) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[name]
	if !ok {
		return nil
	}
	return room.Members(except)
}

func (h *Hub) joined(c *Client, name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[name]
	return ok && room.Has(c)
}

// broadcastPresence sends the current snapshot to every online session.
func (h *Hub) broadcastPresence() {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	snap, handles := h.presence.SnapshotWithHandles()
	h.publish([]notification{{
		to:    handles,
		event: &Event{Kind: EventPresence, Presence: &snap},
	}})
}

func (h *Hub) mirrorOnline(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()
	if err := h.mirror.Online(ctx, userID); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("presence mirror online")
	}
}

func (h *Hub) mirrorOffline(ctx context.Context, userID string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()
	if err := h.mirror.Offline(ctx, userID, at); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("presence mirror offline")
	}
}
