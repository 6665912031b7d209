package core

import (
	"strconv"

	"github.com/vovakirdan/wiredm/internal/auth"
)

// RoomID derives the canonical room of two users. Order of arguments does not matter.
// Numeric ids compare numerically, anything else lexicographically.
// Both ids must satisfy auth.ValidUserID; otherwise distinct pairs can collide.
func RoomID(a, b string) string {
	if idLess(b, a) {
		a, b = b, a
	}
	return a + auth.IDSeparator + b
}

func idLess(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil && ai != bi {
		return ai < bi
	}
	return a < b
}

// Room groups sessions subscribed to the same conversation.
type Room struct {
	Name    string
	clients map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(name string) *Room {
	return &Room{
		Name:    name,
		clients: make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Has reports whether c is subscribed.
func (r *Room) Has(c *Client) bool {
	_, ok := r.clients[c]
	return ok
}

// Members returns the subscribed clients, skipping except (may be nil).
func (r *Room) Members(except *Client) []*Client {
	out := make([]*Client, 0, len(r.clients))
	for client := range r.clients {
		if client == except {
			continue
		}
		out = append(out, client)
	}
	return out
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}
