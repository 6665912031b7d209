package core

import "sync"

const (
	commandBuffer = 16
	eventBuffer   = 64
)

// Client is one authenticated session as seen by the core layer.
type Client struct {
	ID       string
	UserID   string
	Name     string
	Commands chan *Command
	Events   chan *Event

	// rooms is guarded by the hub mutex.
	rooms map[string]struct{}

	done      chan struct{}
	closeOnce sync.Once
	reason    string
}

// NewClient constructs a session for userID with initialized channels.
func NewClient(id, userID, name string) *Client {
	if name == "" {
		name = userID
	}
	return &Client{
		ID:       id,
		UserID:   userID,
		Name:     name,
		Commands: make(chan *Command, commandBuffer),
		Events:   make(chan *Event, eventBuffer),
		rooms:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Done is closed when the session ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close ends the session. Only the first reason is kept.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

// Reason returns why the session ended. Valid after Done is closed.
func (c *Client) Reason() string {
	<-c.done
	return c.reason
}

// deliver queues ev without blocking. Returns false if the session is gone or its buffer is full.
func (c *Client) deliver(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
