package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Client is one open page of a signed-in user. Refresh events only flow
// from the server to the page; frames the page sends are dropped.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	userID string
	send   chan []byte
}

func NewClient(hub *Hub, conn *ws.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

// Run delivers the user's refresh events until the page goes away.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	// CloseRead answers pings and cancels ctx when the page disconnects.
	ctx = c.conn.CloseRead(ctx)
	c.deliver(ctx)
}

func (c *Client) deliver(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.withTimeout(ctx, func(ctx context.Context) error {
				return c.conn.Write(ctx, ws.MessageText, event)
			}); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.withTimeout(ctx, c.conn.Ping); err != nil {
				return
			}
		}
	}
}

// withTimeout bounds a write so a stalled page cannot hold its client open.
func (c *Client) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return fn(ctx)
}
