package progress

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"

	"github.com/maclay/research-assistant/internal/model"
)

const writeWait = 5 * time.Second

// WSConn adapts a websocket connection to the Conn interface. A background
// read pump discards inbound frames and flips the alive flag when the peer
// goes away, so the hub can purge the connection lazily.
type WSConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu    sync.Mutex
	alive bool
}

// NewWSConn wraps ws and starts its read pump.
func NewWSConn(ws *websocket.Conn) *WSConn {
	c := &WSConn{ws: ws, alive: true}
	go c.readPump()
	return c
}

func (c *WSConn) readPump() {
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			c.mu.Lock()
			c.alive = false
			c.mu.Unlock()
			return
		}
	}
}

// Send writes event as a JSON frame.
func (c *WSConn) Send(event model.StageEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
	if err := c.ws.WriteJSON(event); err != nil {
		return eris.Wrap(err, "progress: write event")
	}
	return nil
}

// Alive reports whether the peer is still connected.
func (c *WSConn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// Close shuts the underlying websocket.
func (c *WSConn) Close() error {
	c.mu.Lock()
	c.alive = false
	c.mu.Unlock()
	return c.ws.Close()
}
