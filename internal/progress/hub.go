// Package progress fans stage events out to whoever is watching a research
// run. A run has at most one observer; runs with no observer proceed
// normally, their events dropped on the floor.
package progress

import (
	"sync"

	"go.uber.org/zap"

	"github.com/maclay/research-assistant/internal/model"
)

// Conn is one observer connection. Send must be safe for use from the
// pipeline goroutine; Alive reports whether the peer is still there.
type Conn interface {
	Send(event model.StageEvent) error
	Alive() bool
	Close() error
}

// Hub routes stage events to at most one connection per run ID.
type Hub struct {
	mu    sync.Mutex
	conns map[string]Conn
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]Conn)}
}

// Register attaches conn as the observer for runID. Any previous observer
// for the same run is closed and replaced.
func (h *Hub) Register(runID string, conn Conn) {
	h.mu.Lock()
	prev := h.conns[runID]
	h.conns[runID] = conn
	h.mu.Unlock()

	if prev != nil {
		prev.Close() //nolint:errcheck // replaced connection is already gone
	}
}

// Unregister detaches conn from runID, if it is still the registered
// observer. A connection that was already replaced is left alone.
func (h *Hub) Unregister(runID string, conn Conn) {
	h.mu.Lock()
	if h.conns[runID] == conn {
		delete(h.conns, runID)
	}
	h.mu.Unlock()
}

// Send delivers event to the observer of runID, if any. Dead connections
// are purged on the way; delivery problems never propagate to the caller.
func (h *Hub) Send(runID string, event model.StageEvent) {
	h.mu.Lock()
	conn := h.conns[runID]
	if conn != nil && !conn.Alive() {
		delete(h.conns, runID)
		h.mu.Unlock()
		conn.Close() //nolint:errcheck
		zap.L().Debug("purged dead progress connection", zap.String("run_id", runID))
		return
	}
	h.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Send(event); err != nil {
		zap.L().Debug("progress send failed",
			zap.String("run_id", runID),
			zap.String("stage", string(event.Stage)),
			zap.Error(err))
		h.Unregister(runID, conn)
		conn.Close() //nolint:errcheck
	}
}

// Observers returns the number of runs currently being observed.
func (h *Hub) Observers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
