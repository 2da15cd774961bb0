package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maclay/research-assistant/internal/model"
)

type fakeConn struct {
	mu     sync.Mutex
	events []model.StageEvent
	alive  bool
	closed bool
	err    error
}

func newFakeConn() *fakeConn { return &fakeConn{alive: true} }

func (f *fakeConn) Send(event model.StageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeConn) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.alive = false
	return nil
}

func (f *fakeConn) sent() []model.StageEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.StageEvent(nil), f.events...)
}

func TestSendToRegisteredConn(t *testing.T) {
	t.Parallel()

	h := NewHub()
	conn := newFakeConn()
	h.Register("run-1", conn)

	h.Send("run-1", model.StageUpdate(model.StageDataCollection, model.StatusActive, 10, "collecting"))

	events := conn.sent()
	require.Len(t, events, 1)
	assert.Equal(t, model.StageDataCollection, events[0].Stage)
	assert.Equal(t, 10, events[0].Progress)
}

func TestSendWithoutObserverIsNoop(t *testing.T) {
	t.Parallel()

	h := NewHub()
	// Must not panic or block.
	h.Send("nobody-watching", model.StageUpdate(model.StageCaseAnalysis, model.StatusActive, 50, ""))
	assert.Zero(t, h.Observers())
}

func TestRegisterReplacesPreviousConn(t *testing.T) {
	t.Parallel()

	h := NewHub()
	first := newFakeConn()
	second := newFakeConn()
	h.Register("run-1", first)
	h.Register("run-1", second)

	assert.True(t, first.closed, "replaced connection is closed")
	assert.Equal(t, 1, h.Observers())

	h.Send("run-1", model.StageUpdate(model.StageDataCollection, model.StatusActive, 5, ""))
	assert.Empty(t, first.sent())
	assert.Len(t, second.sent(), 1)
}

func TestSendPurgesDeadConn(t *testing.T) {
	t.Parallel()

	h := NewHub()
	conn := newFakeConn()
	h.Register("run-1", conn)
	conn.mu.Lock()
	conn.alive = false
	conn.mu.Unlock()

	h.Send("run-1", model.StageUpdate(model.StageDataCollection, model.StatusActive, 5, ""))

	assert.Empty(t, conn.sent())
	assert.Zero(t, h.Observers())
}

func TestSendErrorDropsConn(t *testing.T) {
	t.Parallel()

	h := NewHub()
	conn := newFakeConn()
	conn.err = assert.AnError
	h.Register("run-1", conn)

	h.Send("run-1", model.StageUpdate(model.StageDataCollection, model.StatusActive, 5, ""))

	assert.Zero(t, h.Observers())
	assert.True(t, conn.closed)
}

func TestUnregisterLeavesReplacementAlone(t *testing.T) {
	t.Parallel()

	h := NewHub()
	first := newFakeConn()
	second := newFakeConn()
	h.Register("run-1", first)
	h.Register("run-1", second)

	// Late unregister from the replaced connection must not evict the
	// current one.
	h.Unregister("run-1", first)
	assert.Equal(t, 1, h.Observers())

	h.Unregister("run-1", second)
	assert.Zero(t, h.Observers())
}

func TestHubIsolatesRuns(t *testing.T) {
	t.Parallel()

	h := NewHub()
	a := newFakeConn()
	b := newFakeConn()
	h.Register("run-a", a)
	h.Register("run-b", b)

	h.Send("run-a", model.Completion(true, "# Report", ""))

	require.Len(t, a.sent(), 1)
	assert.Empty(t, b.sent())
	assert.Equal(t, model.EventCompletion, a.sent()[0].Type)
	assert.True(t, a.sent()[0].Success)
}

func TestConcurrentSends(t *testing.T) {
	t.Parallel()

	h := NewHub()
	conn := newFakeConn()
	h.Register("run-1", conn)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Send("run-1", model.StageUpdate(model.StageReportGeneration, model.StatusActive, 80, ""))
		}()
	}
	wg.Wait()

	assert.Len(t, conn.sent(), 20)
}
