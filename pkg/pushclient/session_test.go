package pushclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/otcheredev/emergency-dispatch/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	writes  int
	failOn  int

	inbound   chan []byte
	readErr   chan error
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 8),
		readErr: make(chan error, 1),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-c.inbound:
		return m, nil
	case err := <-c.readErr:
		return nil, err
	case <-c.done:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	if c.writes == c.failOn {
		return errors.New("broken pipe")
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, w := range c.written {
		out = append(out, protocol.Decode(w).Type)
	}
	return out
}

type fakeDialer struct {
	mu      sync.Mutex
	calls   int
	urls    []string
	results []*fakeConn // nil entry is a refused dial
	block   bool
	release chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, target string) (Conn, error) {
	d.mu.Lock()
	d.calls++
	d.urls = append(d.urls, target)
	var conn *fakeConn
	if len(d.results) > 0 {
		conn = d.results[0]
		d.results = d.results[1:]
	}
	block, release := d.block, d.release
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if release != nil {
		<-release
	}
	if conn == nil {
		return nil, errors.New("connection refused")
	}
	return conn, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, t := range s.timers {
		out = append(out, t.delay)
	}
	return out
}

func (s *fakeScheduler) timer(i int) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[i]
}

// fire runs timer i as if its delay elapsed
func (s *fakeScheduler) fire(i int) {
	s.timer(i).f()
}

func newTestSession(t *testing.T, d *fakeDialer, sched *fakeScheduler, onFrame func(protocol.Frame)) *Session {
	t.Helper()
	s, err := New(Config{
		URL:               "ws://dispatch.test/ws",
		Token:             "tok",
		HandshakeTimeout:  time.Second,
		HeartbeatInterval: -1,
		Dialer:            d,
		Scheduler:         sched,
		OnFrame:           onFrame,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond)
}

func frame(t string) protocol.Frame {
	return protocol.MustNew(t, map[string]string{"k": t})
}

func TestBackoff_Delay(t *testing.T) {
	b := DefaultBackoff()

	assert.Equal(t, 500*time.Millisecond, b.Delay(0))
	assert.Equal(t, 550*time.Millisecond, b.Delay(1))
	assert.Equal(t, 605*time.Millisecond, b.Delay(2))
	assert.Equal(t, 5*time.Second, b.Delay(100))
	assert.Equal(t, 5*time.Second, b.Delay(100000))
}

func TestSession_RetryDelaysGrowAndResetAfterConnect(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{results: []*fakeConn{nil, nil, nil, conn}}
	sched := &fakeScheduler{}
	s := newTestSession(t, d, sched, nil)

	s.Connect()
	for i := 0; i < 3; i++ {
		waitFor(t, func() bool { return sched.count() == i+1 })
		sched.fire(i)
	}
	waitFor(t, func() bool { return s.State() == Connected })

	assert.Equal(t, []time.Duration{500 * time.Millisecond, 550 * time.Millisecond, 605 * time.Millisecond}, sched.delays())
	assert.Equal(t, 4, d.callCount())
	assert.Contains(t, d.urls[0], "token=tok")

	conn.readErr <- errors.New("unexpected EOF")
	waitFor(t, func() bool { return sched.count() == 4 })
	assert.Equal(t, 500*time.Millisecond, sched.delays()[3])
	assert.Equal(t, Disconnected, s.State())
}

func TestSession_SingleAttemptInFlight(t *testing.T) {
	release := make(chan struct{})
	d := &fakeDialer{results: []*fakeConn{newFakeConn()}, release: release}
	s := newTestSession(t, d, &fakeScheduler{}, nil)

	s.Connect()
	waitFor(t, func() bool { return d.callCount() == 1 })
	s.Connect()
	s.Trigger("visibility")
	assert.Equal(t, Connecting, s.State())

	close(release)
	waitFor(t, func() bool { return s.State() == Connected })
	s.Connect()
	assert.Equal(t, 1, d.callCount())
}

func TestSession_QueueFlushesInOrder(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{results: []*fakeConn{conn}}
	s := newTestSession(t, d, &fakeScheduler{}, nil)

	for _, typ := range []string{"a", "b", "c"} {
		require.NoError(t, s.Send(frame(typ)))
	}
	assert.Equal(t, 3, s.QueueLen())

	s.Connect()
	waitFor(t, func() bool { return len(conn.types()) == 3 })
	assert.Equal(t, []string{"a", "b", "c"}, conn.types())
	assert.Zero(t, s.QueueLen())

	require.NoError(t, s.Send(frame("d")))
	assert.Equal(t, []string{"a", "b", "c", "d"}, conn.types())
}

func TestSession_FailedFlushRequeuesAtFront(t *testing.T) {
	first := newFakeConn()
	first.failOn = 2
	second := newFakeConn()
	d := &fakeDialer{results: []*fakeConn{first, second}}
	sched := &fakeScheduler{}
	s := newTestSession(t, d, sched, nil)

	for _, typ := range []string{"a", "b", "c"} {
		require.NoError(t, s.Send(frame(typ)))
	}
	s.Connect()

	waitFor(t, func() bool { return sched.count() == 1 })
	assert.Equal(t, []string{"a"}, first.types())
	assert.Equal(t, 2, s.QueueLen())
	assert.Equal(t, Disconnected, s.State())

	sched.fire(0)
	waitFor(t, func() bool { return len(second.types()) == 2 })
	assert.Equal(t, []string{"b", "c"}, second.types())
}

func TestSession_HandshakeTimeoutCountsAsFailure(t *testing.T) {
	d := &fakeDialer{block: true}
	sched := &fakeScheduler{}
	s, err := New(Config{
		URL:               "ws://dispatch.test/ws",
		HandshakeTimeout:  20 * time.Millisecond,
		HeartbeatInterval: -1,
		Dialer:            d,
		Scheduler:         sched,
	})
	require.NoError(t, err)
	defer s.Close()

	s.Connect()
	waitFor(t, func() bool { return sched.count() == 1 })
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, 500*time.Millisecond, sched.delays()[0])
}

func TestSession_TriggerBypassesPendingBackoff(t *testing.T) {
	d := &fakeDialer{}
	sched := &fakeScheduler{}
	s := newTestSession(t, d, sched, nil)

	s.Connect()
	waitFor(t, func() bool { return sched.count() == 1 })

	s.Trigger("online")
	waitFor(t, func() bool { return d.callCount() == 2 })
	assert.True(t, sched.timer(0).isStopped())

	waitFor(t, func() bool { return sched.count() == 2 })
	assert.Equal(t, 550*time.Millisecond, sched.delays()[1], "trigger skips the wait, not the backoff")
}

func TestSession_InboundFramesAreDecoded(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{results: []*fakeConn{conn}}
	got := make(chan protocol.Frame, 4)
	s := newTestSession(t, d, &fakeScheduler{}, func(f protocol.Frame) { got <- f })

	s.Connect()
	waitFor(t, func() bool { return s.State() == Connected })

	conn.inbound <- []byte(`{"type":"new_message","data":{"message":"hi"}}`)
	conn.inbound <- []byte(`<<garbage>>`)
	conn.inbound <- []byte(`{"type":"pong"}`)

	assert.Equal(t, protocol.TypeNewMessage, (<-got).Type)
	bad := <-got
	assert.Equal(t, protocol.TypeUnparseable, bad.Type)
	assert.Equal(t, []byte(`<<garbage>>`), bad.Raw)
	assert.Equal(t, protocol.TypePong, (<-got).Type)
	assert.False(t, s.LastPong().IsZero())
}

func TestSession_UnauthorizedStopsReconnecting(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{results: []*fakeConn{conn}}
	sched := &fakeScheduler{}
	s := newTestSession(t, d, sched, nil)

	s.Connect()
	waitFor(t, func() bool { return s.State() == Connected })

	conn.readErr <- &websocket.CloseError{Code: protocol.CloseUnauthorized, Text: "unauthorized"}
	waitFor(t, func() bool { return s.State() == Disconnected })
	assert.Zero(t, sched.count())
}

func TestSession_CloseIsFinal(t *testing.T) {
	d := &fakeDialer{}
	s := newTestSession(t, d, &fakeScheduler{}, nil)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send(frame("a")), ErrClosed)
	s.Trigger("online")
	assert.Zero(t, d.callCount())
}

func TestSession_HeartbeatAgainstWebsocketServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	tokens := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens <- r.URL.Query().Get("token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		pong, _ := protocol.MustNew(protocol.TypePong, nil).Encode()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if protocol.Decode(msg).Type == protocol.TypePing {
				if err := conn.WriteMessage(websocket.TextMessage, pong); err != nil {
					return
				}
			}
		}
	}))
	defer srv.Close()

	s, err := New(Config{
		URL:               "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Token:             "abc",
		HeartbeatInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer s.Close()

	s.Connect()
	assert.Equal(t, "abc", <-tokens)
	waitFor(t, func() bool { return !s.LastPong().IsZero() })
	assert.Equal(t, Connected, s.State())
}

func TestSession_HeartbeatWritesPingFrames(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{results: []*fakeConn{conn}}
	s, err := New(Config{
		URL:               "ws://dispatch.test/ws",
		Token:             "tok",
		HeartbeatInterval: 5 * time.Millisecond,
		Dialer:            d,
		Scheduler:         &fakeScheduler{},
	})
	require.NoError(t, err)
	defer s.Close()

	s.Connect()
	waitFor(t, func() bool {
		types := conn.types()
		return len(types) >= 2 && types[0] == protocol.TypePing && types[1] == protocol.TypePing
	})
}
