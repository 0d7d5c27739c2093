// Package pushclient is the client side of the push channel: a session that
// keeps one connection alive, reconnects with backoff and holds outbound
// frames while offline.
package pushclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/otcheredev/emergency-dispatch/pkg/logger"
	"github.com/otcheredev/emergency-dispatch/pkg/protocol"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by Send after Close
var ErrClosed = errors.New("push session closed")

// State of the session
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config configures a Session
type Config struct {
	URL               string
	Token             string
	Backoff           Backoff
	HandshakeTimeout  time.Duration
	HeartbeatInterval time.Duration // negative disables
	QueueLimit        int

	Dialer    Dialer
	Scheduler Scheduler

	// OnFrame receives every inbound frame, including unparseable ones
	OnFrame func(protocol.Frame)
	// OnStateChange is called with the session lock held and must not call
	// back into the Session
	OnStateChange func(State)
}

// Session is a reconnecting push connection. At most one connection attempt
// is in flight at a time.
type Session struct {
	cfg    Config
	logger zerolog.Logger

	mu       sync.Mutex
	state    State
	conn     Conn
	connDone chan struct{}
	gen      uint64
	queue    [][]byte
	failures int
	retry    Timer
	closed   bool
	token    string
	lastPong time.Time
	ping     []byte
}

// New creates a disconnected session
func New(cfg Config) (*Session, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("push url is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid push url: %w", err)
	}
	cfg.Backoff = cfg.Backoff.withDefaults()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 25 * time.Second
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = 1000
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = realScheduler{}
	}
	ping, err := protocol.MustNew(protocol.TypePing, nil).Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode heartbeat: %w", err)
	}

	return &Session{
		cfg:    cfg,
		logger: logger.Component("pushclient"),
		token:  cfg.Token,
		ping:   ping,
	}, nil
}

// State returns the current connection state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// QueueLen returns the number of frames waiting for a connection
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// LastPong returns when the server last answered a heartbeat
func (s *Session) LastPong() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPong
}

// SetToken replaces the credential used by the next attempt
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Connect starts connecting. It is a no-op while connecting or connected.
func (s *Session) Connect() {
	s.Trigger("connect")
}

// Trigger attempts a connection right away when disconnected, skipping any
// pending backoff wait. Use it for visibility and network-online signals.
func (s *Session) Trigger(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != Disconnected {
		return
	}
	s.logger.Debug().Str("reason", reason).Msg("Connection attempt triggered")
	s.attemptLocked()
}

// Send writes frame now when connected, otherwise queues it for the next
// connection. A write failure queues the frame and drops the connection.
func (s *Session) Send(frame protocol.Frame) error {
	data, err := frame.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.state != Connected || s.conn == nil {
		s.enqueueLocked(data)
		return nil
	}
	if err := s.conn.WriteMessage(data); err != nil {
		s.enqueueLocked(data)
		s.dropLocked(err)
	}
	return nil
}

// Close stops the session for good
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	if s.conn != nil {
		s.teardownLocked()
	}
	s.setStateLocked(Disconnected)
	return nil
}

func (s *Session) attemptLocked() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	s.setStateLocked(Connecting)

	target, err := s.urlLocked()
	if err != nil {
		s.logger.Error().Err(err).Msg("Cannot build push url")
		s.setStateLocked(Disconnected)
		return
	}
	go s.dial(target)
}

func (s *Session) dial(target string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)
	conn, err := s.cfg.Dialer.Dial(ctx, target)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Int("failures", s.failures+1).Msg("Push connection attempt failed")
		s.setStateLocked(Disconnected)
		s.scheduleRetryLocked()
		return
	}

	s.gen++
	s.conn = conn
	s.connDone = make(chan struct{})
	s.failures = 0
	s.setStateLocked(Connected)
	s.logger.Info().Int("queued", len(s.queue)).Msg("Push connection established")

	go s.readLoop(conn, s.gen)
	if s.cfg.HeartbeatInterval > 0 {
		go s.heartbeat(s.gen, s.connDone)
	}
	s.flushLocked()
}

// flushLocked drains the offline queue in order. A failed write puts the
// frame back at the head and drops the connection.
func (s *Session) flushLocked() {
	for len(s.queue) > 0 && s.conn != nil {
		next := s.queue[0]
		s.queue = s.queue[1:]
		if err := s.conn.WriteMessage(next); err != nil {
			s.queue = append([][]byte{next}, s.queue...)
			s.dropLocked(err)
			return
		}
	}
}

func (s *Session) readLoop(conn Conn, gen uint64) {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			s.connectionLost(gen, err)
			return
		}
		frame := protocol.Decode(msg)
		if frame.Type == protocol.TypePong {
			s.mu.Lock()
			s.lastPong = time.Now()
			s.mu.Unlock()
		}
		if s.cfg.OnFrame != nil {
			s.cfg.OnFrame(frame)
		}
	}
}

// heartbeat pings the server while the connection lasts. Missing pongs are
// recorded by LastPong but never close the connection.
func (s *Session) heartbeat(gen uint64, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			if s.gen != gen || s.conn == nil {
				s.mu.Unlock()
				return
			}
			if err := s.conn.WriteMessage(s.ping); err != nil {
				s.dropLocked(err)
			}
			s.mu.Unlock()
		case <-done:
			return
		}
	}
}

func (s *Session) connectionLost(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.conn == nil {
		return
	}
	s.dropLocked(err)
}

func (s *Session) dropLocked(err error) {
	s.teardownLocked()
	s.setStateLocked(Disconnected)
	if s.closed {
		return
	}
	if websocket.IsCloseError(err, protocol.CloseUnauthorized) {
		s.logger.Error().Msg("Push credential rejected, not reconnecting until triggered")
		return
	}
	s.logger.Warn().Err(err).Msg("Push connection lost")
	s.scheduleRetryLocked()
}

func (s *Session) teardownLocked() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.connDone != nil {
		close(s.connDone)
		s.connDone = nil
	}
}

func (s *Session) scheduleRetryLocked() {
	if s.retry != nil {
		return
	}
	delay := s.cfg.Backoff.Delay(s.failures)
	s.failures++
	s.logger.Debug().Dur("delay", delay).Msg("Push reconnect scheduled")
	s.retry = s.cfg.Scheduler.AfterFunc(delay, s.retryNow)
}

func (s *Session) retryNow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retry = nil
	if s.closed || s.state != Disconnected {
		return
	}
	s.attemptLocked()
}

func (s *Session) enqueueLocked(data []byte) {
	if len(s.queue) >= s.cfg.QueueLimit {
		s.logger.Warn().Int("limit", s.cfg.QueueLimit).Msg("Offline queue full, dropping oldest frame")
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, data)
}

func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(st)
	}
}

func (s *Session) urlLocked() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", err
	}
	if s.token != "" {
		q := u.Query()
		q.Set("token", s.token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
