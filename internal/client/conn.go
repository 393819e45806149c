package client

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Backoff schedule for reconnect attempts. Doubling from the base with a cap,
// equal jitter (half fixed, half uniform random). Attempts are unlimited
// while the session is open and not forbidden.
const (
	backoffBase = 1 * time.Second
	backoffCap  = 30 * time.Second

	writeTimeout = 10 * time.Second
)

// backoffEnvelope is the deterministic pre-jitter delay for attempt n (n>=1).
func backoffEnvelope(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}

// backoffDelay applies equal jitter: the result lies in [envelope/2, envelope].
func backoffDelay(attempt int, intn func(int64) int64) time.Duration {
	d := backoffEnvelope(attempt)
	half := d / 2
	return half + time.Duration(intn(int64(half)+1))
}

// Session owns a single bidirectional console channel and its connection
// state machine. It is created by a Registry on Open and destroyed on
// explicit Close or a terminal forbidden result.
type Session struct {
	target Target
	dialer *websocket.Dialer

	ctx    context.Context
	cancel context.CancelFunc
	onDone func()

	mu          sync.Mutex
	writeMu     sync.Mutex
	state       ConnectionState
	serverState ServerState
	retryCount  int
	lastErr     error
	conn        *websocket.Conn
	closed      bool
	subs        map[int]*transitionQueue
	nextSub     int

	lines chan []string
	rng   *rand.Rand
}

func newSession(target Target, onDone func()) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		target: target,
		dialer: websocket.DefaultDialer,
		ctx:    ctx,
		cancel: cancel,
		onDone: onDone,
		state:  StateConnecting,
		subs:   make(map[int]*transitionQueue),
		lines:  make(chan []string, 64),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// State returns the current connection state.
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ServerState returns the last game server state seen on the channel.
func (s *Session) ServerState() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverState
}

// RetryCount returns the number of consecutive failed connect attempts. It
// resets to zero on reaching connected.
func (s *Session) RetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryCount
}

// LastError returns the error behind the most recent disconnected or
// forbidden transition.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Status projects the session's connection and server state into a
// presentation-agnostic descriptor.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Project(s.state, s.serverState)
}

// Lines delivers console line batches: the backlog snapshot on attach, then
// live output. Batches may be dropped for a reader that does not keep up.
func (s *Session) Lines() <-chan []string {
	return s.lines
}

// Transitions subscribes to connection state changes. Every distinct state is
// delivered exactly once, in occurrence order; consecutive repeats of an
// identical state are deduplicated at the source. The current state is
// delivered first. Consume the channel until it closes, or call the cancel
// func; after the session ends, undelivered transitions are held for a few
// seconds and then dropped.
func (s *Session) Transitions() (<-chan ConnectionState, func()) {
	q := newTransitionQueue()

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = q
	q.push(s.state)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if cur, ok := s.subs[id]; ok && cur == q {
			delete(s.subs, id)
		}
		s.mu.Unlock()
		q.closeQueue(true)
	}
	return q.out, cancel
}

// setState transitions the state machine. Closed sessions emit nothing;
// consecutive identical states are not re-reported.
func (s *Session) setState(next ConnectionState, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state == next {
		return
	}
	s.state = next
	if cause != nil {
		s.lastErr = cause
	}
	for _, q := range s.subs {
		q.push(next)
	}
}

// SendCommand writes a console command over the channel.
func (s *Session) SendCommand(command string) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return &NetworkError{Err: errNotConnected}
	}

	payload, _ := json.Marshal(InputPayload{Command: command})
	msg, _ := json.Marshal(WSMessage{Type: MsgInput, Payload: payload})

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return &NetworkError{Err: err}
	}
	return nil
}

// Close destroys the session: any in-flight handshake or backoff timer is
// cancelled and no further transitions are emitted. Best-effort abort of the
// underlying transport; correctness does not depend on it.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		conn.Close()
	}
}

// run drives the connection state machine until the session is closed or a
// terminal forbidden result.
func (s *Session) run() {
	defer s.finish()

	attempt := 0
	for {
		if s.ctx.Err() != nil {
			return
		}
		s.setState(StateConnecting, nil)

		conn, resp, err := s.dial()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				s.setState(StateForbidden, &AuthorizationError{Status: resp.StatusCode})
				return
			}
			attempt++
			s.mu.Lock()
			s.retryCount = attempt
			s.mu.Unlock()
			s.setState(StateDisconnected, &NetworkError{Err: err})
			if !s.sleep(backoffDelay(attempt, s.rng.Int63n)) {
				return
			}
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.retryCount = 0
		attempt = 0
		s.mu.Unlock()
		s.setState(StateConnected, nil)

		readErr := s.readLoop(conn)

		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		conn.Close()

		if s.ctx.Err() != nil {
			return
		}
		if isAuthClose(readErr) {
			s.setState(StateForbidden, &AuthorizationError{Status: http.StatusForbidden})
			return
		}

		attempt++
		s.mu.Lock()
		s.retryCount = attempt
		s.mu.Unlock()
		s.setState(StateDisconnected, &NetworkError{Err: readErr})
		if !s.sleep(backoffDelay(attempt, s.rng.Int63n)) {
			return
		}
	}
}

func (s *Session) dial() (*websocket.Conn, *http.Response, error) {
	wsURL, err := consoleURL(s.target.BaseURL)
	if err != nil {
		return nil, nil, err
	}
	header := http.Header{}
	if s.target.Token != "" {
		header.Set("Authorization", "Bearer "+s.target.Token)
	}
	return s.dialer.DialContext(s.ctx, wsURL, header)
}

// readLoop consumes channel messages until the connection fails. Server
// state updates never alter the connection state; they are composed with it
// only at projection time.
func (s *Session) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case MsgSnapshot:
			var p SnapshotPayload
			if json.Unmarshal(msg.Payload, &p) != nil {
				continue
			}
			s.mu.Lock()
			s.serverState = p.State
			s.mu.Unlock()
			if len(p.Lines) > 0 {
				s.deliverLines(p.Lines)
			}
		case MsgConsole:
			var p ConsolePayload
			if json.Unmarshal(msg.Payload, &p) == nil && len(p.Lines) > 0 {
				s.deliverLines(p.Lines)
			}
		case MsgState:
			var p StatePayload
			if json.Unmarshal(msg.Payload, &p) == nil {
				s.mu.Lock()
				s.serverState = p.State
				s.mu.Unlock()
			}
		}
	}
}

func (s *Session) deliverLines(lines []string) {
	select {
	case s.lines <- lines:
	default:
	}
}

// sleep waits for the backoff delay. It returns false when the session was
// closed mid-backoff.
func (s *Session) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// finish tears the session down: subscribers are drained and released, the
// registry slot is freed.
func (s *Session) finish() {
	s.mu.Lock()
	s.closed = true
	subs := s.subs
	s.subs = make(map[int]*transitionQueue)
	s.mu.Unlock()

	for _, q := range subs {
		q.closeQueue(false)
	}
	close(s.lines)
	if s.onDone != nil {
		s.onDone()
	}
}

func isAuthClose(err error) bool {
	return websocket.IsCloseError(err, websocket.ClosePolicyViolation)
}

func consoleURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/console"
	return u.String(), nil
}
