package server

import (
	"net"
	"sync"
	"time"

	"checkers_server/internal/logger"
	"checkers_server/internal/ops"
	"checkers_server/internal/protocol"
)

// writeWait bounds a single frame write so a stalled peer cannot wedge a
// broadcast running under a registry lock.
const writeWait = 10 * time.Second

// violationReset forgives protocol violations older than this window; the
// counters restart from zero at the next offense.
const violationReset = 60 * time.Second

// ConnState tracks transport liveness. It is orthogonal to Phase: a session
// keeps its Phase while Disconnected so a reconnect can resume where the
// client left off.
type ConnState int

const (
	ConnConnected ConnState = iota
	ConnDisconnected
	ConnReconnecting
	ConnTimeout
	ConnRemoved
)

func (s ConnState) String() string {
	switch s {
	case ConnConnected:
		return "CONNECTED"
	case ConnDisconnected:
		return "DISCONNECTED"
	case ConnReconnecting:
		return "RECONNECTING"
	case ConnTimeout:
		return "TIMEOUT"
	case ConnRemoved:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// violationLog accumulates protocol misbehavior for one session. Decode
// failures and whitelist rejections count toward the same disconnect
// threshold but are tracked separately for logging.
type violationLog struct {
	invalidMessages int
	unknownOps      int
	lastAt          time.Time
}

// Session is the server-side record of one logical client. It outlives its
// socket: a logged-in session that loses the connection is preserved in
// ConnDisconnected state until the reconnect window expires or the client
// reattaches through a ReconnectRequest.
//
// mu guards every mutable field. The identity fields id and loggedIn are
// additionally only written while the session registry lock is held, so
// registry scans may read them under the registry lock alone.
type Session struct {
	connID string

	mu sync.Mutex

	conn   net.Conn // nil while no socket is attached
	active bool

	id       string
	loggedIn bool
	room     string
	phase    Phase

	connState    ConnState
	lastPongAt   time.Time
	disconnectAt time.Time
	missedPongs  int
	awaitingPong bool

	violations violationLog
}

func newSession(conn net.Conn, connID string) *Session {
	return &Session{
		connID:     connID,
		conn:       conn,
		active:     true,
		phase:      PhaseNotLoggedIn,
		connState:  ConnConnected,
		lastPongAt: time.Now(),
	}
}

// Send writes one frame to the session's socket. Write failures are logged
// and swallowed; the read side notices a dead peer soon enough.
func (s *Session) Send(op protocol.Opcode, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeFrameLocked(op, data)
}

// writeFrameLocked requires s.mu held. Frames to a detached or removed
// session are dropped silently.
func (s *Session) writeFrameLocked(op protocol.Opcode, data string) {
	if s.conn == nil || s.connState == ConnRemoved {
		logger.Debug("frame dropped, no socket", "conn_id", s.connID, "client", s.id, "op", op.String())
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if _, err := s.conn.Write(protocol.Encode(op, data)); err != nil {
		logger.Debug("frame write failed", "conn_id", s.connID, "client", s.id, "op", op.String(), "err", err)
		return
	}
	ops.FramesSent.Inc()
}

// UpdatePong records a PONG arrival and resets the miss accounting. A
// session observed alive while marked Disconnected is promoted back to
// Connected, but only if a socket is actually attached.
func (s *Session) UpdatePong() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPongAt = time.Now()
	s.missedPongs = 0
	s.awaitingPong = false
	if s.conn != nil && (s.connState == ConnDisconnected || s.connState == ConnReconnecting) {
		s.connState = ConnConnected
		logger.Info("session revived by pong", "client", s.id, "conn_id", s.connID)
	}
}

// markDisconnectedLocked moves a connected session into the reconnect grace
// window and detaches its socket. Requires s.mu held.
func (s *Session) markDisconnectedLocked(now time.Time) {
	if s.connState == ConnConnected {
		s.connState = ConnDisconnected
		s.disconnectAt = now
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// setPhaseLocked transitions the session's lifecycle phase. Requires s.mu
// held.
func (s *Session) setPhaseLocked(to Phase) {
	if s.phase == to {
		return
	}
	logger.Debug("session phase change", "client", s.id, "from", s.phase.String(), "to", to.String())
	s.phase = to
}

// recordInvalidMessage counts one decode failure against the session and
// reports whether the disconnect threshold was crossed, together with the
// reason the courtesy Error frame should carry and the running count.
func (s *Session) recordInvalidMessage(r protocol.Reason, max int) (protocol.Reason, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decayViolationsLocked(time.Now())
	s.violations.invalidMessages++
	n := s.violations.invalidMessages
	if n < max {
		return r, n, false
	}
	// When the threshold admits warnings, the final strike reports the
	// accumulated misbehavior rather than the last parse error.
	if max > 1 {
		return protocol.ReasonTooManyViolations, n, true
	}
	return r, n, true
}

// recordUnknownOp counts one whitelist rejection and reports whether the
// session crossed the disconnect threshold.
func (s *Session) recordUnknownOp(max int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decayViolationsLocked(time.Now())
	s.violations.unknownOps++
	return s.violations.unknownOps, s.violations.unknownOps >= max
}

// decayViolationsLocked zeroes the counters when the last offense is older
// than violationReset, then stamps the current one. Requires s.mu held.
func (s *Session) decayViolationsLocked(now time.Time) {
	if !s.violations.lastAt.IsZero() && now.Sub(s.violations.lastAt) > violationReset {
		s.violations.invalidMessages = 0
		s.violations.unknownOps = 0
	}
	s.violations.lastAt = now
}

// Snapshot accessors. Handlers prefer these over raw field reads so the
// locking stays in one place.

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) ConnState() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}
