package server

import (
	"fmt"
	"log/slog"
	"net"

	"checkers_server/internal/logger"
	"checkers_server/internal/ops"
	"checkers_server/internal/protocol"
)

// handleConn services one accepted socket for its whole life. The goroutine
// owns the read side; writes go through the owning session under its lock.
//
// The session is re-located by socket identity on every iteration: a
// ReconnectRequest hands this socket over to a preserved session, after
// which frames read here must dispatch against that session instead. When
// the lookup fails the socket belongs to nobody anymore and the goroutine
// exits without closing it.
func (s *Server) handleConn(conn net.Conn, connID string) {
	log := logger.With("conn_id", connID, "remote", conn.RemoteAddr().String())

	var asm protocol.Assembler
	buf := make([]byte, protocol.BufferSize)

	for s.running.Load() {
		sess := s.sessions.FindByConn(conn)
		if sess == nil {
			log.Debug("socket no longer bound to a session, reader exiting")
			return
		}

		n, err := conn.Read(buf)
		if err != nil {
			s.handleReadError(conn, log)
			return
		}

		lines, err := asm.Push(buf[:n])
		if err != nil {
			// Assembly overflow is unrecoverable for this connection.
			reason := protocol.ReasonOf(err)
			ops.ProtocolViolations.WithLabelValues(reason.String()).Inc()
			log.Warn("assembly buffer overflow", "pending", asm.Pending())
			s.teardownMalicious(sess, reason)
			return
		}

		for _, line := range lines {
			if !s.handleLine(sess, line, log) {
				return
			}
		}
	}
}

// handleLine decodes and dispatches one framed line. It returns false when
// the session was torn down and the reader must exit.
func (s *Server) handleLine(sess *Session, line string, log *slog.Logger) bool {
	frame, err := protocol.Decode(line)
	if err != nil {
		reason := protocol.ReasonOf(err)
		ops.ProtocolViolations.WithLabelValues(reason.String()).Inc()
		sendReason, n, drop := sess.recordInvalidMessage(reason, s.cfg.MaxViolations)
		log.Warn("frame rejected", "reason", reason.String(), "violations", n, "max", s.cfg.MaxViolations)
		if drop {
			s.teardownMalicious(sess, sendReason)
			return false
		}
		sess.Send(protocol.OpError, fmt.Sprintf("%s. Warning %d/%d", reason.Message(), n, s.cfg.MaxViolations))
		return true
	}

	ops.FramesReceived.Inc()
	log.Debug("frame received", "op", frame.Op.String(), "len", len(frame.Data))

	phase := sess.Phase()
	if !OpAllowed(phase, frame.Op) {
		ops.ProtocolViolations.WithLabelValues(protocol.ReasonSuspiciousActivity.String()).Inc()
		n, drop := sess.recordUnknownOp(s.cfg.MaxViolations)
		log.Warn("opcode not allowed in phase", "op", frame.Op.String(), "phase", phase.String(), "allowed", opList(AllowedOps(phase)), "violations", n)
		if drop {
			s.teardownMalicious(sess, protocol.ReasonSuspiciousActivity)
			return false
		}
		sess.Send(protocol.OpError, fmt.Sprintf("Operation %s not allowed in state %s. Warning %d/%d", frame.Op.String(), phase.String(), n, s.cfg.MaxViolations))
		return true
	}

	s.dispatch(sess, frame)
	return true
}

// dispatch routes one accepted frame to its opcode handler. The whitelist
// has already vetted the opcode against the session phase.
func (s *Server) dispatch(sess *Session, frame protocol.Frame) {
	switch frame.Op {
	case protocol.OpLogin:
		s.handleLogin(sess, frame.Data)
	case protocol.OpCreateRoom:
		s.handleCreateRoom(sess, frame.Data)
	case protocol.OpJoinRoom:
		s.handleJoinRoom(sess, frame.Data)
	case protocol.OpMove:
		s.handleMove(sess, frame.Data)
	case protocol.OpMultiMove:
		s.handleMultiMove(sess, frame.Data)
	case protocol.OpLeaveRoom:
		s.handleLeaveRoom(sess, frame.Data)
	case protocol.OpListRooms:
		s.handleListRooms(sess)
	case protocol.OpPing:
		sess.Send(protocol.OpPong, "")
	case protocol.OpPong:
		sess.UpdatePong()
	case protocol.OpReconnectRequest:
		s.handleReconnectRequest(sess, frame.Data)
	case protocol.OpError:
		logger.Warn("client reported error", "client", sess.ID(), "data", frame.Data)
	}
}

// handleReadError decides what a dead read means. The socket may have been
// handed to a preserved session or detached by the heartbeat already, in
// which case it is not ours to clean up.
func (s *Server) handleReadError(conn net.Conn, log *slog.Logger) {
	sess := s.sessions.FindByConn(conn)
	if sess == nil {
		log.Debug("socket detached elsewhere, reader exiting")
		return
	}
	if sess.LoggedIn() {
		s.handlePeerDrop(sess)
		return
	}
	// Anonymous sessions have nothing to preserve.
	sess.mu.Lock()
	sess.active = false
	sess.connState = ConnRemoved
	if sess.conn != nil {
		_ = sess.conn.Close()
		sess.conn = nil
	}
	sess.mu.Unlock()
	s.sessions.Remove(sess)
	log.Debug("anonymous connection closed, slot reclaimed")
}

// opList renders an opcode set for log output.
func opList(set []protocol.Opcode) string {
	out := ""
	for i, op := range set {
		if i > 0 {
			out += ","
		}
		out += op.String()
	}
	return out
}
