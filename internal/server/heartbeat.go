package server

import (
	"time"

	"checkers_server/internal/logger"
	"checkers_server/internal/ops"
	"checkers_server/internal/protocol"
)

type sweepKind int

const (
	sweepPause sweepKind = iota
	sweepRemove
)

// runHeartbeat drives liveness until the server stops. Every tick runs one
// sweep over the session table and one over the paused rooms.
func (s *Server) runHeartbeat() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	logger.Info("heartbeat running", "interval", s.cfg.PingInterval.String(), "pong_timeout", s.cfg.PongTimeout.String(), "reconnect_window", s.cfg.LongDisconnect.String())
	for {
		select {
		case <-s.quit:
			logger.Info("heartbeat stopped")
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

// sweep runs one heartbeat pass. Decisions are made under the session
// registry read lock and each session's own lock; room work is recorded and
// executed only after both are released, so the sweep never holds the two
// registry locks at once.
func (s *Server) sweep(now time.Time) {
	type action struct {
		kind sweepKind
		sess *Session
		id   string
		room string
	}
	var actions []action

	s.sessions.mu.RLock()
	for _, sess := range s.sessions.slots {
		if sess == nil {
			continue
		}
		sess.mu.Lock()
		if !sess.active || !sess.loggedIn || sess.connState == ConnReconnecting || sess.connState == ConnRemoved {
			sess.mu.Unlock()
			continue
		}

		if sess.conn != nil && !sess.awaitingPong {
			sess.writeFrameLocked(protocol.OpPing, "")
			sess.awaitingPong = true
			ops.PingsSent.Inc()
		}

		if sess.awaitingPong && now.Sub(sess.lastPongAt) > s.cfg.PongTimeout {
			sess.awaitingPong = false
			sess.missedPongs++
			logger.Debug("pong missed", "client", sess.id, "missed", sess.missedPongs, "max", s.cfg.MaxMissedPongs)
			if sess.missedPongs >= s.cfg.MaxMissedPongs && sess.connState == ConnConnected {
				logger.Warn("client unresponsive, detaching socket", "client", sess.id, "missed", sess.missedPongs, "reconnect_window", s.cfg.LongDisconnect.String())
				sess.markDisconnectedLocked(now)
				if sess.room != "" {
					actions = append(actions, action{kind: sweepPause, sess: sess, id: sess.id, room: sess.room})
				}
			}
		}

		switch {
		case sess.connState == ConnDisconnected && now.Sub(sess.disconnectAt) > s.cfg.LongDisconnect:
			sess.connState = ConnTimeout
			actions = append(actions, action{kind: sweepRemove, sess: sess, id: sess.id, room: sess.room})
		case sess.connState == ConnTimeout:
			// Straggler from a skipped removal; try again.
			actions = append(actions, action{kind: sweepRemove, sess: sess, id: sess.id, room: sess.room})
		}
		sess.mu.Unlock()
	}
	s.sessions.mu.RUnlock()

	for _, a := range actions {
		switch a.kind {
		case sweepPause:
			s.pauseRoomOnDisconnect(a.room, a.id)
		case sweepRemove:
			s.finishOnTimeout(a.sess)
		}
	}

	s.sweepPausedRooms(now)
}

// sweepPausedRooms escalates rooms whose reconnect window ran out. The scan
// holds the room registry read lock only; escalation re-locks from scratch
// and re-validates, since the disconnected member may have come back in the
// meantime.
func (s *Server) sweepPausedRooms(now time.Time) {
	type expired struct {
		room   string
		player string
	}
	var hits []expired

	s.rooms.mu.RLock()
	for _, room := range s.rooms.slots {
		if room == nil {
			continue
		}
		if room.pauseExpired(now, s.cfg.LongDisconnect) {
			hits = append(hits, expired{room: room.Name, player: room.DisconnectedPlayer()})
		}
	}
	s.rooms.mu.RUnlock()

	for _, h := range hits {
		sess := s.sessions.FindByID(h.player)
		if sess == nil {
			// Member already removed; settle the room directly.
			s.forfeitRoom(h.room, h.player)
			continue
		}
		sess.mu.Lock()
		switch sess.connState {
		case ConnDisconnected:
			sess.connState = ConnTimeout
		case ConnTimeout:
		default:
			// Reconnected since the scan.
			sess.mu.Unlock()
			continue
		}
		sess.mu.Unlock()
		s.finishOnTimeout(sess)
	}
}
