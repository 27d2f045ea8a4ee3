package server

import (
	"time"

	"checkers_server/internal/logger"
	"checkers_server/internal/ops"
	"checkers_server/internal/protocol"
)

// handlePeerDrop runs when a logged-in session's socket dies under it. The
// session is preserved so the client can reattach within the reconnect
// window; an active game pauses instead of ending.
func (s *Server) handlePeerDrop(sess *Session) {
	sess.mu.Lock()
	sess.markDisconnectedLocked(time.Now())
	id := sess.id
	room := sess.room
	sess.mu.Unlock()

	logger.Info("client disconnected, session preserved", "client", id, "room", room, "reconnect_window", s.cfg.LongDisconnect.String())
	if room != "" {
		s.pauseRoomOnDisconnect(room, id)
	}
}

// pauseRoomOnDisconnect reacts to a member of roomName dropping. An active
// game pauses and the opponent learns about it; a waiting room just informs
// the other seat. Paused and finished rooms are left alone.
func (s *Server) pauseRoomOnDisconnect(roomName, who string) {
	s.rooms.mu.Lock()
	defer s.rooms.mu.Unlock()

	room := s.rooms.findLocked(roomName)
	if room == nil || !room.isMember(who) {
		return
	}
	other := room.opponentOf(who)

	switch room.State() {
	case RoomActive:
		if !room.Pause(who) {
			return
		}
		if other != "" {
			s.sendToPlayer(other, protocol.OpPlayerDisconnected, roomName+","+who)
			s.sendToPlayer(other, protocol.OpGamePaused, roomName)
		}
	case RoomWaiting:
		if other != "" {
			s.sendToPlayer(other, protocol.OpPlayerDisconnected, who)
		}
	}
}

// finishOnTimeout removes a session whose reconnect window ran out. The
// caller has already marked it ConnTimeout; anything else means the client
// came back and the removal is skipped.
func (s *Server) finishOnTimeout(sess *Session) {
	sess.mu.Lock()
	if sess.connState != ConnTimeout {
		sess.mu.Unlock()
		return
	}
	sess.connState = ConnRemoved
	sess.active = false
	id := sess.id
	room := sess.room
	sess.room = ""
	sess.mu.Unlock()

	if room != "" {
		s.forfeitRoom(room, id)
	}
	s.sessions.Remove(sess)
	logger.Info("session removed after long disconnect", "client", id, "room", room)
}

// forfeitRoom ends roomName because loser never came back. The surviving
// member wins by walkover, returns to the lobby and the room is destroyed.
func (s *Server) forfeitRoom(roomName, loser string) {
	s.rooms.mu.Lock()
	defer s.rooms.mu.Unlock()

	room := s.rooms.findLocked(roomName)
	if room == nil {
		return
	}
	winner := room.opponentOf(loser)
	room.Finish("opponent_timeout")

	if winner != "" {
		if wsess := s.sessions.FindByID(winner); wsess != nil {
			wsess.mu.Lock()
			wsess.room = ""
			wsess.setPhaseLocked(PhaseInLobby)
			wsess.writeFrameLocked(protocol.OpGameEnd, winner+",opponent_timeout")
			wsess.mu.Unlock()
		}
	}

	s.rooms.destroyLocked(room)
	ops.GamesFinished.WithLabelValues("opponent_timeout").Inc()
	logger.Info("game forfeited", "room", roomName, "winner", winner, "loser", loser)
}

// teardownMalicious closes a session that crossed the violation threshold.
// The courtesy Error frame goes out first; the session is then removed with
// explicit-leave semantics, so a room it occupied is destroyed rather than
// paused.
func (s *Server) teardownMalicious(sess *Session, reason protocol.Reason) {
	sess.mu.Lock()
	id := sess.id
	room := sess.room
	sess.room = ""
	sess.writeFrameLocked(protocol.OpError, reason.Message())
	if sess.conn != nil {
		_ = sess.conn.Close()
		sess.conn = nil
	}
	sess.active = false
	sess.connState = ConnRemoved
	sess.mu.Unlock()

	logger.Warn("client disconnected for protocol abuse", "client", id, "conn_id", sess.connID, "reason", reason.String(), "room", room)
	if room != "" {
		s.destroyRoomOnLeave(room, id)
	}
	s.sessions.Remove(sess)
}

// destroyRoomOnLeave implements the explicit-leave contract: whatever state
// the room is in, it is destroyed, and the other member, if any, is told
// who left and returned to the lobby. Only a member can take the room down.
func (s *Server) destroyRoomOnLeave(roomName, leaver string) {
	s.rooms.mu.Lock()
	defer s.rooms.mu.Unlock()

	room := s.rooms.findLocked(roomName)
	if room == nil || !room.isMember(leaver) {
		return
	}
	other := room.opponentOf(leaver)
	if other != "" {
		if osess := s.sessions.FindByID(other); osess != nil {
			osess.mu.Lock()
			osess.room = ""
			osess.setPhaseLocked(PhaseInLobby)
			osess.writeFrameLocked(protocol.OpRoomLeft, roomName+","+leaver)
			osess.mu.Unlock()
		}
	}
	s.rooms.destroyLocked(room)
	logger.Info("room destroyed on leave", "room", roomName, "leaver", leaver, "notified", other)
}

// sendToPlayer delivers one frame to a logged-in player by id, when a
// socket is attached. Callers may hold the room registry lock.
func (s *Server) sendToPlayer(id string, op protocol.Opcode, data string) {
	if sess := s.sessions.FindByID(id); sess != nil {
		sess.Send(op, data)
	}
}
