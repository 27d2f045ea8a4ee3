package server

import (
	"strconv"
	"strings"
	"time"

	"checkers_server/internal/logger"
	"checkers_server/internal/ops"
	"checkers_server/internal/protocol"
)

// handleReconnectRequest reattaches a fresh socket to a preserved session.
// The requester is the anonymous session that accepted the new connection;
// on success its socket migrates to the preserved session and the requester
// slot is discarded. The requester's read goroutine keeps running: it
// re-locates the socket and finds it bound to the preserved session.
//
// Payload is "room,player" for a session that was seated, or just "player"
// for a lobby reconnect.
func (s *Server) handleReconnectRequest(requester *Session, data string) {
	var roomName, player string
	switch parts := strings.Split(data, ","); len(parts) {
	case 1:
		player = parts[0]
	case 2:
		roomName, player = parts[0], parts[1]
	}
	if player == "" {
		s.failReconnect(requester, "Invalid format")
		return
	}

	if requester.LoggedIn() {
		s.failReconnect(requester, "Already logged in")
		return
	}

	target := s.sessions.FindByID(player)
	if target == nil || target == requester {
		s.failReconnect(requester, "Client not found")
		return
	}

	// Reserve the preserved session. Reconnecting blocks the heartbeat
	// sweep and any competing reconnect until the hand-over settles.
	target.mu.Lock()
	prevState := target.connState
	switch prevState {
	case ConnDisconnected, ConnTimeout:
		target.connState = ConnReconnecting
	default:
		target.mu.Unlock()
		s.failReconnect(requester, "Client is not disconnected")
		return
	}
	needsRoom := target.phase == PhaseInRoomWaiting || target.phase == PhaseInGame
	target.mu.Unlock()

	if needsRoom && roomName == "" {
		target.mu.Lock()
		target.connState = prevState
		target.mu.Unlock()
		s.failReconnect(requester, "Invalid format")
		return
	}

	// Detach the socket from the requester. Session locks are leaves, so
	// the swap runs as two separate critical sections; between them the
	// socket is bound to nobody, which only this goroutine can observe.
	requester.mu.Lock()
	conn := requester.conn
	requester.conn = nil
	requester.active = false
	requester.connState = ConnRemoved
	requester.mu.Unlock()

	if conn == nil {
		target.mu.Lock()
		target.connState = prevState
		target.mu.Unlock()
		s.sessions.Remove(requester)
		logger.Warn("reconnect aborted, requester socket already gone", "client", player)
		return
	}

	target.mu.Lock()
	if target.conn != nil {
		_ = target.conn.Close()
	}
	target.conn = conn
	target.active = true
	target.missedPongs = 0
	target.awaitingPong = false
	target.disconnectAt = time.Time{}
	target.lastPongAt = time.Now()
	target.connState = ConnConnected
	phase := target.phase
	target.mu.Unlock()

	s.sessions.Remove(requester)
	logger.Info("socket handed over to preserved session", "client", player, "phase", phase.String(), "was", prevState.String())

	switch phase {
	case PhaseInRoomWaiting:
		s.replayWaiting(target, player, roomName)
	case PhaseInGame:
		s.replayGame(target, player, roomName)
	default:
		target.Send(protocol.OpReconnectOk, "lobby")
		target.Send(protocol.OpLoginOk, player)
		ops.Reconnects.WithLabelValues("lobby").Inc()
	}
}

// replayWaiting restores a client that was alone in its room. When the room
// did not survive the disconnect, the session falls back to the lobby.
func (s *Server) replayWaiting(target *Session, player, roomName string) {
	s.rooms.mu.RLock()
	room := s.rooms.findLocked(roomName)
	count := 0
	member := false
	if room != nil {
		count = room.playersCount
		member = room.isMember(player)
	}
	s.rooms.mu.RUnlock()

	if room == nil || !member {
		s.demoteToLobby(target, player)
		return
	}
	target.Send(protocol.OpReconnectOk, roomName)
	target.Send(protocol.OpRoomJoined, roomName+","+strconv.Itoa(count))
	ops.Reconnects.WithLabelValues("waiting").Inc()
}

// replayGame restores a client into its game. A paused room resumes and the
// opponent is told; a still-active room (the heartbeat never noticed the
// drop) just gets the client a fresh board.
func (s *Server) replayGame(target *Session, player, roomName string) {
	s.rooms.mu.Lock()
	defer s.rooms.mu.Unlock()

	room := s.rooms.findLocked(roomName)
	if room == nil {
		s.demoteToLobby(target, player)
		return
	}
	if !room.isMember(player) {
		target.Send(protocol.OpReconnectFail, "Not a member")
		ops.Reconnects.WithLabelValues("fail").Inc()
		return
	}

	switch room.State() {
	case RoomPaused:
		room.Resume()
		target.Send(protocol.OpReconnectOk, roomName)
		target.Send(protocol.OpGameResumed, roomName)
		s.sendStateTo(target, room)
		if other := room.opponentOf(player); other != "" {
			s.sendToPlayer(other, protocol.OpPlayerReconnected, roomName+","+player)
			s.sendToPlayer(other, protocol.OpGameResumed, roomName)
		}
		ops.Reconnects.WithLabelValues("resumed").Inc()
		logger.Info("player reconnected into paused game", "room", roomName, "player", player)
	case RoomActive:
		target.Send(protocol.OpReconnectOk, roomName)
		s.sendStateTo(target, room)
		ops.Reconnects.WithLabelValues("active").Inc()
		logger.Info("player reconnected into running game", "room", roomName, "player", player)
	default:
		// Waiting or already finished; nothing to resume.
		s.demoteToLobby(target, player)
	}
}

// demoteToLobby settles a reconnected session whose room did not survive.
// The client is told the room is gone but stays logged in.
func (s *Server) demoteToLobby(target *Session, player string) {
	target.mu.Lock()
	target.room = ""
	target.setPhaseLocked(PhaseInLobby)
	target.writeFrameLocked(protocol.OpReconnectFail, "Room was closed")
	target.writeFrameLocked(protocol.OpLoginOk, player)
	target.mu.Unlock()
	ops.Reconnects.WithLabelValues("room_closed").Inc()
	logger.Info("reconnect fell back to lobby", "client", player)
}

// sendStateTo delivers the current board to one member. Requires the room
// registry lock.
func (s *Server) sendStateTo(target *Session, room *Room) {
	if room.game == nil {
		return
	}
	payload, err := room.game.WireJSON()
	if err != nil {
		logger.Error("game state marshal failed", "room", room.Name, "err", err)
		return
	}
	target.Send(protocol.OpGameState, payload)
}

// failReconnect answers a reconnect that never got to a hand-over.
func (s *Server) failReconnect(requester *Session, why string) {
	requester.Send(protocol.OpReconnectFail, why)
	ops.Reconnects.WithLabelValues("fail").Inc()
	logger.Warn("reconnect refused", "conn_id", requester.connID, "why", why)
}
