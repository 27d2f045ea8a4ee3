package server

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"checkers_server/internal/game"
	"checkers_server/internal/logger"
	"checkers_server/internal/ops"
	"checkers_server/internal/protocol"
)

// maxChainPositions bounds a MultiMove path.
const maxChainPositions = 20

// handleLogin claims a client id for an anonymous session. The id must be
// unique across every live session, including ones parked in the reconnect
// window, so a crashed client cannot be impersonated while its session
// still holds game state.
func (s *Server) handleLogin(sess *Session, data string) {
	id := data
	if i := strings.IndexAny(id, "\r\n"); i >= 0 {
		id = id[:i]
	}
	if id == "" {
		sess.Send(protocol.OpLoginFail, "Name cannot be empty")
		return
	}

	s.sessions.mu.Lock()
	if s.sessions.idTakenLocked(id) {
		s.sessions.mu.Unlock()
		sess.Send(protocol.OpLoginFail, "Client ID already in use")
		return
	}
	sess.mu.Lock()
	sess.id = id
	sess.loggedIn = true
	sess.setPhaseLocked(PhaseInLobby)
	sess.mu.Unlock()
	s.sessions.mu.Unlock()

	sess.Send(protocol.OpLoginOk, id)
	logger.Info("client logged in", "client", id, "conn_id", sess.connID)
}

// handleCreateRoom allocates an empty room. Creation does not seat the
// creator; the client follows up with JoinRoom like everyone else.
func (s *Server) handleCreateRoom(sess *Session, data string) {
	player, roomName, ok := splitPair(data)
	if !ok {
		sess.Send(protocol.OpRoomFail, "Invalid format")
		return
	}

	s.rooms.mu.Lock()
	_, created := s.rooms.createLocked(roomName, player)
	s.rooms.mu.Unlock()

	if !created {
		sess.Send(protocol.OpRoomFail, "Room already exists or server full")
		return
	}
	sess.Send(protocol.OpRoomCreated, roomName)
	logger.Info("room created", "room", roomName, "owner", player)
}

// handleJoinRoom seats a player. The capacity and membership checks run
// first without the write lock; the seat itself re-validates under it,
// since the room may have filled or vanished in between. When the second
// seat fills, the game starts and both members move to the in-game phase
// before the start frames go out.
func (s *Server) handleJoinRoom(sess *Session, data string) {
	player, roomName, ok := splitPair(data)
	if !ok {
		sess.Send(protocol.OpRoomFail, "Invalid format")
		return
	}

	code := s.checkJoin(roomName, player)
	if code == joinOk {
		code = s.checkMembership(player)
	}
	if code != joinOk {
		sess.Send(protocol.OpRoomFail, joinFailText(code))
		return
	}

	s.rooms.mu.Lock()
	defer s.rooms.mu.Unlock()

	room := s.rooms.findLocked(roomName)
	if room == nil {
		sess.Send(protocol.OpRoomFail, joinFailText(joinRoomNotFound))
		return
	}
	if room.playersCount >= 2 {
		sess.Send(protocol.OpRoomFail, joinFailText(joinRoomFull))
		return
	}
	target := s.sessions.FindByID(player)
	if target == nil {
		sess.Send(protocol.OpRoomFail, joinFailText(joinClientNotFound))
		return
	}

	count := room.seat(player)
	target.mu.Lock()
	target.room = roomName
	if count < 2 {
		target.setPhaseLocked(PhaseInRoomWaiting)
	}
	target.mu.Unlock()

	started := false
	if count == 2 && !room.gameStarted {
		room.game = game.New(room.player1, room.player2)
		room.gameStarted = true
		room.setState(RoomActive)
		started = true
		for _, name := range room.members() {
			if m := s.sessions.FindByID(name); m != nil {
				m.mu.Lock()
				m.setPhaseLocked(PhaseInGame)
				m.mu.Unlock()
			}
		}
	}

	// The join acknowledgment always precedes the start frames.
	sess.Send(protocol.OpRoomJoined, fmt.Sprintf("%s,%d", roomName, count))
	logger.Info("player joined room", "room", roomName, "player", player, "players", count)

	if started {
		s.broadcastLocked(room, protocol.OpGameStart, fmt.Sprintf("%s,%s,%s,%s", roomName, room.player1, room.player2, room.game.CurrentTurn))
		s.broadcastStateLocked(room)
		logger.Info("game started", "room", roomName, "player1", room.player1, "player2", room.player2, "turn", room.game.CurrentTurn)
	}
}

// checkJoin validates the room side of a join under the read lock:
// existence, capacity and double-join.
func (s *Server) checkJoin(roomName, player string) int {
	s.rooms.mu.RLock()
	defer s.rooms.mu.RUnlock()
	room := s.rooms.findLocked(roomName)
	if room == nil {
		return joinRoomNotFound
	}
	if room.isMember(player) {
		return joinAlreadyInThisRoom
	}
	if room.playersCount >= 2 {
		return joinRoomFull
	}
	return joinOk
}

// checkMembership validates the player side of a join: the player must be
// logged in and not seated anywhere else.
func (s *Server) checkMembership(player string) int {
	target := s.sessions.FindByID(player)
	if target == nil {
		return joinClientNotFound
	}
	if target.Room() != "" {
		return joinAlreadyInOtherRoom
	}
	return joinOk
}

type moveRequest struct {
	room    string
	player  string
	fromRow int
	fromCol int
	toRow   int
	toCol   int
}

func parseMove(data string) (moveRequest, bool) {
	parts := strings.Split(data, ",")
	if len(parts) != 6 || parts[0] == "" || parts[1] == "" {
		return moveRequest{}, false
	}
	coords := make([]int, 4)
	for i, raw := range parts[2:] {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return moveRequest{}, false
		}
		coords[i] = n
	}
	return moveRequest{
		room:    parts[0],
		player:  parts[1],
		fromRow: coords[0],
		fromCol: coords[1],
		toRow:   coords[2],
		toCol:   coords[3],
	}, true
}

// handleMove validates and applies a single step. The room registry lock is
// held across validate, apply and broadcast so every member sees GameState
// frames in board order.
func (s *Server) handleMove(sess *Session, data string) {
	req, ok := parseMove(data)
	if !ok {
		sess.Send(protocol.OpInvalidMove, "Invalid move format")
		return
	}
	if req.player != sess.ID() {
		sess.Send(protocol.OpInvalidMove, "Invalid move")
		return
	}

	s.rooms.mu.Lock()
	defer s.rooms.mu.Unlock()

	room := s.rooms.findLocked(req.room)
	if room == nil || !room.gameStarted || room.game == nil {
		sess.Send(protocol.OpError, "Game not found")
		return
	}
	if !room.game.ValidateMove(req.player, req.fromRow, req.fromCol, req.toRow, req.toCol) {
		sess.Send(protocol.OpInvalidMove, "Invalid move")
		return
	}

	room.game.ApplyMove(req.fromRow, req.fromCol, req.toRow, req.toCol)
	room.game.ChangeTurn()
	if logger.DebugEnabled() {
		logger.Debug("move applied", "room", req.room, "player", req.player, "board", "\n"+room.game.BoardString())
	}

	s.broadcastStateLocked(room)
	s.endGameIfWonLocked(room)
}

// handleMultiMove applies a capture chain atomically: either every step is
// legal and the whole chain lands as one turn, or the board rolls back to
// the pre-chain position and the mover is told off.
func (s *Server) handleMultiMove(sess *Session, data string) {
	roomName, player, path, ok := parseMultiMove(data)
	if !ok {
		sess.Send(protocol.OpInvalidMove, "Invalid multi-move format")
		return
	}
	if player != sess.ID() {
		sess.Send(protocol.OpInvalidMove, "Invalid move")
		return
	}

	s.rooms.mu.Lock()
	defer s.rooms.mu.Unlock()

	room := s.rooms.findLocked(roomName)
	if room == nil || !room.gameStarted || room.game == nil {
		sess.Send(protocol.OpError, "Game not found")
		return
	}

	// Board is an array value, so one assignment snapshots the position.
	saved := room.game.Board
	for i := 0; i+1 < len(path); i++ {
		from, to := path[i], path[i+1]
		if !room.game.ValidateMove(player, from[0], from[1], to[0], to[1]) {
			room.game.Board = saved
			sess.Send(protocol.OpInvalidMove, "Invalid move in chain")
			return
		}
		room.game.ApplyMove(from[0], from[1], to[0], to[1])
	}
	room.game.ChangeTurn()
	logger.Debug("multi-move applied", "room", roomName, "player", player, "steps", len(path)-1)

	s.broadcastStateLocked(room)
	s.endGameIfWonLocked(room)
}

// parseMultiMove unpacks "room,player,k,r1,c1,...,rk,ck" into a position
// path. k counts positions, so a chain makes k-1 steps.
func parseMultiMove(data string) (string, string, [][2]int, bool) {
	parts := strings.Split(data, ",")
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" {
		return "", "", nil, false
	}
	k, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil || k < 2 || k > maxChainPositions {
		return "", "", nil, false
	}
	if len(parts) != 3+2*k {
		return "", "", nil, false
	}
	path := make([][2]int, k)
	for i := 0; i < k; i++ {
		row, err1 := strconv.Atoi(strings.TrimSpace(parts[3+2*i]))
		col, err2 := strconv.Atoi(strings.TrimSpace(parts[4+2*i]))
		if err1 != nil || err2 != nil {
			return "", "", nil, false
		}
		path[i] = [2]int{row, col}
	}
	return parts[0], parts[1], path, true
}

// handleLeaveRoom destroys the leaver's room and reports who left to the
// member staying behind. The leaver gets RoomLeft even when the room is
// already gone, so client state always settles back to the lobby.
func (s *Server) handleLeaveRoom(sess *Session, data string) {
	roomName, player, ok := splitPair(data)
	if !ok {
		sess.Send(protocol.OpError, "Invalid format")
		return
	}

	s.destroyRoomOnLeave(roomName, player)

	sess.mu.Lock()
	sess.room = ""
	sess.setPhaseLocked(PhaseInLobby)
	sess.writeFrameLocked(protocol.OpRoomLeft, roomName)
	sess.mu.Unlock()
	logger.Info("player left room", "room", roomName, "player", player)
}

type roomEntry struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Players int    `json:"players"`
}

// handleListRooms replies with the whole room table as JSON. The slot index
// doubles as the room id; an empty table serializes as [] rather than null.
func (s *Server) handleListRooms(sess *Session) {
	s.rooms.mu.RLock()
	entries := make([]roomEntry, 0, s.rooms.count)
	for i, room := range s.rooms.slots {
		if room == nil {
			continue
		}
		entries = append(entries, roomEntry{ID: i, Name: room.Name, Players: room.playersCount})
	}
	s.rooms.mu.RUnlock()

	payload, err := json.Marshal(entries)
	if err != nil {
		logger.Error("room list marshal failed", "err", err)
		sess.Send(protocol.OpError, "Internal error")
		return
	}
	sess.Send(protocol.OpRoomsList, string(payload))
}

// broadcastLocked sends one frame to every member of room. Requires the
// room registry lock.
func (s *Server) broadcastLocked(room *Room, op protocol.Opcode, data string) {
	for _, name := range room.members() {
		if member := s.sessions.FindByID(name); member != nil {
			member.Send(op, data)
		}
	}
}

// broadcastStateLocked serializes the board and fans it out to the room.
// Requires the room registry lock.
func (s *Server) broadcastStateLocked(room *Room) {
	payload, err := room.game.WireJSON()
	if err != nil {
		logger.Error("game state marshal failed", "room", room.Name, "err", err)
		return
	}
	s.broadcastLocked(room, protocol.OpGameState, payload)
}

// endGameIfWonLocked finishes the game once a side has no pieces left: both
// members get GameEnd, return to the lobby and the room is destroyed.
// Requires the room registry lock.
func (s *Server) endGameIfWonLocked(room *Room) {
	winner, over := room.game.Winner()
	if !over {
		return
	}
	room.Finish("no_pieces")
	s.broadcastLocked(room, protocol.OpGameEnd, winner+",no_pieces")
	ops.GamesFinished.WithLabelValues("no_pieces").Inc()
	logger.Info("game won", "room", room.Name, "winner", winner)
	s.cleanupFinishedGameLocked(room)
}

// cleanupFinishedGameLocked returns both members to the lobby and frees the
// room slot. Requires the room registry lock.
func (s *Server) cleanupFinishedGameLocked(room *Room) {
	for _, name := range room.members() {
		member := s.sessions.FindByID(name)
		if member == nil {
			continue
		}
		member.mu.Lock()
		member.room = ""
		member.setPhaseLocked(PhaseInLobby)
		member.writeFrameLocked(protocol.OpRoomLeft, room.Name)
		member.mu.Unlock()
	}
	s.rooms.destroyLocked(room)
	logger.Info("room cleaned up", "room", room.Name)
}

// splitPair splits "a,b" requiring exactly two non-empty fields.
func splitPair(data string) (string, string, bool) {
	parts := strings.SplitN(data, ",", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	a, b := parts[0], parts[1]
	if a == "" || b == "" || strings.Contains(b, ",") {
		return "", "", false
	}
	return a, b, true
}
