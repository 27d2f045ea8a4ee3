package server

import "checkers_server/internal/protocol"

// Phase is a session's position in the game lifecycle. It decides which
// inbound opcodes the dispatcher will accept.
type Phase int

const (
	PhaseNotLoggedIn Phase = iota
	PhaseInLobby
	PhaseInRoomWaiting
	PhaseInGame
)

func (p Phase) String() string {
	switch p {
	case PhaseNotLoggedIn:
		return "NOT_LOGGED_IN"
	case PhaseInLobby:
		return "IN_LOBBY"
	case PhaseInRoomWaiting:
		return "IN_ROOM_WAITING"
	case PhaseInGame:
		return "IN_GAME"
	default:
		return "UNKNOWN"
	}
}

// allowedOps is the per-phase whitelist. Ping, Pong, ReconnectRequest and
// Error pass in every phase so liveness and recovery are never blocked by
// game flow. JoinRoom stays listed for InRoomWaiting; rejoining your own
// room is answered with "You are already in this room" by the handler.
var allowedOps = map[Phase][]protocol.Opcode{
	PhaseNotLoggedIn: {
		protocol.OpLogin,
		protocol.OpPing,
		protocol.OpPong,
		protocol.OpReconnectRequest,
		protocol.OpError,
	},
	PhaseInLobby: {
		protocol.OpCreateRoom,
		protocol.OpJoinRoom,
		protocol.OpListRooms,
		protocol.OpPing,
		protocol.OpPong,
		protocol.OpReconnectRequest,
		protocol.OpError,
	},
	PhaseInRoomWaiting: {
		protocol.OpLeaveRoom,
		protocol.OpJoinRoom,
		protocol.OpListRooms,
		protocol.OpPing,
		protocol.OpPong,
		protocol.OpReconnectRequest,
		protocol.OpError,
	},
	PhaseInGame: {
		protocol.OpMove,
		protocol.OpMultiMove,
		protocol.OpLeaveRoom,
		protocol.OpListRooms,
		protocol.OpPing,
		protocol.OpPong,
		protocol.OpReconnectRequest,
		protocol.OpError,
	},
}

// AllowedOps returns the opcodes a session in phase p may send.
func AllowedOps(p Phase) []protocol.Opcode {
	return allowedOps[p]
}

// OpAllowed reports whether op is acceptable in phase p.
func OpAllowed(p Phase, op protocol.Opcode) bool {
	for _, allowed := range allowedOps[p] {
		if allowed == op {
			return true
		}
	}
	return false
}
