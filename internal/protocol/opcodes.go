package protocol

import "fmt"

// Opcode identifies a frame type on the wire. The set is closed; anything
// else is a protocol violation.
type Opcode int

const (
	// auth
	OpLogin     Opcode = 1
	OpLoginOk   Opcode = 2
	OpLoginFail Opcode = 3

	// rooms
	OpCreateRoom  Opcode = 4
	OpJoinRoom    Opcode = 5
	OpRoomJoined  Opcode = 6
	OpRoomFull    Opcode = 7
	OpRoomFail    Opcode = 8
	OpLeaveRoom   Opcode = 14
	OpRoomLeft    Opcode = 15
	OpListRooms   Opcode = 18
	OpRoomsList   Opcode = 19
	OpRoomCreated Opcode = 20

	// game
	OpGameStart   Opcode = 9
	OpMove        Opcode = 10
	OpInvalidMove Opcode = 11
	OpGameState   Opcode = 12
	OpGameEnd     Opcode = 13
	OpMultiMove   Opcode = 21
	OpGamePaused  Opcode = 28
	OpGameResumed Opcode = 29

	// liveness
	OpPing Opcode = 16
	OpPong Opcode = 17

	// reconnect
	OpPlayerDisconnected Opcode = 22
	OpPlayerReconnecting Opcode = 23
	OpPlayerReconnected  Opcode = 24
	OpReconnectRequest   Opcode = 25
	OpReconnectOk        Opcode = 26
	OpReconnectFail      Opcode = 27

	// errors
	OpError Opcode = 500
)

var opcodeNames = map[Opcode]string{
	OpLogin:              "Login",
	OpLoginOk:            "LoginOk",
	OpLoginFail:          "LoginFail",
	OpCreateRoom:         "CreateRoom",
	OpJoinRoom:           "JoinRoom",
	OpRoomJoined:         "RoomJoined",
	OpRoomFull:           "RoomFull",
	OpRoomFail:           "RoomFail",
	OpGameStart:          "GameStart",
	OpMove:               "Move",
	OpInvalidMove:        "InvalidMove",
	OpGameState:          "GameState",
	OpGameEnd:            "GameEnd",
	OpLeaveRoom:          "LeaveRoom",
	OpRoomLeft:           "RoomLeft",
	OpPing:               "Ping",
	OpPong:               "Pong",
	OpListRooms:          "ListRooms",
	OpRoomsList:          "RoomsList",
	OpRoomCreated:        "RoomCreated",
	OpMultiMove:          "MultiMove",
	OpPlayerDisconnected: "PlayerDisconnected",
	OpPlayerReconnecting: "PlayerReconnecting",
	OpPlayerReconnected:  "PlayerReconnected",
	OpReconnectRequest:   "ReconnectRequest",
	OpReconnectOk:        "ReconnectOk",
	OpReconnectFail:      "ReconnectFail",
	OpGamePaused:         "GamePaused",
	OpGameResumed:        "GameResumed",
	OpError:              "Error",
}

// Known reports whether op belongs to the protocol's opcode set.
func (op Opcode) Known() bool {
	_, ok := opcodeNames[op]
	return ok
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", int(op))
}
