package server

import (
	"sync"
	"time"

	"checkers_server/internal/game"
	"checkers_server/internal/logger"
)

// RoomState values follow the room lifecycle: a room waits for its second
// seat, runs the game, pauses while a member is disconnected, and finishes
// exactly once.
type RoomState int

const (
	RoomWaiting RoomState = iota
	RoomActive
	RoomPaused
	RoomFinished
)

func (s RoomState) String() string {
	switch s {
	case RoomWaiting:
		return "WAITING"
	case RoomActive:
		return "ACTIVE"
	case RoomPaused:
		return "PAUSED"
	case RoomFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Room is a two-seat game instance.
//
// Membership and the game itself (Name, Owner, player1, player2,
// playersCount, game, gameStarted) are guarded by the room registry lock,
// which also serializes moves so every member observes GameState frames in
// board order. The lifecycle quartet (state, pausedAt, disconnectedPlayer,
// waitingForReconnect) is guarded by the room's own mu so the heartbeat can
// inspect pauses without the registry write lock.
type Room struct {
	Name  string
	Owner string

	player1      string
	player2      string
	playersCount int

	game        *game.Game
	gameStarted bool

	mu                  sync.Mutex
	state               RoomState
	pausedAt            time.Time
	disconnectedPlayer  string
	waitingForReconnect bool
}

// seat places player on the first free side and returns the new member
// count. Caller holds the room registry lock and has verified capacity.
func (r *Room) seat(player string) int {
	if r.player1 == "" {
		r.player1 = player
	} else {
		r.player2 = player
	}
	r.playersCount++
	return r.playersCount
}

// members returns the occupied seats. Caller holds the room registry lock.
func (r *Room) members() []string {
	out := make([]string, 0, 2)
	if r.player1 != "" {
		out = append(out, r.player1)
	}
	if r.player2 != "" {
		out = append(out, r.player2)
	}
	return out
}

// isMember reports whether player occupies a seat. Caller holds the room
// registry lock.
func (r *Room) isMember(player string) bool {
	return player != "" && (r.player1 == player || r.player2 == player)
}

// opponentOf returns the other seat's occupant, or "" when there is none.
// Caller holds the room registry lock.
func (r *Room) opponentOf(player string) string {
	switch player {
	case r.player1:
		return r.player2
	case r.player2:
		return r.player1
	default:
		return ""
	}
}

// State returns the current lifecycle state.
func (r *Room) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) setState(st RoomState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = st
}

// Pause suspends an active game while who is disconnected. Pausing a room
// in any other state is refused, so двойной дисконнект не перезаписывает
// первую паузу.
func (r *Room) Pause(who string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RoomActive {
		return false
	}
	r.state = RoomPaused
	r.pausedAt = time.Now()
	r.disconnectedPlayer = who
	r.waitingForReconnect = true
	logger.Info("room paused", "room", r.Name, "disconnected", who)
	return true
}

// Resume reactivates a paused game after a successful reconnect.
func (r *Room) Resume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RoomPaused {
		return false
	}
	r.state = RoomActive
	r.pausedAt = time.Time{}
	r.disconnectedPlayer = ""
	r.waitingForReconnect = false
	logger.Info("room resumed", "room", r.Name)
	return true
}

// Finish marks the game over. A room finishes at most once; later calls are
// ignored.
func (r *Room) Finish(reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RoomFinished {
		return false
	}
	r.state = RoomFinished
	r.waitingForReconnect = false
	logger.Info("game finished", "room", r.Name, "reason", reason)
	return true
}

// pauseExpired reports whether the room has been paused longer than the
// reconnect window.
func (r *Room) pauseExpired(now time.Time, window time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == RoomPaused && now.Sub(r.pausedAt) >= window
}

// DisconnectedPlayer returns the member the room is paused for, or "".
func (r *Room) DisconnectedPlayer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnectedPlayer
}
