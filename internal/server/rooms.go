package server

import (
	"sync"

	"checkers_server/internal/ops"
)

// Join result codes. Zero means the seat was taken successfully; the
// negative codes mirror the JoinRoom failure replies.
const (
	joinOk                 = 0
	joinRoomNotFound       = -1
	joinRoomFull           = -2
	joinAlreadyInThisRoom  = -3
	joinAlreadyInOtherRoom = -4
	joinClientNotFound     = -5
)

// joinFailText maps a join code to the RoomFail reply the client sees.
func joinFailText(code int) string {
	switch code {
	case joinRoomNotFound:
		return "Room not found"
	case joinRoomFull:
		return "Room is full"
	case joinAlreadyInThisRoom:
		return "You are already in this room"
	case joinAlreadyInOtherRoom:
		return "Already in another room. Leave first."
	case joinClientNotFound:
		return "Client not found"
	default:
		return "Join failed"
	}
}

// roomRegistry is the bounded slot table of rooms. Its mutex guards slot
// allocation, room membership and game state; handlers hold it across
// validate-apply-broadcast so GameState frames leave in board order.
type roomRegistry struct {
	mu    sync.RWMutex
	slots []*Room
	count int
}

func newRoomRegistry(capacity int) *roomRegistry {
	return &roomRegistry{slots: make([]*Room, capacity)}
}

// createLocked allocates a room in the first free slot. It fails when the
// name is taken or the table is full. Requires the registry write lock.
func (r *roomRegistry) createLocked(name, owner string) (*Room, bool) {
	if r.findLocked(name) != nil {
		return nil, false
	}
	for i, room := range r.slots {
		if room != nil {
			continue
		}
		nr := &Room{Name: name, Owner: owner, state: RoomWaiting}
		r.slots[i] = nr
		r.count++
		ops.RoomsActive.Set(float64(r.count))
		return nr, true
	}
	return nil, false
}

// findLocked returns the room named name, or nil. Requires the registry
// lock (read or write).
func (r *roomRegistry) findLocked(name string) *Room {
	for _, room := range r.slots {
		if room != nil && room.Name == name {
			return room
		}
	}
	return nil
}

// Find locates a room by name under the read lock. Callers that go on to
// mutate the room must re-find it under the write lock instead; pointers
// are not retained across lock releases.
func (r *roomRegistry) Find(name string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLocked(name)
}

// destroyLocked frees the slot holding room. Requires the registry write
// lock.
func (r *roomRegistry) destroyLocked(room *Room) {
	for i, cur := range r.slots {
		if cur == room {
			r.slots[i] = nil
			r.count--
			ops.RoomsActive.Set(float64(r.count))
			return
		}
	}
}

// slotOfLocked returns the slot index of room, or -1. The index doubles as
// the room id in RoomsList payloads. Requires the registry lock.
func (r *roomRegistry) slotOfLocked(room *Room) int {
	for i, cur := range r.slots {
		if cur == room {
			return i
		}
	}
	return -1
}

func (r *roomRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
