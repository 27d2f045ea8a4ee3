package server

import (
	"errors"
	"net"
	"sync"

	"checkers_server/internal/ops"
)

var errServerFull = errors.New("no free session slot")

// sessionRegistry is the bounded slot table of sessions. The registry mutex
// guards slot allocation and lookup; per-session mutexes guard session
// content. The registry lock may be held while taking a session lock, never
// the other way around.
type sessionRegistry struct {
	mu    sync.RWMutex
	slots []*Session
	count int
}

func newSessionRegistry(capacity int) *sessionRegistry {
	return &sessionRegistry{slots: make([]*Session, capacity)}
}

// Add claims the first free slot for a fresh connection.
func (r *sessionRegistry) Add(conn net.Conn, connID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, sess := range r.slots {
		if sess != nil {
			continue
		}
		ns := newSession(conn, connID)
		r.slots[i] = ns
		r.count++
		ops.SessionsActive.Set(float64(r.count))
		return ns, nil
	}
	return nil, errServerFull
}

// Remove frees the slot holding sess. Removing a session twice is a no-op.
func (r *sessionRegistry) Remove(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.slots {
		if cur == sess {
			r.slots[i] = nil
			r.count--
			ops.SessionsActive.Set(float64(r.count))
			return
		}
	}
}

// FindByConn locates the session currently bound to conn. A reconnect
// hand-over rebinds sockets between sessions, so handlers re-locate their
// session by socket identity on every loop iteration.
func (r *sessionRegistry) FindByConn(conn net.Conn) *Session {
	if conn == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sess := range r.slots {
		if sess == nil {
			continue
		}
		sess.mu.Lock()
		match := sess.active && sess.conn == conn
		sess.mu.Unlock()
		if match {
			return sess
		}
	}
	return nil
}

// FindByID locates a logged-in session by client id. Identity fields are
// written only under the registry write lock, so the scan is safe without
// taking each session's own lock.
func (r *sessionRegistry) FindByID(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findByIDLocked(id)
}

func (r *sessionRegistry) findByIDLocked(id string) *Session {
	for _, sess := range r.slots {
		if sess != nil && sess.loggedIn && sess.id == id {
			return sess
		}
	}
	return nil
}

// idTakenLocked reports whether any session already holds id. Requires the
// registry lock held.
func (r *sessionRegistry) idTakenLocked(id string) bool {
	return r.findByIDLocked(id) != nil
}

func (r *sessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
