package server

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/net/netutil"

	"checkers_server/internal/config"
	"checkers_server/internal/logger"
	"checkers_server/internal/ops"
	"checkers_server/internal/protocol"
)

// Server owns the TCP listener, the session and room registries and the
// heartbeat. One goroutine per connection reads frames; the heartbeat
// goroutine drives ping/pong liveness and the reconnect windows.
//
// Lock order, outermost first: rooms registry, session registry, session.
// A session lock is never held while acquiring a registry lock. The
// heartbeat snapshots under the registry locks and acts after releasing
// them, so it never nests the two registries.
type Server struct {
	cfg *config.Config

	listener net.Listener
	sessions *sessionRegistry
	rooms    *roomRegistry

	running  atomic.Bool
	quit     chan struct{}
	handlers sync.WaitGroup
}

func New(cfg *config.Config) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: newSessionRegistry(cfg.MaxClients),
		rooms:    newRoomRegistry(cfg.MaxRooms),
		quit:     make(chan struct{}),
	}
	s.running.Store(true)
	return s
}

// Listen binds the TCP socket. The listener is capped at MaxClients
// concurrent connections; the session slot table enforces the same bound
// one level up, so a burst of dials cannot exhaust file descriptors.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.cfg.Bind, strconv.Itoa(s.cfg.Port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = netutil.LimitListener(lis, s.cfg.MaxClients)
	return nil
}

// Addr returns the bound listener address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Stop is called. It owns the heartbeat
// goroutine for its whole lifetime and blocks until every handler has
// drained.
func (s *Server) Serve() error {
	if s.listener == nil {
		return fmt.Errorf("serve called before listen")
	}
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		s.runHeartbeat()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				break
			}
			logger.Warn("accept failed", "err", err)
			continue
		}
		s.accept(conn)
	}

	<-hbDone
	s.closeAllSessions()
	s.handlers.Wait()
	logger.Info("server stopped")
	return nil
}

// accept reserves a session slot for conn and spawns its handler. A full
// slot table turns the connection away with a courtesy Error frame.
func (s *Server) accept(conn net.Conn) {
	ops.ConnectionsAccepted.Inc()
	connID := uuid.NewString()[:8]
	_, err := s.sessions.Add(conn, connID)
	if err != nil {
		logger.Warn("connection rejected, server full", "remote", conn.RemoteAddr().String())
		_, _ = conn.Write(protocol.Encode(protocol.OpError, "Server full"))
		_ = conn.Close()
		return
	}
	logger.Info("client connected", "conn_id", connID, "remote", conn.RemoteAddr().String(), "sessions", s.sessions.Count())
	s.handlers.Add(1)
	go func() {
		defer s.handlers.Done()
		s.handleConn(conn, connID)
	}()
}

// Stop shuts the server down: no new connections, heartbeat stopped, every
// socket closed. Safe to call more than once.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	logger.Info("server stopping")
	close(s.quit)
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// closeAllSessions force-detaches every remaining socket so blocked reads
// unwind during shutdown.
func (s *Server) closeAllSessions() {
	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()
	for i, sess := range s.sessions.slots {
		if sess == nil {
			continue
		}
		sess.mu.Lock()
		if sess.conn != nil {
			_ = sess.conn.Close()
			sess.conn = nil
		}
		sess.active = false
		sess.connState = ConnRemoved
		sess.mu.Unlock()
		s.sessions.slots[i] = nil
	}
	s.sessions.count = 0
	ops.SessionsActive.Set(0)
}

// Ready reports whether the server is accepting connections, for the ops
// readiness probe.
func (s *Server) Ready() bool {
	return s.running.Load() && s.listener != nil
}

// SessionCount returns the number of occupied session slots.
func (s *Server) SessionCount() int {
	return s.sessions.Count()
}

// RoomsSnapshot returns the current room table for the ops debug endpoint.
func (s *Server) RoomsSnapshot() []ops.RoomStatus {
	s.rooms.mu.RLock()
	defer s.rooms.mu.RUnlock()
	out := make([]ops.RoomStatus, 0, s.rooms.count)
	for i, room := range s.rooms.slots {
		if room == nil {
			continue
		}
		st := ops.RoomStatus{
			ID:      i,
			Name:    room.Name,
			Players: room.playersCount,
			State:   room.State().String(),
		}
		if room.game != nil && logger.DebugEnabled() {
			st.Board = room.game.BoardString()
		}
		out = append(out, st)
	}
	return out
}
