package integration

import (
	"bufio"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"checkers_server/internal/config"
	"checkers_server/internal/logger"
	"checkers_server/internal/protocol"
	"checkers_server/internal/server"
)

func e2eConfig() *config.Config {
	return &config.Config{
		Port:           0,
		Bind:           "127.0.0.1",
		MaxClients:     16,
		MaxRooms:       8,
		MaxViolations:  1,
		PingInterval:   50 * time.Millisecond,
		PongTimeout:    150 * time.Millisecond,
		MaxMissedPongs: 2,
		LongDisconnect: 300 * time.Millisecond,
		LogLevel:       "error",
	}
}

// startServer boots a real TCP server on an ephemeral port and returns its
// address. The server is torn down with the test.
func startServer(t *testing.T, cfg *config.Config) string {
	t.Helper()
	logger.Init(cfg.LogLevel, false)
	srv := server.New(cfg)
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Stop)
	return srv.Addr().String()
}

// tcpClient is one real TCP connection with a single reader goroutine, so
// heartbeat frames and game frames never race each other.
type tcpClient struct {
	t      *testing.T
	conn   net.Conn
	mu     sync.Mutex
	frames chan protocol.Frame
}

// dial connects to the server. With autoPong the reader answers heartbeat
// pings itself; without it the client looks dead to the server.
func dial(t *testing.T, addr string, autoPong bool) *tcpClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := &tcpClient{t: t, conn: conn, frames: make(chan protocol.Frame, 64)}
	go func() {
		reader := bufio.NewReaderSize(conn, protocol.BufferSize)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(c.frames)
				return
			}
			frame, err := protocol.Decode(strings.TrimSuffix(line, "\n"))
			if err != nil {
				close(c.frames)
				return
			}
			if autoPong && frame.Op == protocol.OpPing {
				c.send(protocol.OpPong, "")
				continue
			}
			c.frames <- frame
		}
	}()
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

func (c *tcpClient) send(op protocol.Opcode, data string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.conn.Write(protocol.Encode(op, data)); err != nil {
		c.t.Logf("write %s failed: %v", op, err)
	}
}

func (c *tcpClient) sendRaw(raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, _ = c.conn.Write([]byte(raw))
}

// waitFor scans incoming frames until one with the wanted opcode shows up.
// Unrelated frames are skipped, which keeps the flows robust against
// heartbeat timing.
func (c *tcpClient) waitFor(op protocol.Opcode, tmo time.Duration) protocol.Frame {
	c.t.Helper()
	deadline := time.Now().Add(tmo)
	for time.Now().Before(deadline) {
		select {
		case frame, ok := <-c.frames:
			if !ok {
				c.t.Fatalf("connection closed while waiting for %s", op)
			}
			if frame.Op == op {
				return frame
			}
		case <-time.After(25 * time.Millisecond):
		}
	}
	c.t.Fatalf("timeout waiting for %s", op)
	return protocol.Frame{}
}

// waitClosed blocks until the server drops the connection.
func (c *tcpClient) waitClosed(tmo time.Duration) {
	c.t.Helper()
	deadline := time.Now().Add(tmo)
	for time.Now().Before(deadline) {
		select {
		case _, ok := <-c.frames:
			if !ok {
				return
			}
		case <-time.After(25 * time.Millisecond):
		}
	}
	c.t.Fatal("connection still open")
}

func (c *tcpClient) login(name string) {
	c.t.Helper()
	c.send(protocol.OpLogin, name)
	frame := c.waitFor(protocol.OpLoginOk, 2*time.Second)
	if frame.Data != name {
		c.t.Fatalf("login ack %q, want %q", frame.Data, name)
	}
}

type boardState struct {
	Board       [8][8]int `json:"board"`
	CurrentTurn string    `json:"current_turn"`
}

func parseState(t *testing.T, frame protocol.Frame) boardState {
	t.Helper()
	var st boardState
	if err := json.Unmarshal([]byte(frame.Data), &st); err != nil {
		t.Fatalf("bad game state %q: %v", frame.Data, err)
	}
	return st
}

// joinMatch runs the full lobby handshake for two clients and consumes the
// start frames.
func joinMatch(t *testing.T, ann, bob *tcpClient, room string) {
	t.Helper()
	ann.send(protocol.OpCreateRoom, "ann,"+room)
	ann.waitFor(protocol.OpRoomCreated, 2*time.Second)
	ann.send(protocol.OpJoinRoom, "ann,"+room)
	ann.waitFor(protocol.OpRoomJoined, 2*time.Second)

	bob.send(protocol.OpJoinRoom, "bob,"+room)
	bob.waitFor(protocol.OpRoomJoined, 2*time.Second)

	for _, c := range []*tcpClient{ann, bob} {
		start := c.waitFor(protocol.OpGameStart, 2*time.Second)
		if want := room + ",ann,bob,ann"; start.Data != want {
			t.Fatalf("game start %q, want %q", start.Data, want)
		}
		c.waitFor(protocol.OpGameState, 2*time.Second)
	}
}

func TestE2E_FullGame(t *testing.T) {
	addr := startServer(t, e2eConfig())

	ann := dial(t, addr, true)
	bob := dial(t, addr, true)
	ann.login("ann")
	bob.login("bob")
	joinMatch(t, ann, bob, "match")

	// Black cannot move before white.
	bob.send(protocol.OpMove, "match,bob,2,0,3,1")
	frame := bob.waitFor(protocol.OpInvalidMove, 2*time.Second)
	if frame.Data != "Invalid move" {
		t.Fatalf("rejection %q", frame.Data)
	}

	ann.send(protocol.OpMove, "match,ann,5,1,4,0")
	st := parseState(t, ann.waitFor(protocol.OpGameState, 2*time.Second))
	if st.CurrentTurn != "bob" {
		t.Fatalf("turn after white move: %q", st.CurrentTurn)
	}
	bob.waitFor(protocol.OpGameState, 2*time.Second)

	bob.send(protocol.OpMove, "match,bob,2,0,3,1")
	st = parseState(t, bob.waitFor(protocol.OpGameState, 2*time.Second))
	if st.CurrentTurn != "ann" {
		t.Fatalf("turn after black move: %q", st.CurrentTurn)
	}
	ann.waitFor(protocol.OpGameState, 2*time.Second)

	ann.send(protocol.OpLeaveRoom, "match,ann")
	frame = ann.waitFor(protocol.OpRoomLeft, 2*time.Second)
	if frame.Data != "match" {
		t.Fatalf("leaver ack %q", frame.Data)
	}
	frame = bob.waitFor(protocol.OpRoomLeft, 2*time.Second)
	if frame.Data != "match,ann" {
		t.Fatalf("stayer notice %q", frame.Data)
	}

	ann.send(protocol.OpListRooms, "")
	frame = ann.waitFor(protocol.OpRoomsList, 2*time.Second)
	if frame.Data != "[]" {
		t.Fatalf("rooms after leave: %q", frame.Data)
	}
}

func TestE2E_MalformedFrameDisconnects(t *testing.T) {
	addr := startServer(t, e2eConfig())

	c := dial(t, addr, true)
	c.login("mal")
	c.sendRaw("THIS IS NOT A FRAME\n")

	frame := c.waitFor(protocol.OpError, 2*time.Second)
	if frame.Data != "Invalid message prefix" {
		t.Fatalf("error %q", frame.Data)
	}
	c.waitClosed(2 * time.Second)
}

func TestE2E_PhaseViolationDisconnects(t *testing.T) {
	addr := startServer(t, e2eConfig())

	c := dial(t, addr, true)
	c.login("sly")
	c.send(protocol.OpMove, "x,sly,5,1,4,0")

	frame := c.waitFor(protocol.OpError, 2*time.Second)
	if frame.Data != "Suspicious activity detected" {
		t.Fatalf("error %q", frame.Data)
	}
	c.waitClosed(2 * time.Second)
}

func TestE2E_ReconnectMidGame(t *testing.T) {
	// A wide reconnect window so the hand-over cannot lose a race against
	// the pause sweep on a slow machine.
	cfg := e2eConfig()
	cfg.LongDisconnect = 5 * time.Second
	addr := startServer(t, cfg)

	ann := dial(t, addr, true)
	bob := dial(t, addr, true)
	ann.login("ann")
	bob.login("bob")
	joinMatch(t, ann, bob, "rec")

	// ann vanishes; the game pauses for the reconnect window.
	_ = ann.conn.Close()
	frame := bob.waitFor(protocol.OpPlayerDisconnected, 2*time.Second)
	if frame.Data != "rec,ann" {
		t.Fatalf("disconnect notice %q", frame.Data)
	}
	bob.waitFor(protocol.OpGamePaused, 2*time.Second)

	// A fresh connection claims the preserved session.
	back := dial(t, addr, true)
	back.send(protocol.OpReconnectRequest, "rec,ann")
	frame = back.waitFor(protocol.OpReconnectOk, 2*time.Second)
	if frame.Data != "rec" {
		t.Fatalf("reconnect ack %q", frame.Data)
	}
	back.waitFor(protocol.OpGameResumed, 2*time.Second)
	st := parseState(t, back.waitFor(protocol.OpGameState, 2*time.Second))
	if st.CurrentTurn != "ann" {
		t.Fatalf("turn after resume: %q", st.CurrentTurn)
	}

	frame = bob.waitFor(protocol.OpPlayerReconnected, 2*time.Second)
	if frame.Data != "rec,ann" {
		t.Fatalf("reconnect notice %q", frame.Data)
	}
	bob.waitFor(protocol.OpGameResumed, 2*time.Second)

	// The game continues on the new socket.
	back.send(protocol.OpMove, "rec,ann,5,1,4,0")
	back.waitFor(protocol.OpGameState, 2*time.Second)
	bob.waitFor(protocol.OpGameState, 2*time.Second)
}

func TestE2E_PingTimeoutForfeitsGame(t *testing.T) {
	addr := startServer(t, e2eConfig())

	// ann never answers pings and will be evicted by the heartbeat.
	ann := dial(t, addr, false)
	bob := dial(t, addr, true)
	ann.login("ann")
	bob.login("bob")
	joinMatch(t, ann, bob, "tmo")

	frame := bob.waitFor(protocol.OpPlayerDisconnected, 5*time.Second)
	if frame.Data != "tmo,ann" {
		t.Fatalf("disconnect notice %q", frame.Data)
	}
	bob.waitFor(protocol.OpGamePaused, 5*time.Second)

	// Nobody reconnects, so the window expires and bob wins by walkover.
	frame = bob.waitFor(protocol.OpGameEnd, 5*time.Second)
	if frame.Data != "bob,opponent_timeout" {
		t.Fatalf("game end %q", frame.Data)
	}
	ann.waitClosed(5 * time.Second)

	bob.send(protocol.OpListRooms, "")
	frame = bob.waitFor(protocol.OpRoomsList, 2*time.Second)
	if frame.Data != "[]" {
		t.Fatalf("rooms after forfeit: %q", frame.Data)
	}
}
