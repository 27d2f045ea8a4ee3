package server

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"checkers_server/internal/config"
	"checkers_server/internal/logger"
	"checkers_server/internal/protocol"
)

var testConnSeq atomic.Int64

// testConfig returns a config with small bounds and fast timers so the
// heartbeat paths can be exercised without real waiting.
func testConfig() *config.Config {
	return &config.Config{
		Port:           0,
		Bind:           "127.0.0.1",
		MaxClients:     8,
		MaxRooms:       4,
		MaxViolations:  1,
		PingInterval:   50 * time.Millisecond,
		PongTimeout:    40 * time.Millisecond,
		MaxMissedPongs: 3,
		LongDisconnect: 200 * time.Millisecond,
		LogLevel:       "error",
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	logger.Init(cfg.LogLevel, false)
	return New(cfg)
}

// testClient is one end of an in-memory connection whose server end is
// serviced by a real handler goroutine. A dedicated reader drains frames
// into a channel so server writes never block on the synchronous pipe.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	sess   *Session
	frames chan protocol.Frame
}

func newTestClient(t *testing.T, s *Server) *testClient {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	connID := fmt.Sprintf("t%d", testConnSeq.Add(1))
	sess, err := s.sessions.Add(serverEnd, connID)
	require.NoError(t, err)

	go s.handleConn(serverEnd, connID)

	tc := &testClient{
		t:      t,
		conn:   clientEnd,
		sess:   sess,
		frames: make(chan protocol.Frame, 64),
	}
	go tc.readLoop()
	t.Cleanup(func() { _ = clientEnd.Close() })
	return tc
}

func (c *testClient) readLoop() {
	reader := bufio.NewReaderSize(c.conn, protocol.BufferSize)
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
		c.frames <- frame
	}
}

func (c *testClient) send(op protocol.Opcode, data string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := c.conn.Write(protocol.Encode(op, data))
	require.NoError(c.t, err)
}

// sendRaw writes bytes that bypass the encoder, for malformed input tests.
func (c *testClient) sendRaw(raw string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := c.conn.Write([]byte(raw))
	require.NoError(c.t, err)
}

// expect reads the next frame and requires the given opcode. Heartbeat
// pings are skipped so tests that trigger sweeps stay focused.
func (c *testClient) expect(op protocol.Opcode) protocol.Frame {
	c.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case frame, ok := <-c.frames:
			if !ok {
				c.t.Fatalf("connection closed while waiting for %s", op)
			}
			if frame.Op == protocol.OpPing && op != protocol.OpPing {
				continue
			}
			require.Equal(c.t, op.String(), frame.Op.String(), "unexpected frame %s %q", frame.Op, frame.Data)
			return frame
		case <-deadline:
			c.t.Fatalf("timed out waiting for %s", op)
		}
	}
}

// expectClosed waits for the server to drop the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.frames:
			if !ok {
				return
			}
		case <-deadline:
			c.t.Fatal("connection still open")
		}
	}
}

func (c *testClient) login(name string) {
	c.t.Helper()
	c.send(protocol.OpLogin, name)
	frame := c.expect(protocol.OpLoginOk)
	require.Equal(c.t, name, frame.Data)
}

// startGame wires two fresh clients into one room and consumes the start
// frames, leaving both at a clean board.
func startGame(t *testing.T, s *Server, room string) (*testClient, *testClient) {
	t.Helper()
	a := newTestClient(t, s)
	b := newTestClient(t, s)
	a.login(room + "A")
	b.login(room + "B")

	a.send(protocol.OpCreateRoom, room+"A,"+room)
	a.expect(protocol.OpRoomCreated)
	a.send(protocol.OpJoinRoom, room+"A,"+room)
	a.expect(protocol.OpRoomJoined)

	b.send(protocol.OpJoinRoom, room+"B,"+room)
	b.expect(protocol.OpRoomJoined)
	b.expect(protocol.OpGameStart)
	b.expect(protocol.OpGameState)
	a.expect(protocol.OpGameStart)
	a.expect(protocol.OpGameState)
	return a, b
}
