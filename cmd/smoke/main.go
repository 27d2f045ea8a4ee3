package main

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"checkers_server/internal/protocol"
)

// Smoke drives two raw TCP clients through a full handshake against a
// running server: login, room setup, game start, the first move and a
// clean leave. Usage: smoke [addr], default 127.0.0.1:12345.
func main() {
	addr := "127.0.0.1:12345"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	room := fmt.Sprintf("smoke%d", os.Getpid())
	nameA := room + "A"
	nameB := room + "B"

	a := dial(addr, "A")
	defer a.conn.Close()
	b := dial(addr, "B")
	defer b.conn.Close()

	a.send(protocol.OpLogin, nameA)
	a.expect(protocol.OpLoginOk)
	b.send(protocol.OpLogin, nameB)
	b.expect(protocol.OpLoginOk)

	a.send(protocol.OpCreateRoom, nameA+","+room)
	a.expect(protocol.OpRoomCreated)
	a.send(protocol.OpJoinRoom, nameA+","+room)
	a.expect(protocol.OpRoomJoined)

	a.send(protocol.OpListRooms, "")
	rooms := a.expect(protocol.OpRoomsList)
	log.Printf("rooms: %s", rooms.Data)

	b.send(protocol.OpJoinRoom, nameB+","+room)
	b.expect(protocol.OpRoomJoined)

	a.expect(protocol.OpGameStart)
	a.expect(protocol.OpGameState)
	b.expect(protocol.OpGameStart)
	b.expect(protocol.OpGameState)

	// The first seat plays white and opens up-board.
	a.send(protocol.OpMove, fmt.Sprintf("%s,%s,5,1,4,0", room, nameA))
	a.expect(protocol.OpGameState)
	b.expect(protocol.OpGameState)

	a.send(protocol.OpLeaveRoom, room+","+nameA)
	a.expect(protocol.OpRoomLeft)
	b.expect(protocol.OpRoomLeft)

	log.Println("smoke test finished")
}

type client struct {
	name   string
	conn   net.Conn
	reader *bufio.Reader
}

func dial(addr, name string) *client {
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		log.Fatalf("dial %s: %v", name, err)
	}
	return &client{name: name, conn: conn, reader: bufio.NewReaderSize(conn, protocol.BufferSize)}
}

func (c *client) send(op protocol.Opcode, data string) {
	if _, err := c.conn.Write(protocol.Encode(op, data)); err != nil {
		log.Fatalf("%s write %s: %v", c.name, op, err)
	}
}

// expect reads frames until want arrives. Heartbeat pings are answered on
// the way; a server Error frame or a timeout kills the run.
func (c *client) expect(want protocol.Opcode) protocol.Frame {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = c.conn.SetReadDeadline(deadline)
		line, err := c.reader.ReadString('\n')
		if err != nil {
			log.Fatalf("%s read: %v", c.name, err)
		}
		frame, err := protocol.Decode(strings.TrimSuffix(line, "\n"))
		if err != nil {
			log.Fatalf("%s decode: %v", c.name, err)
		}
		log.Printf("%s got %s %q", c.name, frame.Op, frame.Data)
		switch frame.Op {
		case want:
			return frame
		case protocol.OpPing:
			c.send(protocol.OpPong, "")
		case protocol.OpError:
			log.Fatalf("%s server error: %s", c.name, frame.Data)
		}
	}
	log.Fatalf("%s timed out waiting for %s", c.name, want)
	return protocol.Frame{}
}
