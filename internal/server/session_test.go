package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkers_server/internal/protocol"
)

func TestRecordInvalidMessageSingleStrike(t *testing.T) {
	sess := newSession(nil, "t1")

	reason, n, drop := sess.recordInvalidMessage(protocol.ReasonInvalidPrefix, 1)

	assert.Equal(t, protocol.ReasonInvalidPrefix, reason)
	assert.Equal(t, 1, n)
	assert.True(t, drop)
}

func TestRecordInvalidMessageWarningsThenTooMany(t *testing.T) {
	sess := newSession(nil, "t2")

	reason, n, drop := sess.recordInvalidMessage(protocol.ReasonInvalidFormat, 3)
	require.False(t, drop)
	assert.Equal(t, protocol.ReasonInvalidFormat, reason)
	assert.Equal(t, 1, n)

	reason, n, drop = sess.recordInvalidMessage(protocol.ReasonInvalidLength, 3)
	require.False(t, drop)
	assert.Equal(t, protocol.ReasonInvalidLength, reason)
	assert.Equal(t, 2, n)

	// Final strike reports the accumulated misbehavior, not the last parse
	// error.
	reason, n, drop = sess.recordInvalidMessage(protocol.ReasonDataMismatch, 3)
	assert.True(t, drop)
	assert.Equal(t, protocol.ReasonTooManyViolations, reason)
	assert.Equal(t, 3, n)
}

func TestRecordUnknownOpThreshold(t *testing.T) {
	sess := newSession(nil, "t3")

	n, drop := sess.recordUnknownOp(2)
	assert.Equal(t, 1, n)
	assert.False(t, drop)

	n, drop = sess.recordUnknownOp(2)
	assert.Equal(t, 2, n)
	assert.True(t, drop)
}

func TestViolationsDecayAfterQuietPeriod(t *testing.T) {
	sess := newSession(nil, "t4")

	_, n, _ := sess.recordInvalidMessage(protocol.ReasonInvalidFormat, 5)
	require.Equal(t, 1, n)
	_, n, _ = sess.recordInvalidMessage(protocol.ReasonInvalidFormat, 5)
	require.Equal(t, 2, n)

	// Backdate the last offense past the forgiveness window; the next one
	// counts from zero again.
	sess.mu.Lock()
	sess.violations.lastAt = time.Now().Add(-violationReset - time.Second)
	sess.mu.Unlock()

	_, n, drop := sess.recordInvalidMessage(protocol.ReasonInvalidFormat, 2)
	assert.Equal(t, 1, n)
	assert.False(t, drop)
}

func TestUpdatePongRevivesOnlyWithSocket(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	sess := newSession(srv, "t5")
	sess.mu.Lock()
	sess.connState = ConnDisconnected
	sess.missedPongs = 2
	sess.awaitingPong = true
	sess.mu.Unlock()

	sess.UpdatePong()

	sess.mu.Lock()
	assert.Equal(t, ConnConnected, sess.connState)
	assert.Equal(t, 0, sess.missedPongs)
	assert.False(t, sess.awaitingPong)
	sess.mu.Unlock()

	// Without a socket the grace window keeps running; a stray PONG must not
	// resurrect a detached session.
	ghost := newSession(nil, "t6")
	ghost.mu.Lock()
	ghost.connState = ConnDisconnected
	ghost.mu.Unlock()

	ghost.UpdatePong()

	assert.Equal(t, ConnDisconnected, ghost.ConnState())
}

func TestMarkDisconnectedKeepsFirstTimestamp(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()

	sess := newSession(srv, "t7")
	first := time.Now().Add(-10 * time.Second)

	sess.mu.Lock()
	sess.markDisconnectedLocked(first)
	sess.mu.Unlock()

	require.Equal(t, ConnDisconnected, sess.ConnState())
	sess.mu.Lock()
	assert.Equal(t, first, sess.disconnectAt)
	assert.Nil(t, sess.conn)
	sess.mu.Unlock()

	// A second drop while already disconnected does not restart the window.
	sess.mu.Lock()
	sess.markDisconnectedLocked(time.Now())
	got := sess.disconnectAt
	sess.mu.Unlock()
	assert.Equal(t, first, got)
}

func TestSendToDetachedSessionIsNoop(t *testing.T) {
	sess := newSession(nil, "t8")
	sess.Send(protocol.OpPing, "") // must not panic or block

	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()
	removed := newSession(srv, "t9")
	removed.mu.Lock()
	removed.connState = ConnRemoved
	removed.mu.Unlock()
	removed.Send(protocol.OpPing, "") // dropped before the write, no reader needed
}
