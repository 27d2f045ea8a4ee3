package protocol

import (
	"fmt"
	"strings"
)

// Wire format: PREFIX|OP|LEN|DATA\n. OP is emitted two digits wide and LEN
// four digits wide, but the decoder accepts any number of digits in either
// field.
const (
	Prefix = "DENTCP"

	MaxMessage = 8192
	MaxData    = MaxMessage - len(Prefix) - 7
	BufferSize = 8192
)

// Frame is one decoded wire unit. Data is an opaque payload: CSV-like
// fields, JSON, or empty, but never a newline.
type Frame struct {
	Op   Opcode
	Data string
}

// Reason classifies why inbound bytes were rejected. Each reason maps to a
// disconnect policy and a diagnostic string sent to the peer before the
// connection is dropped.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonInvalidPrefix
	ReasonInvalidFormat
	ReasonInvalidOpcode
	ReasonInvalidLength
	ReasonDataMismatch
	ReasonBufferOverflow
	ReasonTooManyViolations
	ReasonSuspiciousActivity
)

// Message returns the diagnostic text sent to the peer for this reason.
func (r Reason) Message() string {
	switch r {
	case ReasonInvalidPrefix:
		return "Invalid message prefix"
	case ReasonInvalidFormat:
		return "Invalid message format"
	case ReasonInvalidOpcode:
		return "Invalid operation code"
	case ReasonInvalidLength:
		return "Invalid length field"
	case ReasonDataMismatch:
		return "Data length mismatch"
	case ReasonBufferOverflow:
		return "Buffer overflow attempt"
	case ReasonTooManyViolations:
		return "Too many protocol violations"
	case ReasonSuspiciousActivity:
		return "Suspicious activity detected"
	default:
		return "Unknown protocol error"
	}
}

// String returns a stable snake_case label, used for logs and metrics.
func (r Reason) String() string {
	switch r {
	case ReasonInvalidPrefix:
		return "invalid_prefix"
	case ReasonInvalidFormat:
		return "invalid_format"
	case ReasonInvalidOpcode:
		return "invalid_opcode"
	case ReasonInvalidLength:
		return "invalid_length"
	case ReasonDataMismatch:
		return "data_mismatch"
	case ReasonBufferOverflow:
		return "buffer_overflow"
	case ReasonTooManyViolations:
		return "too_many_violations"
	case ReasonSuspiciousActivity:
		return "suspicious_activity"
	default:
		return "none"
	}
}

// ProtocolError is returned by Decode and Assembler.Push; it carries the
// rejection reason so the session layer can count the violation and pick
// the right disconnect path.
type ProtocolError struct {
	Reason Reason
}

func (e *ProtocolError) Error() string {
	return e.Reason.Message()
}

func reject(r Reason) error {
	return &ProtocolError{Reason: r}
}

// ReasonOf extracts the rejection reason from an error returned by this
// package. It reports ReasonNone for nil and for foreign errors.
func ReasonOf(err error) Reason {
	if pe, ok := err.(*ProtocolError); ok {
		return pe.Reason
	}
	return ReasonNone
}

// Encode builds a complete frame including the trailing newline. Callers
// guarantee data contains no newline and fits in MaxData.
func Encode(op Opcode, data string) []byte {
	return fmt.Appendf(nil, "%s|%02d|%04d|%s\n", Prefix, int(op), len(data), data)
}

// Decode parses one newline-stripped line into a Frame.
//
// Field checks run left to right, and the first failure wins: prefix,
// separators, opcode digits, opcode membership, length digits, length
// bounds, declared-versus-actual payload size.
func Decode(line string) (Frame, error) {
	if len(line) < len(Prefix) || line[:len(Prefix)] != Prefix {
		return Frame{}, reject(ReasonInvalidPrefix)
	}

	rest := line[len(Prefix):]
	if len(rest) == 0 || rest[0] != '|' {
		return Frame{}, reject(ReasonInvalidFormat)
	}
	rest = rest[1:]

	sep := strings.IndexByte(rest, '|')
	if sep < 0 {
		return Frame{}, reject(ReasonInvalidFormat)
	}
	opField := rest[:sep]
	rest = rest[sep+1:]

	// An empty opcode field is a framing problem, not a bad opcode.
	if opField == "" {
		return Frame{}, reject(ReasonInvalidFormat)
	}
	opNum, ok := parseDigits(opField)
	if !ok {
		return Frame{}, reject(ReasonInvalidOpcode)
	}
	op := Opcode(opNum)
	if !op.Known() {
		return Frame{}, reject(ReasonInvalidOpcode)
	}

	sep = strings.IndexByte(rest, '|')
	if sep < 0 {
		return Frame{}, reject(ReasonInvalidFormat)
	}
	lenField := rest[:sep]
	data := rest[sep+1:]

	declared, ok := parseDigits(lenField)
	if !ok {
		return Frame{}, reject(ReasonInvalidLength)
	}
	if declared > MaxData || len(data) > MaxData {
		return Frame{}, reject(ReasonBufferOverflow)
	}
	if declared != len(data) {
		return Frame{}, reject(ReasonDataMismatch)
	}

	return Frame{Op: op, Data: data}, nil
}

// parseDigits parses a non-empty run of ASCII digits. The value saturates
// well above MaxData, so oversized fields still classify correctly.
func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		if n < 1<<20 {
			n = n*10 + int(c-'0')
		}
	}
	return n, true
}
