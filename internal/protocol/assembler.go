package protocol

import "bytes"

// AssemblyCapacity bounds how many bytes a connection may accumulate for a
// single unterminated frame before it is treated as hostile.
const AssemblyCapacity = 2 * BufferSize

// Assembler reassembles newline-terminated frames from a TCP byte stream.
// One instance lives per connection and is owned by its handler goroutine;
// it is not safe for concurrent use.
type Assembler struct {
	buf []byte
}

// Push appends a read chunk and returns every complete line it unlocked,
// newline stripped. Bytes after the last newline stay buffered for the next
// read. The capacity check runs before the append, so a peer that streams
// garbage without a terminator is cut off at AssemblyCapacity.
func (a *Assembler) Push(chunk []byte) ([]string, error) {
	if len(a.buf)+len(chunk) > AssemblyCapacity {
		a.buf = a.buf[:0]
		return nil, reject(ReasonBufferOverflow)
	}
	a.buf = append(a.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(a.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(a.buf[:i]))
		a.buf = append(a.buf[:0], a.buf[i+1:]...)
	}
	return lines, nil
}

// Pending returns how many bytes await a terminator.
func (a *Assembler) Pending() int {
	return len(a.buf)
}
