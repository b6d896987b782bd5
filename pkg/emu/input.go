package emu

import "encoding/binary"

// Input serves MMIO reads from a fuzz input, front to back
type Input struct {
	data []byte
	off  int
}

// NewInput wraps the raw bytes of one input file
func NewInput(data []byte) *Input {
	return &Input{data: data}
}

// Next consumes size bytes as a little-endian value. It returns false once
// the input cannot serve the whole read.
func (in *Input) Next(size int) (uint64, bool) {
	if size <= 0 || size > 8 || in.off+size > len(in.data) {
		return 0, false
	}
	var buf [8]byte
	copy(buf[:], in.data[in.off:in.off+size])
	in.off += size
	return binary.LittleEndian.Uint64(buf[:]), true
}

// Consumed returns the number of bytes read so far
func (in *Input) Consumed() int {
	return in.off
}

// Remaining returns the number of unread bytes
func (in *Input) Remaining() int {
	return len(in.data) - in.off
}
