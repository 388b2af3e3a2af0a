package audio

import "encoding/binary"

// pendingBuffer holds device bytes that did not fit into the caller's frame
// so they are handed out on the next read instead of being dropped.
type pendingBuffer struct {
	buf   []byte
	off   int
	spare []byte
}

func (b *pendingBuffer) len() int {
	return len(b.buf) - b.off
}

func (b *pendingBuffer) fill(p []byte) {
	b.buf = p
	b.off = 0
}

func (b *pendingBuffer) read(p []byte) int {
	n := copy(p, b.buf[b.off:])
	b.off += n
	return n
}

// scratch returns a reusable slice of n bytes. Only call it when the buffer
// is drained.
func (b *pendingBuffer) scratch(n int) []byte {
	if cap(b.spare) < n {
		b.spare = make([]byte, n)
	}
	return b.spare[:n]
}

func samplesToBytes(dst []byte, samples []int16) []byte {
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(sample))
	}
	return dst[:len(samples)*2]
}
