package relay

import "sync"

// RollingByteBuffer is a FIFO of byte chunks bounded by a total byte budget.
// Pushing past the budget evicts from the front until the buffer fits again.
// A newly attached subscriber drains a snapshot of this buffer before
// joining live fanout, so it sees recent history instead of starting cold.
type RollingByteBuffer struct {
	mu      sync.Mutex
	budget  int
	size    int
	chunks  [][]byte
}

// NewRollingByteBuffer creates a buffer with the given byte budget.
func NewRollingByteBuffer(budget int) *RollingByteBuffer {
	if budget <= 0 {
		budget = 12 * 1024 * 1024
	}
	return &RollingByteBuffer{budget: budget}
}

// Push appends chunk, evicting from the front until size <= budget.
func (b *RollingByteBuffer) Push(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = append(b.chunks, chunk)
	b.size += len(chunk)
	for b.size > b.budget && len(b.chunks) > 0 {
		b.size -= len(b.chunks[0])
		b.chunks = b.chunks[1:]
	}
}

// Snapshot returns a cheap clone of the buffer's current chunk references,
// safe to range over after the lock is released since chunks are never
// mutated in place.
func (b *RollingByteBuffer) Snapshot() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.chunks))
	copy(out, b.chunks)
	return out
}
