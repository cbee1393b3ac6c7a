package app

import (
	"bytes"
	"io"
	"sync"
)

// chunkBuffer collects encoded chunks in arrival order.
type chunkBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
}

// Append stores a non-empty chunk.
func (b *chunkBuffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = append(b.chunks, chunk)
	b.size += len(chunk)
}

// Len returns the number of chunks held.
func (b *chunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Take returns the concatenation of all chunks and empties the buffer.
func (b *chunkBuffer) Take() (io.Reader, int, int) {
	b.mu.Lock()
	chunks, size := b.chunks, b.size
	b.chunks, b.size = nil, 0
	b.mu.Unlock()

	readers := make([]io.Reader, 0, len(chunks))
	for _, c := range chunks {
		readers = append(readers, bytes.NewReader(c))
	}
	return io.MultiReader(readers...), len(chunks), size
}
