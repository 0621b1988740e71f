// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package bufferpool pools the fixed-size buffers that node contents are read
// into.
package bufferpool

import (
	"io"
	"sync"
	"sync/atomic"
)

// Pool maintains a pool of buffers. It allocates a new buffer when none is
// available.
//
// A Pool must not be copied after first use.
type Pool struct {
	// Size is the capacity of the buffers in this pool.
	Size int

	base      sync.Pool
	allocated int64
}

// Get returns an empty buffer, allocating one if none is available.
//
// The caller should return the buffer to the pool by calling its Release
// method when done with it.
func (bp *Pool) Get() *Buffer {
	b, ok := bp.base.Get().(*Buffer)
	if !ok {
		atomic.AddInt64(&bp.allocated, 1)
		b = &Buffer{
			data: make([]byte, bp.Size),
		}
	}

	b.pool = bp
	b.n = 0
	return b
}

// Allocated returns the number of buffers that the pool has allocated.
func (bp *Pool) Allocated() int64 { return atomic.LoadInt64(&bp.allocated) }

// Buffer is a byte buffer that can be released into a Pool for reuse.
//
// Failure to release a Buffer will not leak memory, but will prevent its
// reuse.
type Buffer struct {
	data []byte
	n    int

	pool *Pool
}

// Bytes returns the filled portion of the buffer.
func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

// Len returns the number of filled bytes.
func (b *Buffer) Len() int { return b.n }

// Cap returns the buffer's capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// ReadOnce replaces the buffer's contents with the result of a single Read
// from r.
func (b *Buffer) ReadOnce(r io.Reader) (int, error) {
	n, err := r.Read(b.data)
	if n < 0 {
		n = 0
	}
	b.n = n
	return n, err
}

// Release returns the buffer to its pool. The buffer must not be used
// afterwards.
//
// Releasing a Buffer twice panics.
func (b *Buffer) Release() {
	pool := b.pool
	if pool == nil {
		panic("bufferpool: buffer released twice")
	}
	b.pool = nil
	pool.base.Put(b)
}
