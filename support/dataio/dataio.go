// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package dataio contains I/O adapters used when streaming node and capture
// data.
package dataio

import (
	"context"
	"io"
)

// CountingWriter is an io.Writer that counts the bytes written through it.
type CountingWriter struct {
	io.Writer

	// Count is the number of bytes that have been written.
	Count int64
}

func (cw *CountingWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Count += int64(n)
	return n, err
}

// ContextReader is an io.Reader that fails with its Context's error once the
// Context is done.
type ContextReader struct {
	Ctx context.Context
	R   io.Reader
}

func (cr *ContextReader) Read(p []byte) (int, error) {
	if err := cr.Ctx.Err(); err != nil {
		return 0, err
	}
	return cr.R.Read(p)
}
