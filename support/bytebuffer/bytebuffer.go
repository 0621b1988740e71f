// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package bytebuffer offers B, an immutable, offset-addressable view over a
// region of bytes.
//
// B never reads outside of its view. Any access that would reach past the
// view's length returns an error whose cause is ErrOutOfBounds, so decoders
// built on top of B can treat hostile length fields as ordinary errors.
//
// Sub-views share their backing array with the view they were derived from.
// Every B also remembers its anchor: the backing region it was originally
// created over. Rebase creates a view whose zero point is an absolute offset
// within that anchor, which is what formats with absolute back-references (for
// example DNS name compression) need.
//
// With great power comes great responsibility: zero-copy accessors return
// slices of the anchor, which must not be modified while any view of it is in
// use.
package bytebuffer

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// ErrOutOfBounds is the cause of every error returned for an access outside of
// a view.
var ErrOutOfBounds = errors.New("out of bounds")

// IsOutOfBounds returns true if err was caused by an out-of-bounds access.
func IsOutOfBounds(err error) bool { return errors.Cause(err) == ErrOutOfBounds }

// B is a view over a region of bytes.
//
// B is a value type; copying it is cheap and creates an independent view over
// the same bytes. The zero value is an empty view.
type B struct {
	// anchor is the full backing region. Absolute offsets are relative to
	// anchor[0].
	anchor []byte

	// base is the absolute offset of this view's zero point.
	base int
	// size is the number of bytes in this view.
	size int
}

// Make returns a view over all of data, anchored at data[0].
func Make(data []byte) B {
	return B{
		anchor: data,
		size:   len(data),
	}
}

// Len returns the number of bytes in the view.
func (b B) Len() int { return b.size }

// Base returns the absolute offset of the view's zero point within its anchor.
func (b B) Base() int { return b.base }

func (b B) check(off, n int) error {
	if off < 0 || n < 0 || off > b.size || n > b.size-off {
		return errors.Wrapf(ErrOutOfBounds, "access [%d:+%d] in view of %d bytes (base %d)",
			off, n, b.size, b.base)
	}
	return nil
}

// Byte returns the byte at off.
func (b B) Byte(off int) (byte, error) {
	if err := b.check(off, 1); err != nil {
		return 0, err
	}
	return b.anchor[b.base+off], nil
}

// Bytes returns the n bytes starting at off.
//
// Bytes is zero-copy. The returned slice's capacity is capped at n, so
// appending to it will never write into the anchor.
func (b B) Bytes(off, n int) ([]byte, error) {
	if err := b.check(off, n); err != nil {
		return nil, err
	}
	start := b.base + off
	return b.anchor[start : start+n : start+n], nil
}

// Remaining returns all bytes from off to the end of the view.
func (b B) Remaining(off int) ([]byte, error) {
	if err := b.check(off, 0); err != nil {
		return nil, err
	}
	return b.Bytes(off, b.size-off)
}

// Slice returns a view of the n bytes starting at off.
//
// The returned view shares the anchor of b.
func (b B) Slice(off, n int) (B, error) {
	if err := b.check(off, n); err != nil {
		return B{}, err
	}
	return B{
		anchor: b.anchor,
		base:   b.base + off,
		size:   n,
	}, nil
}

// From returns a view of everything from off to the end of b.
//
// off may equal Len, in which case the returned view is empty.
func (b B) From(off int) (B, error) {
	if err := b.check(off, 0); err != nil {
		return B{}, err
	}
	return b.Slice(off, b.size-off)
}

// Rebase returns a view whose zero point is the absolute offset abs within
// b's anchor, extending to the end of the anchor.
//
// Rebase ignores b's own zero point and length: abs is interpreted against
// the anchor, not against b.
func (b B) Rebase(abs int) (B, error) {
	if abs < 0 || abs > len(b.anchor) {
		return B{}, errors.Wrapf(ErrOutOfBounds, "rebase to %d in anchor of %d bytes",
			abs, len(b.anchor))
	}
	return B{
		anchor: b.anchor,
		base:   abs,
		size:   len(b.anchor) - abs,
	}, nil
}

// Uint16 decodes a 16-bit unsigned integer at off.
func (b B) Uint16(off int, order binary.ByteOrder) (uint16, error) {
	v, err := b.Bytes(off, 2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(v), nil
}

// Uint32 decodes a 32-bit unsigned integer at off.
func (b B) Uint32(off int, order binary.ByteOrder) (uint32, error) {
	v, err := b.Bytes(off, 4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(v), nil
}

// Uint64 decodes a 64-bit unsigned integer at off.
func (b B) Uint64(off int, order binary.ByteOrder) (uint64, error) {
	v, err := b.Bytes(off, 8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(v), nil
}

// Reader returns an io.Reader over the contents of the view.
func (b B) Reader() *bytes.Reader {
	return bytes.NewReader(b.anchor[b.base : b.base+b.size])
}

func (b B) String() string {
	return fmt.Sprintf("B{base=%d, len=%d, anchor=%d}", b.base, b.size, len(b.anchor))
}
