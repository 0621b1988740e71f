// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package structdec

import (
	"net"

	"github.com/danjacques/gosift/support/bytebuffer"
)

// Primitive decoders.
var (
	// UByte decodes an unsigned 8-bit integer as a uint8.
	UByte Decoder = DecoderFunc(func(st *State, b bytebuffer.B, off int) (Value, int, error) {
		v, err := b.Byte(off)
		return v, 1, err
	})

	// UShort decodes an unsigned 16-bit integer as a uint16.
	UShort Decoder = DecoderFunc(func(st *State, b bytebuffer.B, off int) (Value, int, error) {
		v, err := b.Uint16(off, st.order())
		return v, 2, err
	})

	// ULong decodes an unsigned 32-bit integer as a uint32.
	ULong Decoder = DecoderFunc(func(st *State, b bytebuffer.B, off int) (Value, int, error) {
		v, err := b.Uint32(off, st.order())
		return v, 4, err
	})

	// ULongLong decodes an unsigned 64-bit integer as a uint64.
	ULongLong Decoder = DecoderFunc(func(st *State, b bytebuffer.B, off int) (Value, int, error) {
		v, err := b.Uint64(off, st.order())
		return v, 8, err
	})

	// Long decodes a signed 32-bit integer as an int32.
	Long Decoder = DecoderFunc(func(st *State, b bytebuffer.B, off int) (Value, int, error) {
		v, err := b.Uint32(off, st.order())
		return int32(v), 4, err
	})

	// IPv4 decodes a 4-byte IPv4 address as a net.IP.
	//
	// Addresses are stored in network order regardless of the State's byte
	// order.
	IPv4 Decoder = DecoderFunc(func(st *State, b bytebuffer.B, off int) (Value, int, error) {
		v, err := b.Bytes(off, net.IPv4len)
		if err != nil {
			return nil, 0, err
		}
		return net.IPv4(v[0], v[1], v[2], v[3]).To4(), net.IPv4len, nil
	})
)

// FixedBytes decodes exactly n bytes. The returned slice is a copy.
func FixedBytes(n int) Decoder {
	return DecoderFunc(func(st *State, b bytebuffer.B, off int) (Value, int, error) {
		v, err := b.Bytes(off, n)
		if err != nil {
			return nil, 0, err
		}
		return append([]byte(nil), v...), n, nil
	})
}

// FixedString decodes exactly n bytes as a string.
func FixedString(n int) Decoder {
	return DecoderFunc(func(st *State, b bytebuffer.B, off int) (Value, int, error) {
		v, err := b.Bytes(off, n)
		if err != nil {
			return nil, 0, err
		}
		return string(v), n, nil
	})
}

// CountedBytes decodes a byte slice whose length is given by count, evaluated
// against the enclosing record. The returned slice is a copy.
//
// The length is bounded by the view, not by State.MaxCount.
func CountedBytes(count CountFunc) Decoder {
	return DecoderFunc(func(st *State, b bytebuffer.B, off int) (Value, int, error) {
		n, err := count(st.record)
		if err != nil {
			return nil, 0, err
		}
		v, err := b.Bytes(off, n)
		if err != nil {
			return nil, 0, err
		}
		return append([]byte(nil), v...), n, nil
	})
}
