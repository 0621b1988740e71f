// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package structdec

import (
	"encoding/binary"

	"github.com/danjacques/gosift/support/bytebuffer"

	"github.com/pkg/errors"
)

// DefaultMaxCount is the largest array count accepted when State.MaxCount is
// not set.
const DefaultMaxCount = 65535

// ErrCount is the cause of errors returned when an array count is negative or
// exceeds State.MaxCount.
var ErrCount = errors.New("invalid array count")

// State is the decoding state shared by every decoder beneath a single
// top-level Decode call.
type State struct {
	// Order is the byte order for all primitive decoders. If nil, big-endian
	// is used.
	Order binary.ByteOrder

	// MaxCount bounds the number of elements any array may declare. If <= 0,
	// DefaultMaxCount is used.
	MaxCount int

	// record is the record currently being decoded. Count functions are
	// evaluated against it.
	record *Record
}

func (st *State) order() binary.ByteOrder {
	if st.Order == nil {
		return binary.BigEndian
	}
	return st.Order
}

func (st *State) maxCount() int {
	if st.MaxCount <= 0 {
		return DefaultMaxCount
	}
	return st.MaxCount
}

// Current returns the record currently being decoded, or nil if no Struct is
// being decoded.
func (st *State) Current() *Record { return st.record }

// Decoder decodes a value at off in b.
//
// Decode returns the decoded value and the number of bytes it consumed. It must
// never read outside of b.
type Decoder interface {
	Decode(st *State, b bytebuffer.B, off int) (Value, int, error)
}

// DecoderFunc is a function that implements Decoder.
type DecoderFunc func(st *State, b bytebuffer.B, off int) (Value, int, error)

// Decode implements Decoder.
func (fn DecoderFunc) Decode(st *State, b bytebuffer.B, off int) (Value, int, error) {
	return fn(st, b, off)
}

// Decode decodes d at the start of b using the specified byte order.
func Decode(d Decoder, b bytebuffer.B, order binary.ByteOrder) (Value, int, error) {
	st := State{Order: order}
	return d.Decode(&st, b, 0)
}

// DecodeRecord is Decode for decoders that produce a *Record.
func DecodeRecord(d Decoder, b bytebuffer.B, order binary.ByteOrder) (*Record, int, error) {
	v, n, err := Decode(d, b, order)
	if err != nil {
		return nil, n, err
	}
	rec, ok := v.(*Record)
	if !ok {
		return nil, n, errors.Errorf("decoder produced %T, not a record", v)
	}
	return rec, n, nil
}

// CountFunc returns the number of elements in an array, given the fields of
// the enclosing record that have been decoded so far.
type CountFunc func(r *Record) (int, error)

// CountField returns a CountFunc that reads the count from an earlier integral
// field.
func CountField(name string) CountFunc {
	return func(r *Record) (int, error) {
		if r == nil {
			return 0, errors.Errorf("count field %q referenced outside of a struct", name)
		}
		v, ok := r.Uint(name)
		if !ok {
			return 0, errors.Errorf("count field %q is missing or not an integer", name)
		}
		if v > uint64(int(^uint(0)>>1)) {
			return 0, errors.Wrapf(ErrCount, "count field %q (%d) overflows", name, v)
		}
		return int(v), nil
	}
}

// FixedCount returns a CountFunc that always returns n.
func FixedCount(n int) CountFunc {
	return func(*Record) (int, error) { return n, nil }
}

func (st *State) evalCount(fn CountFunc) (int, error) {
	n, err := fn(st.record)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > st.maxCount() {
		return 0, errors.Wrapf(ErrCount, "count %d outside of [0, %d]", n, st.maxCount())
	}
	return n, nil
}
