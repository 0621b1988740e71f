// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package structdec

import (
	"github.com/danjacques/gosift/support/bytebuffer"

	"github.com/pkg/errors"
)

// Field describes a single named field of a Struct.
type Field struct {
	// Name is the name of the field in the decoded Record.
	Name string
	// Decoder decodes the field. If Count is set, it decodes each element.
	Decoder Decoder
	// Count, if not nil, makes this field an array of Count elements, evaluated
	// against the fields decoded before it.
	Count CountFunc
}

// ExtendFunc decodes variant fields after a Struct's fixed fields.
//
// It is called with the record decoded so far and the offset immediately
// following the last fixed field, and returns the offset at which the struct
// ends. Fields it adds should be added to rec.
type ExtendFunc func(st *State, rec *Record, b bytebuffer.B, off int) (int, error)

// Struct decodes an ordered list of fields into a *Record.
type Struct struct {
	// Name is used to annotate errors.
	Name string
	// Fields are decoded in order, each starting where the previous one ended.
	Fields []Field
	// Extend, if not nil, is called after Fields have been decoded.
	Extend ExtendFunc
}

// Decode implements Decoder.
func (s *Struct) Decode(st *State, b bytebuffer.B, off int) (Value, int, error) {
	rec := NewRecord()

	// Count functions are evaluated against the innermost record.
	parent := st.record
	st.record = rec
	defer func() { st.record = parent }()

	start := off
	for _, f := range s.Fields {
		var (
			v   Value
			n   int
			err error
		)
		if f.Count != nil {
			v, n, err = decodeArray(st, f.Decoder, f.Count, b, off)
		} else {
			v, n, err = f.Decoder.Decode(st, b, off)
		}
		if err != nil {
			return nil, 0, errors.Wrap(err, f.Name)
		}

		rec.Set(f.Name, v)
		off += n
	}

	if s.Extend != nil {
		end, err := s.Extend(st, rec, b, off)
		if err != nil {
			if s.Name != "" {
				return nil, 0, errors.Wrap(err, s.Name)
			}
			return nil, 0, err
		}
		if end < off {
			return nil, 0, errors.Errorf("%s: extension moved offset backwards (%d < %d)", s.Name, end, off)
		}
		off = end
	}

	return rec, off - start, nil
}

// Array decodes Count consecutive elements.
//
// The count is evaluated against the record enclosing the array, so an Array
// must be used as a field of a Struct unless Count ignores its argument.
type Array struct {
	Elem  Decoder
	Count CountFunc
}

// Decode implements Decoder.
func (a *Array) Decode(st *State, b bytebuffer.B, off int) (Value, int, error) {
	return decodeArray(st, a.Elem, a.Count, b, off)
}

func decodeArray(st *State, elem Decoder, count CountFunc, b bytebuffer.B, off int) (Value, int, error) {
	n, err := st.evalCount(count)
	if err != nil {
		return nil, 0, err
	}

	// Don't trust n for the allocation.
	capacity := n
	if rem := b.Len() - off; capacity > rem {
		capacity = rem
	}
	if capacity < 0 {
		capacity = 0
	}
	values := make([]Value, 0, capacity)

	start := off
	for i := 0; i < n; i++ {
		v, consumed, err := elem.Decode(st, b, off)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "[%d]", i)
		}
		values = append(values, v)
		off += consumed
	}
	return values, off - start, nil
}
