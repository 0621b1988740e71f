// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package structdec

import (
	"strconv"

	"github.com/danjacques/gosift/support/bytebuffer"

	"github.com/pkg/errors"
)

// EnumValue is a decoded enumeration.
type EnumValue struct {
	// Raw is the integer that was decoded.
	Raw uint64
	// Name is the symbolic name of Raw. If Raw has no mapping, Name is the
	// decimal rendering of Raw.
	Name string
	// Known is true if Raw was found in the mapping table.
	Known bool
}

func (v EnumValue) String() string { return v.Name }

// Is returns true if v is known and its name is name.
func (v EnumValue) Is(name string) bool { return v.Known && v.Name == name }

// Enum decodes a fixed-width unsigned integer and maps it to a symbolic name.
//
// Values missing from Names do not fail; they decode to an EnumValue named by
// the raw integer.
type Enum struct {
	// Width is the size of the integer in bytes: 1, 2, 4 or 8.
	Width int
	// Names maps raw values to symbolic names.
	Names map[uint64]string
}

// Lookup returns the EnumValue for raw.
func (e *Enum) Lookup(raw uint64) EnumValue {
	if name, ok := e.Names[raw]; ok {
		return EnumValue{Raw: raw, Name: name, Known: true}
	}
	return EnumValue{Raw: raw, Name: strconv.FormatUint(raw, 10)}
}

// Decode implements Decoder.
func (e *Enum) Decode(st *State, b bytebuffer.B, off int) (Value, int, error) {
	var (
		raw uint64
		err error
	)
	switch e.Width {
	case 1:
		var v byte
		v, err = b.Byte(off)
		raw = uint64(v)
	case 2:
		var v uint16
		v, err = b.Uint16(off, st.order())
		raw = uint64(v)
	case 4:
		var v uint32
		v, err = b.Uint32(off, st.order())
		raw = uint64(v)
	case 8:
		raw, err = b.Uint64(off, st.order())
	default:
		return nil, 0, errors.Errorf("unsupported enum width %d", e.Width)
	}
	if err != nil {
		return nil, 0, err
	}
	return e.Lookup(raw), e.Width, nil
}
