// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package structdec

import (
	"bytes"
	"fmt"
)

// Value is a decoded value.
//
// Primitive decoders produce Go scalars (uint8, uint16, uint32, uint64,
// int32), []byte, string, net.IP or EnumValue. Struct decoders produce *Record,
// and array fields produce []Value.
type Value interface{}

// Record is the result of decoding a Struct: an ordered set of named values.
//
// Record preserves the order in which fields were added.
type Record struct {
	names  []string
	values map[string]Value
}

// NewRecord returns an empty Record.
func NewRecord() *Record {
	return &Record{
		values: make(map[string]Value),
	}
}

// Set adds or replaces the value of the named field.
func (r *Record) Set(name string, v Value) {
	if _, ok := r.values[name]; !ok {
		r.names = append(r.names, name)
	}
	r.values[name] = v
}

// Names returns the field names in decode order.
func (r *Record) Names() []string { return append([]string(nil), r.names...) }

// Len returns the number of fields in the record.
func (r *Record) Len() int { return len(r.names) }

// Get returns the value of the named field.
//
// The second return value is false if the field is absent. Absence is not an
// error: variant records only carry the fields that apply to them.
func (r *Record) Get(name string) (Value, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Uint returns the named field as an unsigned integer.
//
// EnumValue fields return their raw value. The second return value is false if
// the field is absent or is not integral.
func (r *Record) Uint(name string) (uint64, bool) {
	switch v := r.values[name].(type) {
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	case int32:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case EnumValue:
		return v.Raw, true
	default:
		return 0, false
	}
}

// String returns the named field as a string.
//
// EnumValue fields return their symbolic name.
func (r *Record) String(name string) (string, bool) {
	switch v := r.values[name].(type) {
	case string:
		return v, true
	case EnumValue:
		return v.Name, true
	default:
		return "", false
	}
}

// Enum returns the named field as an EnumValue.
func (r *Record) Enum(name string) (EnumValue, bool) {
	v, ok := r.values[name].(EnumValue)
	return v, ok
}

// Record returns the named field as a nested Record.
func (r *Record) Record(name string) (*Record, bool) {
	v, ok := r.values[name].(*Record)
	return v, ok && v != nil
}

// List returns the named array field.
func (r *Record) List(name string) ([]Value, bool) {
	v, ok := r.values[name].([]Value)
	return v, ok
}

// Format renders the record for diagnostics.
func (r *Record) Format() string {
	var buf bytes.Buffer
	r.format(&buf)
	return buf.String()
}

func (r *Record) format(buf *bytes.Buffer) {
	buf.WriteByte('{')
	for i, name := range r.names {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(name)
		buf.WriteString(": ")
		formatValue(buf, r.values[name])
	}
	buf.WriteByte('}')
}

func formatValue(buf *bytes.Buffer, v Value) {
	switch t := v.(type) {
	case *Record:
		t.format(buf)
	case []Value:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteString(", ")
			}
			formatValue(buf, e)
		}
		buf.WriteByte(']')
	case []byte:
		fmt.Fprintf(buf, "%q", t)
	case string:
		fmt.Fprintf(buf, "%q", t)
	default:
		fmt.Fprintf(buf, "%v", t)
	}
}
