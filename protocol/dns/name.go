// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package dns

import (
	"fmt"

	"github.com/danjacques/gosift/structdec"
	"github.com/danjacques/gosift/support/bytebuffer"

	"github.com/pkg/errors"
)

const (
	// DefaultMaxNameLength is the maximum number of bytes a decoded name may
	// grow to before decoding stops.
	DefaultMaxNameLength = 1000

	// DefaultMaxPointerJumps is the maximum number of compression pointers
	// that will be followed while decoding a single name.
	DefaultMaxPointerJumps = 10
)

// PointerMode selects how compression pointers are recognized in names.
type PointerMode int

const (
	// LegacyPointers treats only a length byte of exactly 0xC0 as a
	// compression pointer, and the byte that follows it as the absolute
	// offset of the rest of the name.
	//
	// This matches the behavior of the decoder this package replaces. It
	// mis-reads pointers to offsets above 0xFF and any pointer whose first
	// byte is 0xC1-0xFF.
	LegacyPointers PointerMode = iota

	// RFC1035Pointers treats any length byte with its two high bits set as a
	// compression pointer with a 14-bit offset, and rejects the reserved
	// 0x40 and 0x80 label types.
	RFC1035Pointers
)

func (pm PointerMode) String() string {
	switch pm {
	case LegacyPointers:
		return "legacy"
	case RFC1035Pointers:
		return "rfc1035"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(pm))
	}
}

// ParsePointerMode parses the String form of a PointerMode.
func ParsePointerMode(v string) (PointerMode, error) {
	switch v {
	case "legacy", "":
		return LegacyPointers, nil
	case "rfc1035":
		return RFC1035Pointers, nil
	default:
		return 0, errors.Errorf("unknown pointer mode %q", v)
	}
}

// NameDecoder decodes DNS names, following compression pointers.
//
// NameDecoder implements structdec.Decoder. The view it decodes from must be
// anchored at the start of the DNS message, since compression pointers are
// absolute offsets within it.
//
// The zero value uses LegacyPointers and the default limits.
type NameDecoder struct {
	// Mode selects how compression pointers are recognized.
	Mode PointerMode

	// MaxLength bounds the decoded name length. If <= 0,
	// DefaultMaxNameLength is used.
	MaxLength int
	// MaxJumps bounds the number of compression pointers followed. If <= 0,
	// DefaultMaxPointerJumps is used.
	MaxJumps int
}

var _ structdec.Decoder = (*NameDecoder)(nil)

func (nd *NameDecoder) maxLength() int {
	if nd.MaxLength <= 0 {
		return DefaultMaxNameLength
	}
	return nd.MaxLength
}

func (nd *NameDecoder) maxJumps() int {
	if nd.MaxJumps <= 0 {
		return DefaultMaxPointerJumps
	}
	return nd.MaxJumps
}

// Decode implements structdec.Decoder. The decoded value is a string of
// dot-terminated labels, for example "mail.google.com.".
func (nd *NameDecoder) Decode(st *structdec.State, b bytebuffer.B, off int) (structdec.Value, int, error) {
	view, err := b.From(off)
	if err != nil {
		return nil, 0, err
	}
	name, n, err := nd.DecodeName(view)
	if err != nil {
		return nil, 0, err
	}
	return name, n, nil
}

// DecodeName decodes the name at the start of view.
//
// It returns the name and the number of bytes the name occupies at the start
// of view. When a compression pointer is followed, only the bytes up to and
// including the first pointer count; bytes reached through pointers belong to
// other fields.
//
// Decoding stops, without error, before a label that would take the name
// past MaxLength bytes, or once MaxJumps pointers have been followed. This
// bounds the work done on pointer cycles.
func (nd *NameDecoder) DecodeName(view bytebuffer.B) (string, int, error) {
	var (
		name   []byte
		offset = 0
		pos    = -1 // Position of the byte after the first pointer byte.
		jumps  = 0

		maxLength = nd.maxLength()
		maxJumps  = nd.maxJumps()
	)

	cur := view
	for len(name) < maxLength && jumps < maxJumps {
		length, err := cur.Byte(offset)
		if err != nil {
			return "", 0, err
		}
		if length == 0 {
			break
		}

		if target, ok, err := nd.pointerTarget(cur, offset, length); err != nil {
			return "", 0, err
		} else if ok {
			if pos < 0 {
				pos = offset + 1
			}

			if cur, err = cur.Rebase(target); err != nil {
				return "", 0, err
			}
			offset = 0
			jumps++
			continue
		}

		label, err := cur.Bytes(offset+1, int(length))
		if err != nil {
			return "", 0, err
		}
		if len(name)+len(label)+1 > maxLength {
			break
		}
		name = append(name, label...)
		name = append(name, '.')
		offset += 1 + int(length)
	}

	if pos >= 0 {
		return string(name), pos + 1, nil
	}
	return string(name), offset + 1, nil
}

// pointerTarget returns the absolute target of a compression pointer whose
// first byte, length, is at offset in cur. ok is false if length does not
// introduce a pointer.
func (nd *NameDecoder) pointerTarget(cur bytebuffer.B, offset int, length byte) (target int, ok bool, err error) {
	switch nd.Mode {
	case RFC1035Pointers:
		switch length & 0xC0 {
		case 0x00:
			return 0, false, nil
		case 0xC0:
			lo, err := cur.Byte(offset + 1)
			if err != nil {
				return 0, false, err
			}
			return int(length&0x3F)<<8 | int(lo), true, nil
		default:
			return 0, false, errors.Wrapf(ErrMalformed, "reserved label type 0x%02x", length&0xC0)
		}

	default:
		if length != 0xC0 {
			return 0, false, nil
		}
		lo, err := cur.Byte(offset + 1)
		if err != nil {
			return 0, false, err
		}
		return int(lo), true, nil
	}
}
