// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package pcapfile reads and writes the headers of libpcap capture files.
//
// A capture file is a 24-byte file header followed by records, each a 16-byte
// record header and the captured bytes. The file header's magic number selects
// both the byte order of every other header field and the resolution of record
// timestamps.
package pcapfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	// FileHeaderSize is the size of a capture file header.
	FileHeaderSize = 24
	// RecordHeaderSize is the size of a record header.
	RecordHeaderSize = 16

	// MagicMicroseconds is the magic of a file with microsecond timestamps.
	MagicMicroseconds = 0xa1b2c3d4
	// MagicNanoseconds is the magic of a file with nanosecond timestamps.
	MagicNanoseconds = 0xa1b23c4d

	// LinkTypeEthernet is the Ethernet link type.
	LinkTypeEthernet = 1
)

// ErrBadMagic is returned when a file header does not start with a known
// magic number.
var ErrBadMagic = errors.New("not a pcap file")

// Resolution is the resolution of record timestamps.
type Resolution int

const (
	// Microseconds is microsecond timestamp resolution.
	Microseconds Resolution = iota
	// Nanoseconds is nanosecond timestamp resolution.
	Nanoseconds
)

func (r Resolution) String() string {
	switch r {
	case Microseconds:
		return "MICROSECONDS"
	case Nanoseconds:
		return "NANOSECONDS"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", r)
	}
}

// unit returns the duration of one fractional timestamp unit.
func (r Resolution) unit() time.Duration {
	if r == Nanoseconds {
		return time.Nanosecond
	}
	return time.Microsecond
}

// FileHeaderFields is the on-disk layout of a capture file header.
//
// /**
//  * uint32 magic_number;
//  * uint16 version_major;
//  * uint16 version_minor;
//  * int32  thiszone;
//  * uint32 sigfigs;
//  * uint32 snaplen;
//  * uint32 network;
//  */
type FileHeaderFields struct {
	Magic        uint32
	VersionMajor uint16
	VersionMinor uint16
	ThisZone     int32
	SigFigs      uint32
	SnapLen      uint32
	LinkType     uint32
}

// Header is a parsed capture file header.
type Header struct {
	FileHeaderFields

	// Order is the byte order of every header field in the file.
	Order binary.ByteOrder
	// Resolution is the resolution of record timestamps.
	Resolution Resolution

	// raw is the header exactly as it appeared in the file.
	raw []byte
}

// NewHeader builds a version 2.4 header.
func NewHeader(order binary.ByteOrder, res Resolution, snapLen, linkType uint32) *Header {
	h := Header{
		FileHeaderFields: FileHeaderFields{
			Magic:        MagicMicroseconds,
			VersionMajor: 2,
			VersionMinor: 4,
			SnapLen:      snapLen,
			LinkType:     linkType,
		},
		Order:      order,
		Resolution: res,
	}
	if res == Nanoseconds {
		h.Magic = MagicNanoseconds
	}

	var buf bytes.Buffer
	if err := struc.PackWithOptions(&buf, &h.FileHeaderFields, &struc.Options{Order: order}); err != nil {
		panic(errors.Wrap(err, "packing file header"))
	}
	h.raw = buf.Bytes()
	return &h
}

// ParseHeader parses a file header from raw, which must hold at least
// FileHeaderSize bytes.
func ParseHeader(raw []byte) (*Header, error) {
	if len(raw) < FileHeaderSize {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "file header is %d bytes", len(raw))
	}
	raw = raw[:FileHeaderSize]

	h := Header{
		raw: append([]byte(nil), raw...),
	}
	switch binary.LittleEndian.Uint32(raw) {
	case MagicMicroseconds:
		h.Order, h.Resolution = binary.LittleEndian, Microseconds
	case MagicNanoseconds:
		h.Order, h.Resolution = binary.LittleEndian, Nanoseconds
	default:
		switch binary.BigEndian.Uint32(raw) {
		case MagicMicroseconds:
			h.Order, h.Resolution = binary.BigEndian, Microseconds
		case MagicNanoseconds:
			h.Order, h.Resolution = binary.BigEndian, Nanoseconds
		default:
			return nil, errors.Wrapf(ErrBadMagic, "magic 0x%08x", binary.BigEndian.Uint32(raw))
		}
	}

	if err := struc.UnpackWithOptions(bytes.NewReader(raw), &h.FileHeaderFields, h.options()); err != nil {
		return nil, errors.Wrap(err, "could not unpack file header")
	}
	return &h, nil
}

// ReadHeader reads and parses a file header from r.
func ReadHeader(r io.Reader) (*Header, error) {
	raw := make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, errors.Wrap(err, "reading file header")
	}
	return ParseHeader(raw)
}

// IsHeader returns true if prefix starts with a capture file magic number.
func IsHeader(prefix []byte) bool {
	if len(prefix) < 4 {
		return false
	}
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		switch order.Uint32(prefix) {
		case MagicMicroseconds, MagicNanoseconds:
			return true
		}
	}
	return false
}

func (h *Header) options() *struc.Options { return &struc.Options{Order: h.Order} }

// Bytes returns the header exactly as it was parsed or built.
func (h *Header) Bytes() []byte { return append([]byte(nil), h.raw...) }

// WriteTo writes the raw header to w.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(h.raw)
	return int64(n), err
}

func (h *Header) String() string {
	return fmt.Sprintf("pcap v%d.%d (%s, %s, snaplen %d, link %d)",
		h.VersionMajor, h.VersionMinor, h.Order, h.Resolution, h.SnapLen, h.LinkType)
}

// RecordHeader is the on-disk layout of a record header.
//
// /**
//  * uint32 ts_sec;
//  * uint32 ts_usec; // or ts_nsec
//  * uint32 incl_len;
//  * uint32 orig_len;
//  */
type RecordHeader struct {
	TsSec   uint32
	TsFrac  uint32
	InclLen uint32
	OrigLen uint32
}

// Timestamp returns the record's capture time, interpreting TsFrac at res.
func (rh *RecordHeader) Timestamp(res Resolution) time.Time {
	return time.Unix(int64(rh.TsSec), int64(rh.TsFrac)*int64(res.unit())).UTC()
}

// ParseRecordHeader parses a record header from raw, which must hold at least
// RecordHeaderSize bytes.
func (h *Header) ParseRecordHeader(raw []byte) (RecordHeader, error) {
	var rh RecordHeader
	if len(raw) < RecordHeaderSize {
		return rh, errors.Wrapf(io.ErrUnexpectedEOF, "record header is %d bytes", len(raw))
	}
	if err := struc.UnpackWithOptions(bytes.NewReader(raw[:RecordHeaderSize]), &rh, h.options()); err != nil {
		return rh, errors.Wrap(err, "could not unpack record header")
	}
	return rh, nil
}

// MakeRecordHeader builds the record header for a packet captured at ts
// with the supplied lengths, at h's resolution.
func (h *Header) MakeRecordHeader(ts time.Time, inclLen, origLen int) RecordHeader {
	return RecordHeader{
		TsSec:   uint32(ts.Unix()),
		TsFrac:  uint32(time.Duration(ts.Nanosecond()) / h.Resolution.unit()),
		InclLen: uint32(inclLen),
		OrigLen: uint32(origLen),
	}
}

// WriteRecord writes a record header and data to w in h's byte order and
// resolution, returning the number of bytes written.
//
// If origLen is less than len(data), len(data) is used.
func (h *Header) WriteRecord(w io.Writer, ts time.Time, origLen int, data []byte) (int, error) {
	if origLen < len(data) {
		origLen = len(data)
	}
	return h.WriteRecordHeader(w, h.MakeRecordHeader(ts, len(data), origLen), data)
}

// WriteRecordHeader writes rh and data to w in h's byte order, returning the
// number of bytes written. rh is written as it is, except that InclLen is set
// to len(data).
func (h *Header) WriteRecordHeader(w io.Writer, rh RecordHeader, data []byte) (int, error) {
	rh.InclLen = uint32(len(data))

	var buf bytes.Buffer
	buf.Grow(RecordHeaderSize + len(data))
	if err := struc.PackWithOptions(&buf, &rh, h.options()); err != nil {
		return 0, errors.Wrap(err, "could not pack record header")
	}
	buf.Write(data)

	n, err := w.Write(buf.Bytes())
	if err != nil {
		return n, errors.Wrap(err, "writing record")
	}
	return n, nil
}
