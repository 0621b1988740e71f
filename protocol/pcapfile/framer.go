// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package pcapfile

import (
	"github.com/pkg/errors"
)

// DefaultMaxRecordSize is the default bound on a record's captured length.
const DefaultMaxRecordSize = 1 << 20

// ErrRecordTooLarge is returned by Framer when a record header declares a
// captured length larger than its bound.
var ErrRecordTooLarge = errors.New("record too large")

// Record is a single framed record.
type Record struct {
	RecordHeader

	// Data is the record's captured bytes. It is only valid until the next
	// call to Framer.Write.
	Data []byte
}

// Framer splits a capture file into records as its bytes arrive in
// arbitrarily-sized chunks.
//
// Bytes are added with Write, and complete records are consumed with Next.
type Framer struct {
	// MaxRecordSize bounds the captured length of a single record. If <= 0,
	// DefaultMaxRecordSize will be used.
	MaxRecordSize int

	header *Header
	buf    []byte
	off    int
	count  int64
}

// Header returns the parsed file header, or nil if it has not been received
// yet.
func (f *Framer) Header() *Header { return f.header }

// Count returns the number of records that have been framed.
func (f *Framer) Count() int64 { return f.count }

// Write appends data to the Framer's pending bytes.
func (f *Framer) Write(data []byte) (int, error) {
	// Compact consumed bytes.
	if f.off > 0 {
		n := copy(f.buf, f.buf[f.off:])
		f.buf, f.off = f.buf[:n], 0
	}
	f.buf = append(f.buf, data...)
	return len(data), nil
}

// Next returns the next complete record.
//
// ok is false if more bytes are needed. A non-nil error is permanent.
func (f *Framer) Next() (rec Record, ok bool, err error) {
	pending := f.buf[f.off:]

	if f.header == nil {
		if len(pending) < FileHeaderSize {
			return
		}
		if f.header, err = ParseHeader(pending); err != nil {
			return
		}
		f.off += FileHeaderSize
		pending = pending[FileHeaderSize:]
	}

	if len(pending) < RecordHeaderSize {
		return
	}
	if rec.RecordHeader, err = f.header.ParseRecordHeader(pending); err != nil {
		return
	}

	maxSize := f.MaxRecordSize
	if maxSize <= 0 {
		maxSize = DefaultMaxRecordSize
	}
	if int64(rec.InclLen) > int64(maxSize) {
		err = errors.Wrapf(ErrRecordTooLarge, "record %d captured length %d exceeds %d",
			f.count, rec.InclLen, maxSize)
		return
	}

	end := RecordHeaderSize + int(rec.InclLen)
	if len(pending) < end {
		return
	}
	rec.Data = pending[RecordHeaderSize:end:end]
	f.off += end
	f.count++
	ok = true
	return
}

// Remaining returns the number of received bytes that have not been framed.
func (f *Framer) Remaining() int { return len(f.buf) - f.off }
