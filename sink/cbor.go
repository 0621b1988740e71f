// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package sink

import (
	"bufio"
	"io"
	"os"
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	if cborEncMode, err = encOptions.EncMode(); err != nil {
		panic(errors.Wrap(err, "CBOR encoder initialization"))
	}

	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic(errors.Wrap(err, "CBOR decoder initialization"))
	}
}

// Entry is a single record in a CBOR log.
type Entry struct {
	Table string `cbor:"table"`
	Row   Row    `cbor:"row"`
}

// CBORLog is a Sink that appends each row to a file as a sequence of CBOR
// data items (RFC 8742).
type CBORLog struct {
	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer
	enc *cbor.Encoder
}

var _ Sink = (*CBORLog)(nil)

// CreateCBORLog creates (truncating) a CBOR log at path.
func CreateCBORLog(path string) (*CBORLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating CBOR log %q", path)
	}

	buf := bufio.NewWriter(f)
	return &CBORLog{
		f:   f,
		buf: buf,
		enc: cborEncMode.NewEncoder(buf),
	}, nil
}

// Insert implements Sink.
func (l *CBORLog) Insert(table string, row Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.enc == nil {
		return errors.New("log is closed")
	}
	if err := l.enc.Encode(&Entry{Table: table, Row: row}); err != nil {
		return errors.Wrapf(err, "encoding row for %q", table)
	}
	return nil
}

// Close implements Sink.
func (l *CBORLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.enc == nil {
		return nil
	}
	l.enc = nil

	if err := l.buf.Flush(); err != nil {
		_ = l.f.Close()
		return errors.Wrap(err, "flushing CBOR log")
	}
	return l.f.Close()
}

// ReadCBORLog reads every Entry from a CBOR log.
func ReadCBORLog(r io.Reader) ([]Entry, error) {
	dec := cborDecMode.NewDecoder(r)

	var entries []Entry
	for {
		var e Entry
		switch err := dec.Decode(&e); err {
		case nil:
			entries = append(entries, e)
		case io.EOF:
			return entries, nil
		default:
			return entries, errors.Wrapf(err, "decoding entry %d", len(entries))
		}
	}
}
