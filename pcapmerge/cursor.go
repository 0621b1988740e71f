// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package pcapmerge

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/danjacques/gosift/protocol/pcapfile"
	"github.com/danjacques/gosift/support/logging"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// cursor is the read position within a single input.
//
// A cursor does not own an open file. Its handle lives in a handleCache, and
// may be closed and reopened between reads.
type cursor struct {
	// seq is the input's position on the command line. It breaks timestamp
	// ties and keys the input's handle.
	seq  int
	path string

	// header is the input's file header, or nil if the input has never been
	// opened.
	header *pcapfile.Header
	// offset is the file offset of the next unread record.
	offset int64

	// ts, origLen and data are the pending packet.
	ts      time.Time
	origLen int
	data    []byte
}

// cursorLess orders cursors by the timestamp of their pending packet, then by
// input order.
func cursorLess(a, b *cursor) bool {
	if !a.ts.Equal(b.ts) {
		return a.ts.Before(b.ts)
	}
	return a.seq < b.seq
}

// advance reads the input's next packet into the cursor.
//
// Records are taken as they are. A captured length above the file's snap
// length or the original length is kept, as long as it is within
// pcapfile.DefaultMaxRecordSize.
//
// advance returns io.EOF when the input is exhausted.
func (c *cursor) advance(hc *handleCache) error {
	h, err := hc.get(c)
	if err != nil {
		return err
	}

	var raw [pcapfile.RecordHeaderSize]byte
	if _, err := io.ReadFull(h.br, raw[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return errors.Wrap(err, "truncated record header")
		}
		return err
	}
	rh, err := c.header.ParseRecordHeader(raw[:])
	if err != nil {
		return err
	}
	if rh.InclLen > pcapfile.DefaultMaxRecordSize {
		return errors.Wrapf(pcapfile.ErrRecordTooLarge, "captured length %d at offset %d", rh.InclLen, c.offset)
	}

	data := make([]byte, rh.InclLen)
	if _, err := io.ReadFull(h.br, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return errors.Wrap(err, "truncated record")
	}

	c.ts, c.origLen, c.data = rh.Timestamp(c.header.Resolution), int(rh.OrigLen), data
	c.offset += int64(pcapfile.RecordHeaderSize) + int64(rh.InclLen)
	return nil
}

// attach prepares f, a newly-opened handle to the cursor's input, to read at
// the cursor's offset.
//
// The first time an input is attached its file header is read and retained.
// Later attachments seek straight to the next unread record.
func (c *cursor) attach(f *os.File) (*handle, error) {
	if c.header == nil {
		hdr, err := pcapfile.ReadHeader(f)
		if err != nil {
			return nil, err
		}
		c.header, c.offset = hdr, pcapfile.FileHeaderSize
	} else if _, err := f.Seek(c.offset, io.SeekStart); err != nil {
		return nil, errors.Wrapf(err, "seeking to offset %d", c.offset)
	}
	return &handle{f: f, br: bufio.NewReader(f)}, nil
}

// handle is an open input.
type handle struct {
	f  *os.File
	br *bufio.Reader
}

// handleCache holds a bounded number of open inputs, closing the least
// recently used when full.
type handleCache struct {
	l     logging.L
	size  int
	cache *lru.Cache

	live int
	peak int
}

func newHandleCache(size int, l logging.L) (*handleCache, error) {
	hc := handleCache{
		l:    l,
		size: size,
	}

	var err error
	if hc.cache, err = lru.NewWithEvict(size, hc.onEvict); err != nil {
		return nil, errors.Wrap(err, "creating handle cache")
	}
	return &hc, nil
}

func (hc *handleCache) onEvict(key, value interface{}) {
	h := value.(*handle)
	if err := h.f.Close(); err != nil {
		hc.l.Debugf("Error closing %q: %s", h.f.Name(), err)
	}
	hc.live--
	handlesClosed.Inc()
}

// get returns c's open handle, opening it if necessary.
func (hc *handleCache) get(c *cursor) (*handle, error) {
	if v, ok := hc.cache.Get(c.seq); ok {
		return v.(*handle), nil
	}

	// Make room before opening, so that no more than size files are ever
	// open.
	if hc.cache.Len() >= hc.size {
		hc.cache.RemoveOldest()
	}

	f, err := os.Open(c.path)
	if err != nil {
		return nil, errors.Wrap(err, "opening input")
	}
	h, err := c.attach(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	hc.cache.Add(c.seq, h)
	if hc.live++; hc.live > hc.peak {
		hc.peak = hc.live
	}
	hc.l.Debugf("Opened %q at offset %d (%d open).", c.path, c.offset, hc.live)
	return h, nil
}

// release closes c's handle, if it is open.
func (hc *handleCache) release(c *cursor) { hc.cache.Remove(c.seq) }

// purge closes every open handle.
func (hc *handleCache) purge() { hc.cache.Purge() }
