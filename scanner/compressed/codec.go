// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package compressed

import (
	"io"
	"io/ioutil"

	"github.com/danjacques/gosift/filetype"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// codec decompresses a single container type.
type codec struct {
	typ string
	// exts are file name extensions that the container is stored with, and
	// their replacements.
	exts map[string]string

	// valid returns true if prefix starts with a plausible container header.
	// The container's magic number has already been matched.
	valid func(prefix []byte) bool
	open  func(r io.Reader) (io.ReadCloser, error)
}

var codecs = map[string]*codec{
	filetype.Gzip: {
		typ:   filetype.Gzip,
		exts:  map[string]string{".gz": "", ".gzip": "", ".tgz": ".tar"},
		valid: validGzip,
		open: func(r io.Reader) (io.ReadCloser, error) {
			zr, err := gzip.NewReader(r)
			if err != nil {
				return nil, err
			}
			return zr, nil
		},
	},

	filetype.Zstd: {
		typ:   filetype.Zstd,
		exts:  map[string]string{".zst": "", ".zstd": "", ".tzst": ".tar"},
		valid: validZstd,
		open: func(r io.Reader) (io.ReadCloser, error) {
			d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, err
			}
			return d.IOReadCloser(), nil
		},
	},

	filetype.LZ4: {
		typ:   filetype.LZ4,
		exts:  map[string]string{".lz4": ""},
		valid: validLZ4,
		open: func(r io.Reader) (io.ReadCloser, error) {
			return ioutil.NopCloser(lz4.NewReader(r)), nil
		},
	},

	filetype.SnappyFramed: {
		typ:   filetype.SnappyFramed,
		exts:  map[string]string{".sz": "", ".snappy": ""},
		valid: func([]byte) bool { return true },
		open: func(r io.Reader) (io.ReadCloser, error) {
			return ioutil.NopCloser(snappy.NewReader(r)), nil
		},
	},
}

// validGzip checks for the deflate method and no reserved flags.
func validGzip(prefix []byte) bool {
	return len(prefix) >= 10 && prefix[2] == 8 && prefix[3]&0xe0 == 0
}

// validZstd checks that the frame header descriptor's reserved bit is clear.
func validZstd(prefix []byte) bool {
	return len(prefix) >= 5 && prefix[4]&0x08 == 0
}

// validLZ4 checks the frame version, the reserved bits, and the block
// maximum size.
func validLZ4(prefix []byte) bool {
	if len(prefix) < 7 {
		return false
	}
	flg, bd := prefix[4], prefix[5]
	if flg>>6 != 1 || flg&0x02 != 0 {
		return false
	}
	return bd&0x8f == 0 && (bd>>4)&0x07 >= 4
}
