// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package pcapmerge

import (
	"bufio"
	"os"
	"strconv"
	"time"

	"github.com/danjacques/gosift/protocol/pcapfile"
	"github.com/danjacques/gosift/support/dataio"
	"github.com/danjacques/gosift/support/logging"
	"github.com/danjacques/gosift/support/stagingdir"

	"github.com/pkg/errors"
)

// OutputPath returns the path of the n'th output file of a merge into path.
//
// The first output file is path itself. Continuations are suffixed with
// their number.
func OutputPath(path string, n int) string {
	if n == 0 {
		return path
	}
	return path + strconv.Itoa(n)
}

// splitWriter writes records to a sequence of staged output files, starting
// a new file whenever the current one would grow past split bytes.
type splitWriter struct {
	l      logging.L
	output string
	split  int64
	header *pcapfile.Header
	sd     *stagingdir.D

	files   int
	f       *os.File
	bw      *bufio.Writer
	cw      dataio.CountingWriter
	records int64
}

func (sw *splitWriter) start() error {
	name := strconv.Itoa(sw.files)
	f, err := sw.sd.Create(name)
	if err != nil {
		return err
	}
	sw.f, sw.files, sw.records = f, sw.files+1, 0
	sw.bw = bufio.NewWriter(f)
	sw.cw = dataio.CountingWriter{Writer: sw.bw}

	if _, err := sw.header.WriteTo(&sw.cw); err != nil {
		return errors.Wrapf(err, "writing header of output %d", sw.files-1)
	}
	sw.l.Infof("Starting output file %q.", OutputPath(sw.output, sw.files-1))
	return nil
}

func (sw *splitWriter) finishCurrent() error {
	if sw.f == nil {
		return nil
	}
	f := sw.f
	sw.f = nil

	if err := sw.bw.Flush(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "flushing output")
	}
	return errors.Wrap(f.Close(), "closing output")
}

// write writes a single record, keeping its original length as it is. It
// returns the number of bytes written.
func (sw *splitWriter) write(ts time.Time, origLen int, data []byte) (int, error) {
	if sw.f == nil {
		if err := sw.start(); err != nil {
			return 0, err
		}
	}

	size := int64(pcapfile.RecordHeaderSize + len(data))
	if sw.records > 0 && sw.cw.Count+size > sw.split {
		if err := sw.finishCurrent(); err != nil {
			return 0, err
		}
		if err := sw.start(); err != nil {
			return 0, err
		}
	}

	rh := sw.header.MakeRecordHeader(ts, len(data), origLen)
	n, err := sw.header.WriteRecordHeader(&sw.cw, rh, data)
	if err != nil {
		return n, errors.Wrap(err, "writing record")
	}
	sw.records++
	return n, nil
}

// commit moves every output file into place and returns their paths.
func (sw *splitWriter) commit() ([]string, error) {
	if sw.files == 0 {
		if err := sw.start(); err != nil {
			return nil, err
		}
	}
	if err := sw.finishCurrent(); err != nil {
		return nil, err
	}

	paths := make([]string, sw.files)
	for i := range paths {
		paths[i] = OutputPath(sw.output, i)
		if err := sw.sd.Commit(strconv.Itoa(i), paths[i]); err != nil {
			return paths[:i], err
		}
		outputFiles.Inc()
	}
	return paths, nil
}

// abort discards all uncommitted output.
func (sw *splitWriter) abort() {
	if err := sw.finishCurrent(); err != nil {
		sw.l.Debugf("Error finishing aborted output: %s", err)
	}
	if err := sw.sd.Destroy(); err != nil {
		sw.l.Warnf("Could not remove staging directory: %s", err)
	}
}
