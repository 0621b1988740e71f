// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package pcapmerge merges packet capture files into chronological order.
//
// Each input is assumed to be ordered by time. The Merger performs a k-way
// merge over the inputs, holding at most MaxOpen of them open at once, and
// writes the result to one or more size-bounded output files.
package pcapmerge

import (
	"context"
	"io"
	"path/filepath"

	"github.com/danjacques/gosift/support/fmtutil"
	"github.com/danjacques/gosift/support/logging"
	"github.com/danjacques/gosift/support/stagingdir"

	"github.com/pkg/errors"
	"github.com/tidwall/btree"
)

const (
	// DefaultMaxOpen is the default maximum number of open inputs.
	DefaultMaxOpen = 5

	// DefaultSplitSize is the default size at which output files are split.
	DefaultSplitSize = 2000000000
)

// ErrNoInputs is returned by Merge when none of its inputs could be read.
var ErrNoInputs = errors.New("no readable inputs")

// Merger merges capture files.
type Merger struct {
	// Logger, if not nil, is used to log merge progress.
	Logger logging.L

	// MaxOpen is the maximum number of inputs that are open at once. If <= 0,
	// DefaultMaxOpen is used.
	MaxOpen int
	// SplitSize is the size that an output file may not grow past, unless it
	// holds a single record. If <= 0, DefaultSplitSize is used.
	SplitSize int64

	// StagingDir is the directory that output files are staged in until the
	// merge succeeds. If empty, the output's directory is used.
	StagingDir string
}

// Result describes a completed merge.
type Result struct {
	// Outputs are the paths of the output files, in order.
	Outputs []string
	// Skipped are the inputs that could not be read at all.
	Skipped []string

	// Packets is the number of packets written.
	Packets int64
	// Bytes is the number of record bytes written, excluding file headers.
	Bytes int64

	// PeakOpen is the largest number of inputs that were open at once.
	PeakOpen int
}

func (m *Merger) maxOpen() int {
	if m.MaxOpen <= 0 {
		return DefaultMaxOpen
	}
	return m.MaxOpen
}

func (m *Merger) splitSize() int64 {
	if m.SplitSize <= 0 {
		return DefaultSplitSize
	}
	return m.SplitSize
}

// Merge merges the packets of inputs into output.
//
// Inputs that cannot be opened, have no valid header, or hold no packets are
// logged and skipped. An input that fails partway through is dropped after
// the packets that were read from it. The output uses the file header of the
// first readable input, and is split into continuation files named by
// OutputPath. Output files are only put into place if the merge succeeds.
func (m *Merger) Merge(ctx context.Context, output string, inputs []string) (*Result, error) {
	l := logging.Must(m.Logger)

	hc, err := newHandleCache(m.maxOpen(), l)
	if err != nil {
		return nil, err
	}
	defer hc.purge()

	var (
		res   Result
		first *cursor
		queue = btree.NewBTreeG[*cursor](cursorLess)
	)
	for i, path := range inputs {
		c := &cursor{seq: i, path: path}
		if err := c.advance(hc); err != nil {
			if err == io.EOF {
				err = errors.New("no packets")
			}
			l.Warnf("Skipping unreadable input %q: %s", path, err)
			inputErrors.Inc()
			hc.release(c)
			res.Skipped = append(res.Skipped, path)
			continue
		}

		if first == nil {
			first = c
		} else if c.header.LinkType != first.header.LinkType {
			l.Warnf("Input %q has link type %d, but output has %d.", path, c.header.LinkType, first.header.LinkType)
		}
		queue.Set(c)
	}
	if first == nil {
		return nil, ErrNoInputs
	}

	header := first.header
	l.Infof("Merging %d input(s) with header %s.", queue.Len(), header)

	stagingParent := m.StagingDir
	if stagingParent == "" {
		stagingParent = filepath.Dir(output)
	}
	sd, err := stagingdir.New(stagingParent, ".pcapmerge")
	if err != nil {
		return nil, err
	}
	sw := splitWriter{
		l:      l,
		output: output,
		split:  m.splitSize(),
		header: header,
		sd:     sd,
	}
	defer sw.abort()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, ok := queue.PopMin()
		if !ok {
			break
		}

		n, err := sw.write(c.ts, c.origLen, c.data)
		if err != nil {
			return nil, err
		}
		res.Packets++
		res.Bytes += int64(n)
		packetsMerged.Inc()
		bytesMerged.Add(float64(n))

		switch err := c.advance(hc); err {
		case nil:
			queue.Set(c)
		case io.EOF:
			l.Debugf("Finished input %q.", c.path)
			hc.release(c)
		default:
			l.Warnf("Dropping input %q after a read error: %s", c.path, err)
			inputErrors.Inc()
			hc.release(c)
		}
	}

	if res.Outputs, err = sw.commit(); err != nil {
		return nil, err
	}
	res.PeakOpen = hc.peak
	l.Infof("Merged %d packet(s) (%s) into %d file(s).", res.Packets, fmtutil.ByteSize(res.Bytes), len(res.Outputs))
	return &res, nil
}
