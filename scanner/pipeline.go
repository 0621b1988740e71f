// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package scanner

import (
	"context"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/danjacques/gosift/filetype"
	"github.com/danjacques/gosift/sink"
	"github.com/danjacques/gosift/support/bufferpool"
	"github.com/danjacques/gosift/support/logging"
	"github.com/danjacques/gosift/vfs"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultChunkSize is the default size of the chunks that node bytes are
	// delivered in.
	DefaultChunkSize = 64 * 1024

	// DefaultMaxDepth is the default maximum depth of a scanned node.
	DefaultMaxDepth = 16

	// DefaultMaxDerivedNodes is the default maximum number of derived nodes
	// that a Pipeline will scan.
	DefaultMaxDerivedNodes = 100000
)

// Pipeline scans nodes with a selected set of scanners.
type Pipeline struct {
	// Store holds the nodes that are scanned. It must not be nil.
	Store *vfs.Store
	// Sink, if not nil, receives rows extracted by scanners.
	Sink sink.Sink
	// Logger, if not nil, is used to log scan events.
	Logger logging.L
	// Observer, if not nil, is notified of every scan state transition.
	Observer Observer

	// ChunkSize is the size of the chunks that node bytes are delivered in. If
	// <= 0, DefaultChunkSize is used.
	ChunkSize int
	// PrefixSize is the number of leading bytes used to detect a node's type.
	// If <= 0, filetype.DefaultPrefixSize is used.
	PrefixSize int
	// MaxDepth is the maximum depth of a scanned node. Deeper nodes are
	// skipped. If <= 0, DefaultMaxDepth is used.
	MaxDepth int
	// MaxDerivedNodes is the maximum number of derived nodes that will be
	// scanned over the Pipeline's lifetime. If <= 0, DefaultMaxDerivedNodes is
	// used.
	MaxDerivedNodes int
	// Workers is the number of top-level nodes that ScanAll scans
	// concurrently. If <= 0, one is used.
	Workers int

	scanners []*Entry

	initOnce sync.Once
	chunks   bufferpool.Pool
	derived  int64
}

// NewPipeline returns a Pipeline that runs the scanners that reg selects for
// names. See Registry.Select.
func NewPipeline(reg *Registry, names []string) (*Pipeline, error) {
	scanners, err := reg.Select(names)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		scanners: scanners,
	}, nil
}

// Scanners returns the names of the scanners that the Pipeline runs, in the
// order that they run.
func (p *Pipeline) Scanners() []string {
	names := make([]string, len(p.scanners))
	for i, e := range p.scanners {
		names[i] = e.Name
	}
	return names
}

func (p *Pipeline) init() {
	p.initOnce.Do(func() {
		p.chunks.Size = p.ChunkSize
		if p.chunks.Size <= 0 {
			p.chunks.Size = DefaultChunkSize
		}
	})
}

func (p *Pipeline) prefixSize() int {
	if p.PrefixSize <= 0 {
		return filetype.DefaultPrefixSize
	}
	return p.PrefixSize
}

func (p *Pipeline) maxDepth() int {
	if p.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return p.MaxDepth
}

func (p *Pipeline) maxDerivedNodes() int64 {
	if p.MaxDerivedNodes <= 0 {
		return DefaultMaxDerivedNodes
	}
	return int64(p.MaxDerivedNodes)
}

// Derived returns the number of derived nodes that have been scanned.
func (p *Pipeline) Derived() int64 { return atomic.LoadInt64(&p.derived) }

// ScanAll scans nodes, Workers at a time.
//
// Failures to scan individual nodes are logged. ScanAll only returns an
// error if ctx is cancelled.
func (p *Pipeline) ScanAll(ctx context.Context, nodes []*vfs.Node) error {
	p.init()

	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, n := range nodes {
		n := n
		g.Go(func() error {
			if err := p.scanNode(ctx, n); err != nil {
				if cerr := ctx.Err(); cerr != nil {
					return cerr
				}
				logging.Must(p.Logger).Warnf("Could not scan %s: %s", n, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ScanNode scans n and, recursively, every node derived from it.
func (p *Pipeline) ScanNode(ctx context.Context, n *vfs.Node) error {
	p.init()
	return p.scanNode(ctx, n)
}

type activeScan struct {
	*Entry

	scan  Scan
	state State
}

func (p *Pipeline) scanNode(ctx context.Context, n *vfs.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := logging.Must(p.Logger)

	if depth := n.Inode.Depth(); depth > p.maxDepth() {
		l.Warnf("Skipping %s: depth %d exceeds %d.", n, depth, p.maxDepth())
		nodesSkipped.WithLabelValues("depth").Inc()
		return nil
	}

	rc, err := p.Store.OpenNode(ctx, n)
	if err != nil {
		return errors.Wrapf(err, "opening %s", n.Inode)
	}
	open := true
	defer func() {
		if open {
			_ = rc.Close()
		}
	}()

	prefix := make([]byte, p.prefixSize())
	amt, err := io.ReadFull(rc, prefix)
	eof := false
	switch err {
	case nil:
	case io.EOF, io.ErrUnexpectedEOF:
		eof = true
	default:
		return errors.Wrapf(err, "reading %s", n.Inode)
	}
	prefix = prefix[:amt]

	typ := filetype.Detect(prefix)
	l.Debugf("Scanning %s as %q.", n, typ)
	nodesScanned.Inc()

	// Offer the node to every matching scanner.
	var scans []*activeScan
	for _, e := range p.scanners {
		if !e.Matches(typ) {
			continue
		}
		as := &activeScan{Entry: e}
		scans = append(scans, as)

		env := Env{
			Store:  p.Store,
			Sink:   p.Sink,
			Logger: l,
			Node:   n,
			Type:   typ,
		}
		err := contain(func() error {
			as.scan = e.Factory.NewScan(&env)
			return nil
		})
		p.transition(n, as, Candidate, nil)
		if err != nil {
			p.transition(n, as, Failed, err)
			continue
		}

		boring := false
		if err := contain(func() error {
			boring = as.scan.Boring(prefix)
			return nil
		}); err != nil {
			p.transition(n, as, Failed, err)
			continue
		}
		if boring {
			p.transition(n, as, Boring, nil)
			continue
		}
		p.transition(n, as, Running, nil)
	}

	// Stream the node's bytes once to every running scan.
	p.process(n, scans, prefix)
	for !eof && p.anyRunning(scans) {
		if err := ctx.Err(); err != nil {
			return err
		}

		buf := p.chunks.Get()
		if _, err = buf.ReadOnce(rc); buf.Len() > 0 {
			p.process(n, scans, buf.Bytes())
		}
		buf.Release()

		switch err {
		case nil:
		case io.EOF:
			eof = true
		default:
			for _, as := range scans {
				if as.state == Running {
					p.transition(n, as, Failed, errors.Wrap(err, "reading node"))
				}
			}
		}
	}
	open = false
	if err := rc.Close(); err != nil {
		l.Debugf("Error closing %s: %s", n, err)
	}

	// Finish in dependency order, scanning derived nodes as they appear.
	for _, as := range scans {
		if as.state != Running {
			continue
		}

		var derived []*vfs.Node
		if err := contain(func() (err error) {
			derived, err = as.scan.Finish(ctx)
			return
		}); err != nil {
			p.transition(n, as, Failed, err)
			continue
		}
		p.transition(n, as, Completed, nil)

		for _, child := range derived {
			if atomic.AddInt64(&p.derived, 1) > p.maxDerivedNodes() {
				l.Warnf("Skipping %s: derived node limit %d reached.", child, p.maxDerivedNodes())
				nodesSkipped.WithLabelValues("derived_limit").Inc()
				continue
			}
			derivedNodes.Inc()

			if err := p.scanNode(ctx, child); err != nil {
				if cerr := ctx.Err(); cerr != nil {
					return cerr
				}
				l.Warnf("Could not scan derived node %s: %s", child, err)
			}
		}
	}
	return nil
}

func (p *Pipeline) process(n *vfs.Node, scans []*activeScan, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	for _, as := range scans {
		if as.state != Running {
			continue
		}
		if err := contain(func() error { return as.scan.Process(chunk) }); err != nil {
			p.transition(n, as, Failed, err)
		}
	}
}

func (p *Pipeline) anyRunning(scans []*activeScan) bool {
	for _, as := range scans {
		if as.state == Running {
			return true
		}
	}
	return false
}

func (p *Pipeline) transition(n *vfs.Node, as *activeScan, state State, err error) {
	as.state = state
	scanStates.WithLabelValues(as.Name, state.String()).Inc()

	if state == Failed {
		logging.Must(p.Logger).Warnf("Scanner %q failed on %s: %s", as.Name, n, err)
	}
	if p.Observer != nil {
		p.Observer(Event{
			Inode:   n.Inode,
			Scanner: as.Name,
			State:   state,
			Err:     err,
		})
	}
}

// contain calls fn, converting a panic into an error.
func contain(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}
