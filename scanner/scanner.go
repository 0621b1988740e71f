// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package scanner dispatches the contents of VFS nodes to pluggable scanners.
//
// Each scanner is described by a Descriptor and instantiated per node by its
// Factory. A Pipeline detects each node's type, offers the node to every
// enabled scanner whose patterns match, streams the node's bytes to the
// scanners that accept it, and recursively scans any nodes that they derive.
package scanner

import (
	"context"
	"fmt"

	"github.com/danjacques/gosift/sink"
	"github.com/danjacques/gosift/support/logging"
	"github.com/danjacques/gosift/vfs"

	"github.com/pkg/errors"
)

var (
	// ErrMalformed is the cause of scan failures due to malformed content.
	ErrMalformed = errors.New("malformed protocol payload")

	// ErrDependencyCycle is returned when scanner dependencies form a cycle.
	ErrDependencyCycle = errors.New("scanner dependency cycle")

	// ErrUnknownDependency is returned when a scanner depends on a scanner
	// that is not registered.
	ErrUnknownDependency = errors.New("unknown scanner dependency")

	// ErrUnknownScanner is returned when enabling a scanner that is not
	// registered.
	ErrUnknownScanner = errors.New("unknown scanner")
)

// Descriptor is static metadata about a scanner.
type Descriptor struct {
	// Name uniquely identifies the scanner.
	Name string
	// Types are regular expressions matched against a node's detected type.
	// The scanner is a candidate for a node if any of them matches the whole
	// type string.
	Types []string
	// Depends names scanners that must run before this one on the same node.
	Depends []string
	// Default is true if the scanner is enabled when no explicit set of
	// scanners is requested.
	Default bool
	// Group is a display grouping.
	Group string
}

// Env is the environment that a Scan runs in.
type Env struct {
	// Store holds the node being scanned. Scans create derived nodes in it.
	Store *vfs.Store
	// Sink receives extracted rows. It may be nil.
	Sink sink.Sink
	// Logger is the logger to use. It is never nil.
	Logger logging.L

	// Node is the node being scanned.
	Node *vfs.Node
	// Type is the node's detected type.
	Type string
}

// Record inserts row into the environment's sink, logging failures.
func (env *Env) Record(table string, row sink.Row) {
	sink.Record(env.Logger, env.Sink, table, row)
}

// Factory creates Scans for a single scanner.
//
// Factory must be safe for concurrent use.
type Factory interface {
	// Descriptor returns the scanner's Descriptor.
	Descriptor() Descriptor

	// NewScan creates a Scan of the node in env.
	NewScan(env *Env) Scan
}

// ReaderProvider is implemented by Factories whose scans create nodes that
// need a vfs.ReaderFunc to be opened.
type ReaderProvider interface {
	// RegisterReaders registers the factory's node readers with st.
	RegisterReaders(st *vfs.Store) error
}

// Scan is a single scanner's scan of a single node.
//
// Boring is called first. If it returns false, the node's bytes are
// delivered to Process in order, and Finish is then called once.
type Scan interface {
	// Boring returns true if the node, which starts with prefix, is of no
	// interest to the scanner.
	Boring(prefix []byte) bool

	// Process receives the next chunk of the node's bytes. The chunk is only
	// valid for the duration of the call.
	Process(chunk []byte) error

	// Finish is called after every byte has been processed. It returns any
	// nodes that the scan created, which are then scanned in turn.
	Finish(ctx context.Context) ([]*vfs.Node, error)
}

// State is the state of a single scanner's scan of a single node.
type State int

const (
	// Candidate is a scan that has been created but not yet asked if the node
	// is boring.
	Candidate State = iota
	// Boring is a scan that declined the node.
	Boring
	// Running is a scan that is receiving the node's bytes.
	Running
	// Completed is a scan that finished successfully.
	Completed
	// Failed is a scan that returned an error or panicked.
	Failed
)

func (s State) String() string {
	switch s {
	case Candidate:
		return "CANDIDATE"
	case Boring:
		return "BORING"
	case Running:
		return "RUNNING"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Event describes a scan state transition.
type Event struct {
	Inode   vfs.Inode
	Scanner string
	State   State
	// Err is the failure that caused a Failed transition.
	Err error
}

// Observer is notified of scan state transitions.
//
// An Observer may be called concurrently.
type Observer func(e Event)

// BaseScan is a Scan that accepts every node and ignores its bytes.
//
// Scanners embed it to implement only the methods that they need.
type BaseScan struct{}

// Boring implements Scan.
func (BaseScan) Boring(prefix []byte) bool { return false }

// Process implements Scan.
func (BaseScan) Process(chunk []byte) error { return nil }

// Finish implements Scan.
func (BaseScan) Finish(ctx context.Context) ([]*vfs.Node, error) { return nil, nil }
