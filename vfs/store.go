// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package vfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danjacques/gosift/sink"
	"github.com/danjacques/gosift/support/logging"

	"github.com/pkg/errors"
	"github.com/tidwall/btree"
)

// SpecifierFile is the specifier of nodes mounted from host files.
const SpecifierFile = 'f'

var (
	// ErrExists is returned when creating a node whose Inode is already in use.
	ErrExists = errors.New("inode already exists")
	// ErrNotFound is returned when an Inode does not resolve to a node.
	ErrNotFound = errors.New("inode not found")
	// ErrNoReader is returned when opening a node whose specifier has no
	// registered reader.
	ErrNoReader = errors.New("no reader for specifier")
)

// Node is a single artifact in the Store.
//
// Nodes are immutable once created.
type Node struct {
	Inode  Inode
	Parent Inode
	// Name is the display name of the node.
	Name    string
	Size    int64
	ModTime time.Time

	// Specifier selects the reader that opens the node.
	Specifier byte
	// Locator is reader-specific. For mounted files, it is the host path.
	Locator string
}

func (n *Node) String() string {
	return fmt.Sprintf("%s (%q, %d bytes)", n.Inode, n.Name, n.Size)
}

// ReaderFunc opens the contents of n.
type ReaderFunc func(ctx context.Context, st *Store, n *Node) (io.ReadCloser, error)

// Store is a hierarchical namespace of Nodes.
//
// Store is safe for concurrent use. Node creation is serialized.
type Store struct {
	// Logger, if not nil, is used to log Store events.
	Logger logging.L

	// Sink, if not nil, receives a row for each created node.
	Sink sink.Sink

	mu       sync.RWMutex
	nodes    *btree.Map[Inode, *Node]
	readers  map[byte]ReaderFunc
	nextRoot int
}

// NewStore returns an empty Store that can read mounted host files.
func NewStore() *Store {
	st := Store{
		nodes:   btree.NewMap[Inode, *Node](0),
		readers: make(map[byte]ReaderFunc),
	}
	st.readers[SpecifierFile] = openHostFile
	return &st
}

// RegisterReader registers fn as the reader for nodes with the specifier.
//
// It is an error to register a specifier twice.
func (st *Store) RegisterReader(specifier byte, fn ReaderFunc) error {
	if _, err := MakeSegment(specifier, "0"); err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.readers[specifier]; ok {
		return errors.Errorf("reader for specifier %q is already registered", specifier)
	}
	st.readers[specifier] = fn
	return nil
}

// Mount adds the host file at path as a new top-level node.
func (st *Store) Mount(path string) (*Node, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %q", path)
	}
	if !fi.Mode().IsRegular() {
		return nil, errors.Errorf("%q is not a regular file", path)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	inode, err := RootInode(SpecifierFile, strconv.Itoa(st.nextRoot))
	if err != nil {
		return nil, err
	}
	st.nextRoot++

	n := &Node{
		Inode:     inode,
		Name:      filepath.Base(path),
		Size:      fi.Size(),
		ModTime:   fi.ModTime(),
		Specifier: SpecifierFile,
		Locator:   path,
	}
	st.addLocked(n)
	return n, nil
}

// CreateNode creates a node underneath of parent.
//
// The new node's Inode is parent's Inode with a (specifier, localID) segment
// appended. If that Inode already exists, CreateNode returns ErrExists and
// the existing node is unchanged.
func (st *Store) CreateNode(parent Inode, specifier byte, localID, name string, size int64, mtime time.Time) (*Node, error) {
	inode, err := parent.Child(specifier, localID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.nodes.Get(parent); !ok {
		return nil, errors.Wrapf(ErrNotFound, "parent %q", parent)
	}
	if _, ok := st.nodes.Get(inode); ok {
		return nil, errors.Wrapf(ErrExists, "%q", inode)
	}

	n := &Node{
		Inode:     inode,
		Parent:    parent,
		Name:      name,
		Size:      size,
		ModTime:   mtime,
		Specifier: specifier,
	}
	st.addLocked(n)
	return n, nil
}

func (st *Store) addLocked(n *Node) {
	st.nodes.Set(n.Inode, n)
	logging.Must(st.Logger).Debugf("Created node %s.", n)

	sink.Record(st.Logger, st.Sink, sink.TableVFS, sink.Row{
		"inode":     string(n.Inode),
		"parent":    string(n.Parent),
		"name":      n.Name,
		"size":      n.Size,
		"mtime":     n.ModTime,
		"specifier": string(n.Specifier),
	})
}

// Lookup returns the node for inode.
func (st *Store) Lookup(inode Inode) (*Node, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	n, ok := st.nodes.Get(inode)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%q", inode)
	}
	return n, nil
}

// Children returns the direct children of inode, ordered by Inode.
func (st *Store) Children(inode Inode) []*Node {
	prefix := inode + Separator

	st.mu.RLock()
	defer st.mu.RUnlock()

	var children []*Node
	st.nodes.Ascend(prefix, func(k Inode, n *Node) bool {
		if !strings.HasPrefix(string(k), string(prefix)) {
			return false
		}
		if !strings.Contains(string(k[len(prefix):]), Separator) {
			children = append(children, n)
		}
		return true
	})
	return children
}

// Walk calls fn for every node, ordered by Inode, until fn returns false.
func (st *Store) Walk(fn func(n *Node) bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	st.nodes.Scan(func(_ Inode, n *Node) bool { return fn(n) })
}

// Len returns the number of nodes in the Store.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.nodes.Len()
}

// Open opens the contents of the node identified by inode, using the reader
// registered for its specifier.
func (st *Store) Open(ctx context.Context, inode Inode) (io.ReadCloser, error) {
	n, err := st.Lookup(inode)
	if err != nil {
		return nil, err
	}
	return st.OpenNode(ctx, n)
}

// OpenNode opens the contents of n.
func (st *Store) OpenNode(ctx context.Context, n *Node) (io.ReadCloser, error) {
	st.mu.RLock()
	fn := st.readers[n.Specifier]
	st.mu.RUnlock()

	if fn == nil {
		return nil, errors.Wrapf(ErrNoReader, "%q (specifier %q)", n.Inode, n.Specifier)
	}
	return fn(ctx, st, n)
}

func openHostFile(ctx context.Context, st *Store, n *Node) (io.ReadCloser, error) {
	f, err := os.Open(n.Locator)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", n.Locator)
	}
	return f, nil
}
