// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package compressed scans compressed containers (gzip, zstd, LZ4 frames and
// framed snappy), exposing each one's decompressed contents as a node.
//
// Decompressed nodes use the 'z' specifier and are read by decompressing
// their parent.
package compressed

import (
	"bufio"
	"context"
	"io"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/danjacques/gosift/filetype"
	"github.com/danjacques/gosift/scanner"
	"github.com/danjacques/gosift/scanner/typescan"
	"github.com/danjacques/gosift/support/dataio"
	"github.com/danjacques/gosift/support/fmtutil"
	"github.com/danjacques/gosift/vfs"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

const (
	// Name is the name of the scanner.
	Name = "Compressed"

	// Specifier is the specifier of decompressed nodes.
	Specifier = 'z'

	// DefaultMaxExpandedSize is the default maximum decompressed size of a
	// container.
	DefaultMaxExpandedSize = 1024 * 1024 * 1024
)

// Factory is the Compressed scanner.Factory.
type Factory struct {
	// MaxExpandedSize is the maximum number of bytes that a container may
	// decompress to. Larger containers fail to scan. If <= 0,
	// DefaultMaxExpandedSize is used.
	MaxExpandedSize int64
}

var (
	_ scanner.Factory        = (*Factory)(nil)
	_ scanner.ReaderProvider = (*Factory)(nil)
)

// Descriptor implements scanner.Factory.
func (f *Factory) Descriptor() scanner.Descriptor {
	return scanner.Descriptor{
		Name:    Name,
		Types:   []string{`application/(gzip|zstd|x-lz4|x-snappy-framed)`},
		Depends: []string{typescan.Name},
		Default: true,
		Group:   "Containers",
	}
}

func (f *Factory) maxExpandedSize() int64 {
	if f.MaxExpandedSize <= 0 {
		return DefaultMaxExpandedSize
	}
	return f.MaxExpandedSize
}

// NewScan implements scanner.Factory.
func (f *Factory) NewScan(env *scanner.Env) scanner.Scan {
	return &scan{
		f:   f,
		env: env,
		c:   codecs[env.Type],
	}
}

// RegisterReaders implements scanner.ReaderProvider.
func (f *Factory) RegisterReaders(st *vfs.Store) error {
	return st.RegisterReader(Specifier, f.openDecompressed)
}

func (f *Factory) openDecompressed(ctx context.Context, st *vfs.Store, n *vfs.Node) (io.ReadCloser, error) {
	rc, err := st.Open(ctx, n.Parent)
	if err != nil {
		return nil, err
	}

	dc, err := openContainer(rc)
	if err != nil {
		_ = rc.Close()
		return nil, errors.Wrapf(err, "decompressing %q", n.Parent)
	}
	return &decompressedReader{
		Reader: io.LimitReader(dc, n.Size),
		dc:     dc,
		parent: rc,
	}, nil
}

// openContainer detects the container type of r and returns a reader of its
// decompressed contents.
func openContainer(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(r, filetype.DefaultPrefixSize)
	prefix, err := br.Peek(filetype.DefaultPrefixSize)
	if err != nil && err != io.EOF {
		return nil, err
	}

	typ := filetype.Detect(prefix)
	c := codecs[typ]
	if c == nil {
		return nil, errors.Errorf("%q is not a compressed container", typ)
	}
	return c.open(br)
}

type decompressedReader struct {
	io.Reader

	dc     io.Closer
	parent io.Closer
}

func (r *decompressedReader) Close() error {
	err := r.dc.Close()
	if perr := r.parent.Close(); err == nil {
		err = perr
	}
	return err
}

type scan struct {
	scanner.BaseScan

	f   *Factory
	env *scanner.Env
	c   *codec
}

func (s *scan) Boring(prefix []byte) bool {
	if s.c == nil || !s.c.valid(prefix) {
		s.env.Logger.Debugf("%s has an invalid %s header:\n%s", s.env.Node.Inode, s.env.Type,
			fmtutil.Hex{Data: prefix, Max: 16})
		return true
	}
	return false
}

// Finish decompresses the node to measure it, and creates a node for its
// decompressed contents.
func (s *scan) Finish(ctx context.Context) ([]*vfs.Node, error) {
	rc, err := s.env.Store.OpenNode(ctx, s.env.Node)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dc, err := s.c.open(rc)
	if err != nil {
		return nil, errors.Wrapf(scanner.ErrMalformed, "opening %s container: %s", s.c.typ, err)
	}
	defer dc.Close()

	name := s.childName()
	if zr, ok := dc.(*gzip.Reader); ok && zr.Name != "" {
		name = filepath.Base(zr.Name)
	}

	max := s.f.maxExpandedSize()
	size, err := io.Copy(ioutil.Discard, &dataio.ContextReader{Ctx: ctx, R: io.LimitReader(dc, max+1)})
	switch {
	case err != nil:
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, errors.Wrapf(scanner.ErrMalformed, "decompressing %s container: %s", s.c.typ, err)
	case size > max:
		return nil, errors.Errorf("%s container expands beyond %s", s.c.typ, fmtutil.ByteSize(max))
	}
	s.env.Logger.Debugf("%s decompresses to %s.", s.env.Node.Inode, fmtutil.ByteSize(size))

	n, err := s.env.Store.CreateNode(s.env.Node.Inode, Specifier, "0", name, size, s.env.Node.ModTime)
	if err != nil {
		if errors.Cause(err) == vfs.ErrExists {
			return nil, nil
		}
		return nil, err
	}
	return []*vfs.Node{n}, nil
}

// childName derives the name of the decompressed node from the container's
// name.
func (s *scan) childName() string {
	name := s.env.Node.Name
	ext := filepath.Ext(name)
	if repl, ok := s.c.exts[strings.ToLower(ext)]; ok && len(ext) < len(name) {
		return name[:len(name)-len(ext)] + repl
	}
	return name
}
