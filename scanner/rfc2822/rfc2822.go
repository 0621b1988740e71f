// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package rfc2822 scans email messages, recording them in the "email" table
// and exposing each of their leaf parts as an attachment node.
//
// Attachment nodes use the 'm' specifier. Their local ID is the index of the
// leaf part within the message, and they are read by re-parsing the parent.
package rfc2822

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"strconv"

	"github.com/danjacques/gosift/filetype"
	"github.com/danjacques/gosift/scanner"
	"github.com/danjacques/gosift/scanner/typescan"
	"github.com/danjacques/gosift/sink"
	"github.com/danjacques/gosift/vfs"

	"github.com/pkg/errors"
)

const (
	// Name is the name of the scanner.
	Name = "RFC2822"

	// Specifier is the specifier of attachment nodes.
	Specifier = 'm'

	// DefaultMaxMessageSize is the default maximum size of a scanned message.
	DefaultMaxMessageSize = 64 * 1024 * 1024
)

// messageKeys are the header keys that may open a message. Anything else on
// the first line (for example, a POP transcript) is boring.
var messageKeys = map[string]struct{}{
	"received":    {},
	"from":        {},
	"message-id":  {},
	"to":          {},
	"subject":     {},
	"return-path": {},
}

// Factory is the RFC2822 scanner.Factory.
type Factory struct {
	// MaxMessageSize is the maximum size of a message that will be scanned.
	// If <= 0, DefaultMaxMessageSize is used.
	MaxMessageSize int64
}

var (
	_ scanner.Factory        = (*Factory)(nil)
	_ scanner.ReaderProvider = (*Factory)(nil)
)

// Descriptor implements scanner.Factory.
func (f *Factory) Descriptor() scanner.Descriptor {
	return scanner.Descriptor{
		Name:    Name,
		Types:   []string{`text/x-mail.*`, `message/rfc822.*`},
		Depends: []string{typescan.Name},
		Default: true,
		Group:   "Email",
	}
}

func (f *Factory) maxMessageSize() int64 {
	if f.MaxMessageSize <= 0 {
		return DefaultMaxMessageSize
	}
	return f.MaxMessageSize
}

// NewScan implements scanner.Factory.
func (f *Factory) NewScan(env *scanner.Env) scanner.Scan { return &scan{f: f, env: env} }

// RegisterReaders implements scanner.ReaderProvider.
func (f *Factory) RegisterReaders(st *vfs.Store) error {
	return st.RegisterReader(Specifier, f.openAttachment)
}

func (f *Factory) openAttachment(ctx context.Context, st *vfs.Store, n *vfs.Node) (io.ReadCloser, error) {
	idx, err := strconv.Atoi(n.Inode.LocalID())
	if err != nil {
		return nil, errors.Wrapf(err, "attachment %q", n.Inode)
	}

	rc, err := st.Open(ctx, n.Parent)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	max := f.maxMessageSize()
	data, err := ioutil.ReadAll(io.LimitReader(rc, max+1))
	if err != nil {
		return nil, errors.Wrapf(err, "reading message %q", n.Parent)
	}
	if int64(len(data)) > max {
		return nil, errors.Errorf("message %q exceeds %d bytes", n.Parent, max)
	}

	m, err := parseMessage(data)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(m.leaves) {
		return nil, errors.Wrapf(vfs.ErrNotFound, "message %q has no part %d", n.Parent, idx)
	}
	return ioutil.NopCloser(bytes.NewReader(m.leaves[idx].data)), nil
}

type scan struct {
	f   *Factory
	env *scanner.Env
	buf bytes.Buffer
}

func (s *scan) Boring(prefix []byte) bool {
	key := filetype.FirstHeaderKey(stripEnvelope(prefix))
	if _, ok := messageKeys[key]; ok {
		return false
	}
	s.env.Logger.Debugf("%s is not a message despite its type; first header is %q.", s.env.Node.Inode, key)
	return true
}

func (s *scan) Process(chunk []byte) error {
	if max := s.f.maxMessageSize(); int64(s.buf.Len()+len(chunk)) > max {
		return errors.Errorf("message exceeds %d bytes", max)
	}
	s.buf.Write(chunk)
	return nil
}

func (s *scan) Finish(ctx context.Context) ([]*vfs.Node, error) {
	m, err := parseMessage(s.buf.Bytes())
	if err != nil {
		return nil, err
	}
	s.env.Logger.Debugf("Found a message with %d part(s) in %s.", len(m.leaves), s.env.Node.Inode)

	s.env.Record(sink.TableEmail, sink.Row{
		"inode":   string(s.env.Node.Inode),
		"date":    m.date,
		"to":      m.decodedHeader("To"),
		"from":    m.decodedHeader("From"),
		"subject": m.decodedHeader("Subject"),
	})

	nodes := make([]*vfs.Node, 0, len(m.leaves))
	for i, l := range m.leaves {
		n, err := s.env.Store.CreateNode(s.env.Node.Inode, Specifier, strconv.Itoa(i), l.name, int64(len(l.data)), m.date)
		if err != nil {
			if errors.Cause(err) == vfs.ErrExists {
				s.env.Logger.Debugf("Attachment %d of %s already exists.", i, s.env.Node.Inode)
				continue
			}
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}
