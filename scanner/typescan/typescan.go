// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package typescan records the detected type of every scanned node.
package typescan

import (
	"context"

	"github.com/danjacques/gosift/scanner"
	"github.com/danjacques/gosift/sink"
	"github.com/danjacques/gosift/vfs"
)

// Name is the name of the scanner.
const Name = "TypeScan"

// Factory is the TypeScan scanner.Factory.
type Factory struct{}

var _ scanner.Factory = Factory{}

// Descriptor implements scanner.Factory.
func (Factory) Descriptor() scanner.Descriptor {
	return scanner.Descriptor{
		Name:    Name,
		Types:   []string{".*"},
		Default: true,
		Group:   "General",
	}
}

// NewScan implements scanner.Factory.
func (Factory) NewScan(env *scanner.Env) scanner.Scan { return &scan{env: env} }

type scan struct {
	scanner.BaseScan

	env  *scanner.Env
	size int64
}

func (s *scan) Process(chunk []byte) error {
	s.size += int64(len(chunk))
	return nil
}

func (s *scan) Finish(ctx context.Context) ([]*vfs.Node, error) {
	s.env.Record(sink.TableType, sink.Row{
		"inode": string(s.env.Node.Inode),
		"type":  s.env.Type,
		"size":  s.size,
	})
	return nil, nil
}
