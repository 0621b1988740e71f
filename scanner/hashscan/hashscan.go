// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package hashscan records the BLAKE3 digest of every scanned node.
package hashscan

import (
	"context"
	"encoding/hex"

	"github.com/danjacques/gosift/scanner"
	"github.com/danjacques/gosift/sink"
	"github.com/danjacques/gosift/vfs"

	"github.com/zeebo/blake3"
)

// Name is the name of the scanner.
const Name = "HashScan"

// Factory is the HashScan scanner.Factory.
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
func (Factory) NewScan(env *scanner.Env) scanner.Scan {
	return &scan{
		env: env,
		h:   blake3.New(),
	}
}

type scan struct {
	scanner.BaseScan

	env  *scanner.Env
	h    *blake3.Hasher
	size int64
}

func (s *scan) Process(chunk []byte) error {
	_, _ = s.h.Write(chunk)
	s.size += int64(len(chunk))
	return nil
}

func (s *scan) Finish(ctx context.Context) ([]*vfs.Node, error) {
	s.env.Record(sink.TableHash, sink.Row{
		"inode":  string(s.env.Node.Inode),
		"blake3": hex.EncodeToString(s.h.Sum(nil)),
		"size":   s.size,
	})
	return nil, nil
}
