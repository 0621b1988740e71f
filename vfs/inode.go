// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package vfs

import (
	"strings"

	"github.com/pkg/errors"
)

// Separator separates the segments of an Inode.
const Separator = "|"

// Inode identifies a Node.
//
// An Inode is a sequence of Separator-joined segments. Each segment is a
// specifier letter, which selects the reader that interprets the node's
// bytes, followed by a local identifier that is unique among the segment's
// siblings. For example, "f0|m1" is attachment 1 ('m') of mounted file 0
// ('f').
type Inode string

// MakeSegment builds a single Inode segment.
func MakeSegment(specifier byte, localID string) (string, error) {
	if specifier < 'a' || specifier > 'z' {
		return "", errors.Errorf("invalid specifier %q", specifier)
	}
	if localID == "" {
		return "", errors.New("empty local ID")
	}
	if strings.Contains(localID, Separator) {
		return "", errors.Errorf("local ID %q contains separator", localID)
	}
	return string(specifier) + localID, nil
}

// RootInode returns the Inode of a top-level node.
func RootInode(specifier byte, localID string) (Inode, error) {
	seg, err := MakeSegment(specifier, localID)
	if err != nil {
		return "", err
	}
	return Inode(seg), nil
}

// Child returns the Inode of a child of i.
func (i Inode) Child(specifier byte, localID string) (Inode, error) {
	seg, err := MakeSegment(specifier, localID)
	if err != nil {
		return "", err
	}
	if i == "" {
		return Inode(seg), nil
	}
	return i + Separator + Inode(seg), nil
}

// Parent returns the parent of i. ok is false if i is a top-level Inode.
func (i Inode) Parent() (parent Inode, ok bool) {
	idx := strings.LastIndex(string(i), Separator)
	if idx < 0 {
		return "", false
	}
	return i[:idx], true
}

// Segments returns the segments of i, outermost first.
func (i Inode) Segments() []string {
	if i == "" {
		return nil
	}
	return strings.Split(string(i), Separator)
}

// Depth returns the number of ancestors that i has.
func (i Inode) Depth() int { return strings.Count(string(i), Separator) }

// Specifier returns the specifier letter of i's last segment.
func (i Inode) Specifier() byte {
	idx := strings.LastIndex(string(i), Separator)
	if idx+1 >= len(i) {
		return 0
	}
	return i[idx+1]
}

// LocalID returns the local identifier of i's last segment.
func (i Inode) LocalID() string {
	idx := strings.LastIndex(string(i), Separator)
	if idx+2 > len(i) {
		return ""
	}
	return string(i[idx+2:])
}

// Validate returns an error if i is not well-formed.
func (i Inode) Validate() error {
	segs := i.Segments()
	if len(segs) == 0 {
		return errors.New("empty inode")
	}
	for _, seg := range segs {
		if len(seg) < 2 {
			return errors.Errorf("inode %q has short segment %q", i, seg)
		}
		if _, err := MakeSegment(seg[0], seg[1:]); err != nil {
			return errors.Wrapf(err, "inode %q", i)
		}
	}
	return nil
}

func (i Inode) String() string { return string(i) }
