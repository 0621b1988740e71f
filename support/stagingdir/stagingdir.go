// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package stagingdir stages output files in a temporary directory until they
// are complete.
package stagingdir

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// D manages a staging directory.
//
// Files are created in the staging directory with Path. Once finished, each
// is moved into its destination with Commit. Destroy deletes the staging
// directory along with any file that was not committed.
//
// The staging directory should be on the same filesystem as the commit
// destinations, so that Commit is an atomic rename.
type D struct {
	// path is the path of the staging directory.
	path string
}

// New creates a new staging directory underneath of parent.
//
// The directory will be created with the specified prefix.
func New(parent, prefix string) (*D, error) {
	stagingPath, err := os.MkdirTemp(parent, prefix)
	if err != nil {
		return nil, errors.Wrap(err, "creating staging directory")
	}
	return &D{
		path: stagingPath,
	}, nil
}

// Path builds a path relative to the staging directory from the provided
// components.
func (sd *D) Path(first string, components ...string) string {
	if sd.path == "" {
		panic("staging directory has been destroyed")
	}

	// Common case: one component underneath of staging directory.
	if len(components) == 0 {
		return filepath.Join(sd.path, first)
	}

	comps := make([]string, 0, 2+len(components))
	comps = append(comps, sd.path)
	comps = append(comps, first)
	return filepath.Join(append(comps, components...)...)
}

// Create creates the staged file name.
func (sd *D) Create(name string) (*os.File, error) {
	f, err := os.Create(sd.Path(name))
	if err != nil {
		return nil, errors.Wrapf(err, "creating staged file %q", name)
	}
	return f, nil
}

// Commit atomically moves the staged file name to dest, replacing any file
// that is already there.
func (sd *D) Commit(name, dest string) error {
	if sd.path == "" {
		return errors.New("invalid staging directory")
	}

	if fi, err := os.Stat(dest); err == nil && fi.IsDir() {
		return errors.Errorf("destination %q is a directory", dest)
	}

	src := sd.Path(name)
	if err := os.Rename(src, dest); err != nil {
		return errors.Wrapf(err, "moving staged file into place (%q => %q)", src, dest)
	}
	return nil
}

// Destroy purges the staging directory and its contents.
func (sd *D) Destroy() error {
	if sd.path == "" {
		// There is nothing to destroy.
		return nil
	}

	if err := os.RemoveAll(sd.path); err != nil {
		return err
	}

	sd.path = "" // Destroyed.
	return nil
}
