// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package scanner

import (
	"regexp"
	"sort"
	"strings"

	"github.com/danjacques/gosift/vfs"

	"github.com/pkg/errors"
)

// Entry is a registered scanner.
type Entry struct {
	Descriptor

	// Factory creates the scanner's per-node scans.
	Factory Factory

	patterns []*regexp.Regexp
}

// Matches returns true if typ matches any of the entry's type patterns.
func (e *Entry) Matches(typ string) bool {
	for _, re := range e.patterns {
		if re.MatchString(typ) {
			return true
		}
	}
	return false
}

// Registry is an immutable set of scanners in dependency order.
type Registry struct {
	ordered []*Entry
	byName  map[string]*Entry
}

// NewRegistry builds a Registry from factories.
//
// Scanners are ordered so that every scanner follows its dependencies; ties
// are broken by the order in which factories are supplied. NewRegistry fails
// if names collide, if a type pattern does not compile, if a dependency is
// not registered, or if dependencies form a cycle.
func NewRegistry(factories ...Factory) (*Registry, error) {
	r := Registry{
		byName: make(map[string]*Entry, len(factories)),
	}

	entries := make([]*Entry, 0, len(factories))
	for _, f := range factories {
		e := &Entry{
			Factory:    f,
			Descriptor: f.Descriptor(),
		}
		if e.Name == "" {
			return nil, errors.New("scanner has no name")
		}
		if _, ok := r.byName[e.Name]; ok {
			return nil, errors.Errorf("duplicate scanner %q", e.Name)
		}

		for _, t := range e.Types {
			re, err := regexp.Compile("^(?:" + t + ")$")
			if err != nil {
				return nil, errors.Wrapf(err, "scanner %q type pattern %q", e.Name, t)
			}
			e.patterns = append(e.patterns, re)
		}

		r.byName[e.Name] = e
		entries = append(entries, e)
	}

	var err error
	if r.ordered, err = sortEntries(entries, r.byName); err != nil {
		return nil, err
	}
	return &r, nil
}

// sortEntries orders entries so that each follows its dependencies, keeping
// registration order where dependencies allow.
func sortEntries(entries []*Entry, byName map[string]*Entry) ([]*Entry, error) {
	pending := make(map[*Entry]int, len(entries))
	dependents := make(map[*Entry][]*Entry, len(entries))
	for _, e := range entries {
		for _, dep := range e.Depends {
			de := byName[dep]
			if de == nil {
				return nil, errors.Wrapf(ErrUnknownDependency, "%q depends on %q", e.Name, dep)
			}
			pending[e]++
			dependents[de] = append(dependents[de], e)
		}
	}

	index := make(map[*Entry]int, len(entries))
	for i, e := range entries {
		index[e] = i
	}

	var ready []*Entry
	for _, e := range entries {
		if pending[e] == 0 {
			ready = append(ready, e)
		}
	}

	ordered := make([]*Entry, 0, len(entries))
	for len(ready) > 0 {
		e := ready[0]
		ready = ready[1:]
		ordered = append(ordered, e)

		for _, d := range dependents[e] {
			if pending[d]--; pending[d] == 0 {
				ready = append(ready, d)
			}
		}
		sort.SliceStable(ready, func(i, j int) bool { return index[ready[i]] < index[ready[j]] })
	}

	if len(ordered) != len(entries) {
		var cyclic []string
		for _, e := range entries {
			if pending[e] > 0 {
				cyclic = append(cyclic, e.Name)
			}
		}
		return nil, errors.Wrapf(ErrDependencyCycle, "among %s", strings.Join(cyclic, ", "))
	}
	return ordered, nil
}

// Entries returns every registered scanner, in dependency order.
func (r *Registry) Entries() []*Entry { return append([]*Entry(nil), r.ordered...) }

// Lookup returns the scanner named name, or nil.
func (r *Registry) Lookup(name string) *Entry { return r.byName[name] }

// RegisterReaders registers the node readers of every registered scanner
// whose Factory is a ReaderProvider.
func (r *Registry) RegisterReaders(st *vfs.Store) error {
	for _, e := range r.ordered {
		rp, ok := e.Factory.(ReaderProvider)
		if !ok {
			continue
		}
		if err := rp.RegisterReaders(st); err != nil {
			return errors.Wrapf(err, "registering readers for %q", e.Name)
		}
	}
	return nil
}

// Select returns the scanners to run, in dependency order.
//
// If names is empty, every Default scanner is selected. Otherwise exactly
// the named scanners are. Either way, the dependencies of every selected
// scanner are selected too.
func (r *Registry) Select(names []string) ([]*Entry, error) {
	selected := make(map[*Entry]struct{}, len(r.ordered))
	var add func(e *Entry)
	add = func(e *Entry) {
		if _, ok := selected[e]; ok {
			return
		}
		selected[e] = struct{}{}
		for _, dep := range e.Depends {
			add(r.byName[dep])
		}
	}

	if len(names) == 0 {
		for _, e := range r.ordered {
			if e.Default {
				add(e)
			}
		}
	} else {
		for _, name := range names {
			e := r.byName[name]
			if e == nil {
				return nil, errors.Wrapf(ErrUnknownScanner, "%q", name)
			}
			add(e)
		}
	}

	result := make([]*Entry, 0, len(selected))
	for _, e := range r.ordered {
		if _, ok := selected[e]; ok {
			result = append(result, e)
		}
	}
	return result, nil
}
