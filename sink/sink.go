// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package sink receives the rows that scanners extract from artifacts.
//
// A Sink is an adapter over an external store. Scanners never depend on a
// row being stored: Record logs insertion failures and carries on.
package sink

import (
	"sort"
	"sync"

	"github.com/danjacques/gosift/support/logging"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Well-known table names.
const (
	TableVFS   = "vfs"
	TableType  = "type"
	TableHash  = "hash"
	TableEmail = "email"
	TableDNS   = "dns"
	TableRun   = "run"
)

// Row is a single row, keyed by column name.
//
// Values should be strings, integers, []byte, or time.Time.
type Row map[string]interface{}

// Columns returns the row's column names, sorted.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Sink stores rows.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	// Insert adds row to table.
	Insert(table string, row Row) error
	// Close flushes and releases the Sink.
	Close() error
}

// Record inserts row into s, logging any failure to l.
//
// If s is nil, Record does nothing.
func Record(l logging.L, s Sink, table string, row Row) {
	if s == nil {
		return
	}
	if err := s.Insert(table, row); err != nil {
		logging.Must(l).Warnf("Could not insert row into %q: %s", table, err)
	}
}

// Multi is a Sink that inserts every row into each of its members.
type Multi []Sink

var _ Sink = Multi(nil)

// Insert implements Sink.
//
// Every member is attempted. The returned error combines all member failures.
func (m Multi) Insert(table string, row Row) error {
	var err error
	for i, s := range m {
		if ierr := s.Insert(table, row); ierr != nil {
			err = multierr.Append(err, errors.Wrapf(ierr, "sink #%d", i))
		}
	}
	return err
}

// Close implements Sink.
func (m Multi) Close() error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Close())
	}
	return err
}

// Memory is a Sink that holds rows in memory.
//
// The zero value is ready to use.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]Row
}

var _ Sink = (*Memory)(nil)

// Insert implements Sink.
func (m *Memory) Insert(table string, row Row) error {
	cp := make(Row, len(row))
	for k, v := range row {
		cp[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tables == nil {
		m.tables = make(map[string][]Row)
	}
	m.tables[table] = append(m.tables[table], cp)
	return nil
}

// Rows returns the rows inserted into table, in insertion order.
func (m *Memory) Rows(table string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Row(nil), m.tables[table]...)
}

// Tables returns the names of the tables with at least one row, sorted.
func (m *Memory) Tables() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close implements Sink.
func (m *Memory) Close() error { return nil }
