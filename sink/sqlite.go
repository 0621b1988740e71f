// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package sink

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // Registers the "sqlite" driver.
)

// SQLite is a Sink backed by a SQLite database.
//
// Tables are created the first time a row is inserted into them, with one
// column per row key. Columns seen later are added to the table.
type SQLite struct {
	mu      sync.Mutex
	db      *sql.DB
	columns map[string]map[string]struct{}
}

var _ Sink = (*SQLite)(nil)

// OpenSQLite opens (creating if necessary) the database at path. path may be
// ":memory:".
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening database %q", path)
	}

	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "enabling WAL")
	}

	return &SQLite{
		db:      db,
		columns: make(map[string]map[string]struct{}),
	}, nil
}

// DB returns the underlying database.
func (s *SQLite) DB() *sql.DB { return s.db }

// Insert implements Sink.
func (s *SQLite) Insert(table string, row Row) error {
	if len(row) == 0 {
		return errors.Errorf("empty row for table %q", table)
	}
	cols := row.Columns()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureTableLocked(table, cols, row); err != nil {
		return err
	}

	args := make([]interface{}, len(cols))
	for i, col := range cols {
		args[i] = sqlValue(row[col])
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), quoteIdents(cols), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	if _, err := s.db.Exec(stmt, args...); err != nil {
		return errors.Wrapf(err, "inserting into %q", table)
	}
	return nil
}

func (s *SQLite) ensureTableLocked(table string, cols []string, row Row) error {
	known, ok := s.columns[table]
	if !ok {
		defs := make([]string, len(cols))
		for i, col := range cols {
			defs[i] = quoteIdent(col) + " " + columnType(row[col])
		}
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "creating table %q", table)
		}

		known = make(map[string]struct{}, len(cols))
		for _, col := range cols {
			known[col] = struct{}{}
		}
		s.columns[table] = known
		return nil
	}

	for _, col := range cols {
		if _, ok := known[col]; ok {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), quoteIdent(col), columnType(row[col]))
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "adding column %q to %q", col, table)
		}
		known[col] = struct{}{}
	}
	return nil
}

// Close implements Sink.
func (s *SQLite) Close() error { return s.db.Close() }

func columnType(v interface{}) string {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool, time.Time:
		return "INTEGER"
	case float32, float64:
		return "REAL"
	case []byte:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// sqlValue converts v to a value that every SQLite driver accepts.
func sqlValue(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t.Unix()
	case uint64:
		return int64(t)
	case uint:
		return int64(t)
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}

func quoteIdent(v string) string { return `"` + strings.ReplaceAll(v, `"`, `""`) + `"` }

func quoteIdents(vs []string) string {
	quoted := make([]string, len(vs))
	for i, v := range vs {
		quoted[i] = quoteIdent(v)
	}
	return strings.Join(quoted, ", ")
}
