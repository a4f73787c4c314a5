// Package db is the embedded relational database: a single on-disk
// SQLite file (via github.com/mattn/go-sqlite3 and database/sql, one
// file per deployment) holding every table the crawler persists. It is
// paired with a small in-process secondary-index cache (cache.go,
// buntdb-backed) used by callers that need a fast read-mostly snapshot
// (resume admission's running-domain set, the gazetteer loader).
package db

import (
	"database/sql"
	"fmt"

	// registers the "sqlite3" driver with database/sql.
	_ "github.com/mattn/go-sqlite3"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

const dsnFormat = "file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_synchronous=NORMAL"

// DB wraps the sqlite handle plus the writer-queue coordinators described
// (single coordinator per table, lock order domain -> url ->
// job to avoid deadlock when a caller needs more than one).
type DB struct {
	sql *sql.DB

	domainWriter *Writer
	urlWriter    *Writer
	jobWriter    *Writer
}

// Open creates (if needed) and opens the sqlite file at path, applies the
// required PRAGMAs, and creates every table if it does not already
// exist. Migration tooling proper is out of scope; this is
// intentionally idempotent "create if missing" only.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf(dsnFormat, path)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &ErrUnavailable{cause: err}
	}
	sqlDB.SetMaxOpenConns(1) // sqlite: one connection; reads and writes take turns on it
	if err := sqlDB.Ping(); err != nil {
		return nil, &ErrUnavailable{cause: err}
	}

	d := &DB{
		sql:          sqlDB,
		domainWriter: NewWriter(),
		urlWriter:    NewWriter(),
		jobWriter:    NewWriter(),
	}
	if err := d.createSchema(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	glog.Infof("db: opened %s", path)
	return d, nil
}

func (d *DB) createSchema() error {
	tx, err := d.sql.Begin()
	if err != nil {
		return errors.Wrap(err, "db: begin schema tx")
	}
	for _, stmt := range schema {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "db: create schema: %s", stmt)
		}
	}
	return tx.Commit()
}

func (d *DB) Close() error {
	d.domainWriter.Close()
	d.urlWriter.Close()
	d.jobWriter.Close()
	return d.sql.Close()
}

// SQL exposes the underlying handle for packages that own their own
// tables end to end (store, queue, planner, places) and do their own
// prepared statements; DB itself only owns schema creation and the
// cross-cutting writer-ordering discipline.
func (d *DB) SQL() *sql.DB { return d.sql }

// WithDomainWrite, WithURLWrite, WithJobWrite serialise writes to their
// respective table through a single coordinator goroutine. Never hold a
// storage lock across a network call; always acquire in order
// domain -> url -> job. Callers
// needing more than one lock must acquire them in that order by nesting
// calls in that order - nesting the other way will deadlock under
// concurrent callers and is a programmer error, not a runtime one.
func (d *DB) WithDomainWrite(fn func() error) error { return d.domainWriter.Do(fn) }
func (d *DB) WithURLWrite(fn func() error) error    { return d.urlWriter.Do(fn) }
func (d *DB) WithJobWrite(fn func() error) error    { return d.jobWriter.Do(fn) }
