// Package sqlite opens the application database, keeps its schema in sync with schema.sql and exports the data
// of a single user.
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/robfig/cron"

	_ "embed"
)

//go:embed schema.sql
var schemaDefinition string

// fixtures are idempotent inserts of the feature flags and the sample plan.
//
//go:embed fixtures.sql
var fixtures string

// Database holds a single writer connection and a pool of readers on the same SQLite file.
type Database struct {
	ReadWrite *sql.DB
	ReadOnly  *sql.DB
	logger    *slog.Logger
	optimizer *cron.Cron
	closeOnce sync.Once
}

// NewDatabase opens the database at dsn, or a private in-memory database for ":memory:", migrates it to
// schema.sql, applies the fixtures and schedules the optimizer.
func NewDatabase(ctx context.Context, dsn string, logger *slog.Logger) (*Database, error) {
	db, err := connect(ctx, dsn, logger)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	for _, step := range []struct {
		name string
		run  func(context.Context) error
	}{
		{"migrate schema", func(ctx context.Context) error { return db.migrateTo(ctx, schemaDefinition) }},
		{"apply fixtures", func(ctx context.Context) error {
			_, execErr := db.ReadWrite.ExecContext(ctx, fixtures)
			return execErr //nolint:wrapcheck // wrapped below.
		}},
		{"start optimizer", db.startDatabaseOptimizer},
	} {
		if err = step.run(ctx); err != nil {
			return nil, errors.Join(fmt.Errorf("%s: %w", step.name, err), db.Close())
		}
	}
	return db, nil
}

const optimizedDriver = "sqlite3optimized"

//nolint:gochecknoglobals // the driver name can be registered only once per process.
var registerDriver = sync.OnceFunc(func() {
	sql.Register(optimizedDriver, &sqlite3.SQLiteDriver{
		Extensions: nil,
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// wal_autocheckpoint is off because Litestream checkpoints the WAL.
			const pragmas = "PRAGMA temp_store = memory; PRAGMA mmap_size = 30000000000; PRAGMA wal_autocheckpoint = 0;"
			if _, err := conn.Exec(pragmas, nil); err != nil {
				return fmt.Errorf("exec connection pragmas: %w", err)
			}
			return nil
		},
	})
})

// pool describes one of the two connection pools. Options prefixed with an underscore are go-sqlite3 DSN
// parameters, the rest are SQLite URI parameters.
type pool struct {
	name     string
	mode     string
	txlock   string
	maxConns int
	extra    []string
}

//nolint:gochecknoglobals // constant pool descriptions.
var (
	writerPool = pool{name: "read-write", mode: "rwc", txlock: "immediate", maxConns: 1, extra: nil}
	readerPool = pool{name: "read-only", mode: "ro", txlock: "deferred", maxConns: 10, extra: []string{
		"_query_only=true",
	}}
)

// sharedParams apply to both pools. Deferred foreign keys let a transaction violate constraints until commit.
//
//nolint:gochecknoglobals // constant list.
var sharedParams = []string{
	"_loc=auto",
	"_defer_foreign_keys=1",
	"_journal_mode=wal",
	"_busy_timeout=5000",
	"_synchronous=normal",
	"_foreign_keys=on",
}

func (p pool) dsn(file string, inMemory bool) string {
	params := append([]string{"mode=" + p.mode, "_txlock=" + p.txlock}, p.extra...)
	params = append(params, sharedParams...)
	if inMemory {
		// Both pools must see the same in-memory database.
		params = append(params, "mode=memory", "cache=shared")
	}
	return "file:" + file + "?" + strings.Join(params, "&")
}

func (p pool) open(ctx context.Context, file string, inMemory bool) (*sql.DB, error) {
	db, err := sql.Open(optimizedDriver, p.dsn(file, inMemory))
	if err != nil {
		return nil, fmt.Errorf("open %s pool: %w", p.name, err)
	}
	db.SetMaxOpenConns(p.maxConns)
	db.SetMaxIdleConns(p.maxConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(time.Hour)
	if err = db.PingContext(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping %s pool: %w", p.name, err), db.Close())
	}
	return db, nil
}

// connect opens both pools without migrating. Every ":memory:" database gets a random name so that parallel
// tests stay isolated.
func connect(ctx context.Context, dsn string, logger *slog.Logger) (*Database, error) {
	registerDriver()

	inMemory := strings.Contains(dsn, ":memory:")
	file := dsn
	if inMemory {
		file = rand.Text()
	}

	// The writer is opened first because it creates the file the readers open read-only.
	writer, err := writerPool.open(ctx, file, inMemory)
	if err != nil {
		return nil, err
	}
	reader, err := readerPool.open(ctx, file, inMemory)
	if err != nil {
		return nil, errors.Join(err, writer.Close())
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "opened database",
		slog.String("sqlDsn", writerPool.dsn(file, inMemory)), slog.Bool("in_memory", inMemory))

	return &Database{
		ReadWrite: writer,
		ReadOnly:  reader,
		logger:    logger,
	}, nil
}

// Close stops the optimizer and closes the database connections.
func (db *Database) Close() error {
	db.stopOptimizer()
	return errors.Join(db.ReadOnly.Close(), db.ReadWrite.Close())
}
