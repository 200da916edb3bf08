package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"
)

type schemaType string

const (
	schemaTypeTable   schemaType = "table"
	schemaTypeIndex   schemaType = "index"
	schemaTypeTrigger schemaType = "trigger"
)

// schemaEntry is one object of the live schema, the target schema, or both. An empty liveSQL means the object
// is new and an empty targetSQL means it was removed.
type schemaEntry struct {
	name      string
	liveSQL   string
	targetSQL string
}

func (e schemaEntry) added() bool   { return e.liveSQL == "" }
func (e schemaEntry) removed() bool { return e.targetSQL == "" }

// changed ignores quoting because ALTER TABLE RENAME quotes the table name in the stored SQL.
func (e schemaEntry) changed() bool {
	return strings.ReplaceAll(e.liveSQL, `"`, "") != strings.ReplaceAll(e.targetSQL, `"`, "")
}

// schemaDiffQuery lists the objects of one type from both schemas. Internal SQLite and Litestream objects are
// never touched.
const schemaDiffQuery = `SELECT live.name, live.sql, COALESCE(target.sql, '')
FROM main.sqlite_schema AS live
         LEFT JOIN schemaTarget.sqlite_schema AS target ON live.name = target.name AND live.type = target.type
WHERE live.type = :type
  AND live.name NOT LIKE 'sqlite_%'
  AND live.name NOT LIKE '_litestream_%'
UNION ALL
SELECT target.name, '', target.sql
FROM schemaTarget.sqlite_schema AS target
         LEFT JOIN main.sqlite_schema AS live ON live.name = target.name AND live.type = target.type
WHERE target.type = :type
  AND live.type IS NULL
  AND target.name NOT LIKE 'sqlite_%'
  AND target.name NOT LIKE '_litestream_%'`

// migration runs the statements of one schema migration inside a single transaction.
type migration struct {
	tx     *sql.Tx
	logger *slog.Logger
}

// migrateTo makes the live schema match schemaDefinition declaratively. The target schema is created in an
// attached in-memory database and every table, index, trigger and view is diffed against it. Changed tables
// go through the generalized ALTER TABLE procedure https://www.sqlite.org/lang_altertable.html#otheralter.
//
// Inspired by https://david.rothlis.net/declarative-schema-migration-for-sqlite/
func (db *Database) migrateTo(ctx context.Context, schemaDefinition string) error {
	start := time.Now()

	detach, err := db.attachSchemaTarget(ctx, schemaDefinition)
	if err != nil {
		return fmt.Errorf("attach schema target: %w", err)
	}
	defer detach()

	// Copying the rows of a changed table would otherwise trip the foreign keys pointing at it.
	if _, err = db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}
	defer db.enableForeignKeys(ctx)

	tx, err := db.ReadWrite.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to roll back migration", slog.Any("error", rollbackErr))
		}
	}()

	m := &migration{tx: tx, logger: db.logger}
	if err = m.run(ctx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	db.logger.LogAttrs(ctx, slog.LevelInfo, "migrated database", slog.Duration("duration", time.Since(start)))
	return nil
}

// enableForeignKeys restores foreign key enforcement. Running without it risks silent data corruption so the
// process is stopped when that fails.
func (db *Database) enableForeignKeys(ctx context.Context) {
	if _, err := db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.logger.LogAttrs(ctx, slog.LevelError, "exit to avoid data corruption",
			slog.Any("error", fmt.Errorf("enable foreign keys: %w", err)))
		if err = syscall.Kill(syscall.Getpid(), syscall.SIGINT); err != nil {
			os.Exit(1)
		}
	}
}

// attachSchemaTarget attaches an in-memory database named schemaTarget holding the target schema. The returned
// function detaches it.
func (db *Database) attachSchemaTarget(ctx context.Context, schemaDefinition string) (func(), error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", rand.Text())
	target, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open schema target: %w", err)
	}
	// The shared cache keeps the in-memory database alive while it is attached below.
	defer func() {
		if closeErr := target.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to close schema target", slog.Any("error", closeErr))
		}
	}()
	if _, err = target.ExecContext(ctx, schemaDefinition); err != nil {
		return nil, fmt.Errorf("create target schema: %w", err)
	}
	if _, err = db.ReadWrite.ExecContext(ctx, "ATTACH DATABASE ? AS schemaTarget", dsn); err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	return func() {
		if _, detachErr := db.ReadWrite.ExecContext(ctx, "DETACH DATABASE schemaTarget"); detachErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to detach schema target", slog.Any("error", detachErr))
		}
	}, nil
}

func (m *migration) run(ctx context.Context) error {
	// Views would break the table renames so they are dropped first and recreated last.
	views, err := m.queryStrings(ctx, `SELECT name FROM main.sqlite_schema WHERE type = 'view'`)
	if err != nil {
		return fmt.Errorf("query views: %w", err)
	}
	for _, view := range views {
		if err = m.exec(ctx, fmt.Sprintf("DROP VIEW %s", view)); err != nil {
			return err
		}
	}

	if err = m.migrateTables(ctx); err != nil {
		return fmt.Errorf("migrate tables: %w", err)
	}
	// Recreated tables lost their indexes and triggers so those are synchronized afterwards.
	for _, typ := range []schemaType{schemaTypeTrigger, schemaTypeIndex} {
		if err = m.migrateObjects(ctx, typ); err != nil {
			return fmt.Errorf("migrate %ss: %w", typ, err)
		}
	}

	viewSQLs, err := m.queryStrings(ctx,
		`SELECT sql FROM schemaTarget.sqlite_schema WHERE type = 'view' ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("query target views: %w", err)
	}
	for _, viewSQL := range viewSQLs {
		if err = m.exec(ctx, viewSQL); err != nil {
			return err
		}
	}

	if _, err = m.tx.ExecContext(ctx, "PRAGMA foreign_key_check"); err != nil {
		return fmt.Errorf("foreign key check: %w", err)
	}
	return nil
}

func (m *migration) migrateTables(ctx context.Context) error {
	entries, err := m.diff(ctx, schemaTypeTable)
	if err != nil {
		return err
	}
	for _, e := range entries {
		switch {
		case e.removed():
			err = m.exec(ctx, fmt.Sprintf("DROP TABLE %s", e.name))
		case e.added():
			err = m.exec(ctx, e.targetSQL)
		case e.changed():
			err = m.rebuildTable(ctx, e)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// rebuildTable creates the table with the target definition under a temporary name, copies the columns both
// definitions share, and swaps the new table in.
func (m *migration) rebuildTable(ctx context.Context, e schemaEntry) error {
	m.logger.LogAttrs(ctx, slog.LevelInfo, "rebuilding table",
		slog.String("table", e.name), slog.String("live_sql", e.liveSQL), slog.String("new_sql", e.targetSQL))

	tempName := e.name + "_migration_temp"
	if err := m.exec(ctx, strings.Replace(e.targetSQL, e.name, tempName, 1)); err != nil {
		return err
	}

	// Column names are quoted because some of them may be SQLite keywords.
	columns, err := m.queryStrings(ctx, `SELECT '"' || target.name || '"'
FROM PRAGMA_TABLE_INFO(:table_name) AS live
         JOIN PRAGMA_TABLE_INFO(:table_name, 'schemaTarget') AS target ON target.name = live.name`,
		sql.Named("table_name", e.name))
	if err != nil {
		return fmt.Errorf("query common columns of %s: %w", e.name, err)
	}
	common := strings.Join(columns, ", ")

	for _, stmt := range []string{
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", tempName, common, common, e.name),
		fmt.Sprintf("DROP TABLE %s", e.name),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tempName, e.name),
	} {
		if err = m.exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateObjects synchronizes indexes or triggers. Neither holds data so changed ones are simply recreated.
func (m *migration) migrateObjects(ctx context.Context, typ schemaType) error {
	entries, err := m.diff(ctx, typ)
	if err != nil {
		return err
	}
	drop := "DROP " + strings.ToUpper(string(typ)) + " "
	for _, e := range entries {
		if !e.added() && (e.removed() || e.changed()) {
			if err = m.exec(ctx, drop+e.name); err != nil {
				return err
			}
		}
		if !e.removed() && (e.added() || e.changed()) {
			if err = m.exec(ctx, e.targetSQL); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *migration) diff(ctx context.Context, typ schemaType) ([]schemaEntry, error) {
	rows, err := m.tx.QueryContext(ctx, schemaDiffQuery, sql.Named("type", string(typ)))
	if err != nil {
		return nil, fmt.Errorf("diff %ss: %w", typ, err)
	}
	defer m.closeRows(ctx, rows)

	var entries []schemaEntry
	for rows.Next() {
		var e schemaEntry
		if err = rows.Scan(&e.name, &e.liveSQL, &e.targetSQL); err != nil {
			return nil, fmt.Errorf("scan %s: %w", typ, err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("diff %ss: %w", typ, err)
	}
	return entries, nil
}

func (m *migration) exec(ctx context.Context, stmt string) error {
	m.logger.LogAttrs(ctx, slog.LevelInfo, "migration statement", slog.String("query", stmt))
	if _, err := m.tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("exec %q: %w", stmt, err)
	}
	return nil
}

// queryStrings returns the single column of every row.
func (m *migration) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := m.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer m.closeRows(ctx, rows)

	var results []string
	for rows.Next() {
		var s string
		if err = rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		results = append(results, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return results, nil
}

func (m *migration) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelError, "could not close rows", slog.Any("error", err))
	}
}
