package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const usersTable = "users"

// foreignKey is one column mapping of a foreign key constraint.
type foreignKey struct {
	table string // referenced table
	from  string
	to    string
}

// exportPlan tells which tables hold the user's data. Owned tables map to the column holding the user ID and
// are filtered by it. Shared tables, such as plans, are referenced by owned ones and are copied whole.
type exportPlan struct {
	owned  map[string]string
	shared map[string]bool
}

// ExportUserDB exports the data of a single user into a separate SQLite database file under basePath and returns
// its path.
//
// Tables are discovered through foreign keys to users so that new tables are exported without changes here.
// This is how users download all their data to comply with GDPR.
func (db *Database) ExportUserDB(ctx context.Context, userID int, basePath string) (_ string, err error) {
	exportPath := filepath.Join(basePath, fmt.Sprintf("user-db-%d.sqlite3", userID))
	// A leftover from an interrupted export would make the table creation fail.
	if err = os.Remove(exportPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("remove previous export: %w", err)
	}

	conn, err := db.ReadOnly.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("get db connection: %w", err)
	}
	defer func() {
		// The connection goes back to the read-only pool so its pragmas have to be restored.
		restoreErr := setExportPragmas(ctx, conn, false)
		if closeErr := conn.Close(); err == nil {
			err = errors.Join(restoreErr, closeErr)
		}
	}()

	if err = setExportPragmas(ctx, conn, true); err != nil {
		return "", err
	}
	if _, err = conn.ExecContext(ctx, `ATTACH DATABASE ? AS export`, "file:"+exportPath+"?mode=rwc"); err != nil {
		return "", fmt.Errorf("attach export database: %w", err)
	}
	defer func() {
		if _, detachErr := conn.ExecContext(ctx, `DETACH DATABASE export`); detachErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to detach export database", slog.Any("error", detachErr))
		}
	}()

	if err = db.copyUserData(ctx, conn, userID); err != nil {
		return "", err
	}
	return exportPath, nil
}

// setExportPragmas allows writes to the attached export database while exporting. Foreign keys are off because
// the tables are copied in no particular order.
func setExportPragmas(ctx context.Context, conn *sql.Conn, exporting bool) error {
	queryOnly, foreignKeys := "TRUE", "ON"
	if exporting {
		queryOnly, foreignKeys = "FALSE", "OFF"
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = "+queryOnly); err != nil {
		return fmt.Errorf("set query_only %s: %w", queryOnly, err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = "+foreignKeys); err != nil {
		return fmt.Errorf("set foreign_keys %s: %w", foreignKeys, err)
	}
	return nil
}

func (db *Database) copyUserData(ctx context.Context, conn *sql.Conn, userID int) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to roll back export", slog.Any("error", rollbackErr))
		}
	}()

	fks, err := queryForeignKeys(ctx, tx)
	if err != nil {
		return err
	}
	if _, ok := fks[usersTable]; !ok {
		return errors.New("users table does not exist")
	}
	plan := newExportPlan(fks)

	for _, table := range plan.tables() {
		if err = copyTableSchema(ctx, tx, table); err != nil {
			return err
		}
		query := fmt.Sprintf("INSERT INTO export.%s SELECT * FROM main.%s", table, table)
		var args []any
		if column, owned := plan.owned[table]; owned {
			query += fmt.Sprintf(" WHERE %s = ?", column)
			args = append(args, userID)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("copy rows of %s: %w", table, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit export: %w", err)
	}
	return nil
}

// queryForeignKeys returns the foreign keys of every user table. Tables without foreign keys are included with
// a nil slice.
func queryForeignKeys(ctx context.Context, tx *sql.Tx) (map[string][]foreignKey, error) {
	rows, err := tx.QueryContext(ctx, `SELECT m.name, fk."table", fk."from", fk."to"
FROM main.sqlite_schema AS m
         LEFT JOIN pragma_foreign_key_list(m.name) AS fk
WHERE m.type = 'table'
  AND m.name NOT LIKE 'sqlite_%'
  AND m.name NOT LIKE '_litestream_%'`)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	fks := make(map[string][]foreignKey)
	for rows.Next() {
		var (
			name            string
			table, from, to sql.NullString
		)
		if err = rows.Scan(&name, &table, &from, &to); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		keys := fks[name]
		if table.Valid {
			keys = append(keys, foreignKey{table: table.String, from: from.String, to: to.String})
		}
		fks[name] = keys
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}
	return fks, nil
}

func newExportPlan(fks map[string][]foreignKey) exportPlan {
	plan := exportPlan{
		owned:  map[string]string{usersTable: "id"},
		shared: make(map[string]bool),
	}

	// A table is owned when it references the user ID column of an owned table, e.g. set_logs (user_id) →
	// training_sessions (user_id) → users (id).
	for changed := true; changed; {
		changed = false
		for table, keys := range fks {
			if _, ok := plan.owned[table]; ok {
				continue
			}
			for _, fk := range keys {
				if column, ok := plan.owned[fk.table]; ok && fk.to == column {
					plan.owned[table] = fk.from
					changed = true
					break
				}
			}
		}
	}

	// Shared tables are the ones exported tables reference, together with the tables that hang off them, such
	// as the training days of a referenced plan.
	for changed := true; changed; {
		changed = false
		for table, keys := range fks {
			for _, fk := range keys {
				if plan.isExported(table) && !plan.isExported(fk.table) {
					plan.shared[fk.table] = true
					changed = true
				}
				if plan.shared[fk.table] && !plan.isExported(table) {
					plan.shared[table] = true
					changed = true
				}
			}
		}
	}
	return plan
}

func (p exportPlan) isExported(table string) bool {
	_, owned := p.owned[table]
	return owned || p.shared[table]
}

// tables returns the exported tables in a stable order.
func (p exportPlan) tables() []string {
	tables := make([]string, 0, len(p.owned)+len(p.shared))
	for table := range p.owned {
		tables = append(tables, table)
	}
	for table := range p.shared {
		tables = append(tables, table)
	}
	slices.Sort(tables)
	return tables
}

// copyTableSchema creates the table in the export database with the definition it has in the main database.
func copyTableSchema(ctx context.Context, tx *sql.Tx, table string) error {
	var createSQL string
	if err := tx.QueryRowContext(ctx, `SELECT sql FROM main.sqlite_schema WHERE type = 'table' AND name = ?`,
		table).Scan(&createSQL); err != nil {
		return fmt.Errorf("get schema of %s: %w", table, err)
	}
	// The stored name may be quoted after a migration renamed the table, so everything up to the column list
	// is replaced.
	columns := strings.Index(createSQL, "(")
	if columns < 0 {
		return fmt.Errorf("unexpected definition of %s: %s", table, createSQL)
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE export."+table+" "+createSQL[columns:]); err != nil {
		return fmt.Errorf("create %s in export database: %w", table, err)
	}
	return nil
}
