package sqlite

import (
	"database/sql"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/planfit/internal/testhelpers"
)

const exportTestSchema = `
CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE plans (id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE plan_training_days (plan_id INTEGER REFERENCES plans (id), position INTEGER, label TEXT,
                                 PRIMARY KEY (plan_id, position)) WITHOUT ROWID;
CREATE TABLE plan_assignments (user_id INTEGER PRIMARY KEY REFERENCES users (id), plan_id INTEGER REFERENCES plans (id));
CREATE TABLE training_sessions (user_id INTEGER REFERENCES users (id), session_date TEXT,
                                PRIMARY KEY (user_id, session_date)) WITHOUT ROWID;
CREATE TABLE set_logs (user_id INTEGER, session_date TEXT, set_number INTEGER, weight_kg REAL,
                       PRIMARY KEY (user_id, session_date, set_number),
                       FOREIGN KEY (user_id, session_date) REFERENCES training_sessions (user_id, session_date))
    WITHOUT ROWID;
CREATE TABLE feature_flags (name TEXT PRIMARY KEY, enabled INTEGER);
`

func TestDatabase_ExportUserDB(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		userID     int
		schema     string
		data       []string
		wantCounts map[string]int
		wantErr    bool
	}{
		{
			name:   "owned rows are filtered and the assigned plan is copied with its days",
			userID: 1,
			schema: exportTestSchema,
			data: []string{
				"INSERT INTO users (id, name) VALUES (1, 'Ada'), (2, 'Grace')",
				"INSERT INTO plans (id, name) VALUES (1, 'Spring block')",
				"INSERT INTO plan_training_days (plan_id, position, label) VALUES (1, 0, 'Day 1'), (1, 1, 'Day 2')",
				"INSERT INTO plan_assignments (user_id, plan_id) VALUES (1, 1), (2, 1)",
				"INSERT INTO training_sessions (user_id, session_date) VALUES (1, '2024-01-01'), (1, '2024-01-03'), (2, '2024-01-01')",
				"INSERT INTO set_logs VALUES (1, '2024-01-01', 1, 100), (1, '2024-01-01', 2, 102.5), (2, '2024-01-01', 1, 60)",
				"INSERT INTO feature_flags (name, enabled) VALUES ('maintenance_mode', 0)",
			},
			wantCounts: map[string]int{
				"users":              1,
				"plans":              1,
				"plan_training_days": 2,
				"plan_assignments":   1,
				"training_sessions":  2,
				"set_logs":           2,
			},
		},
		{
			name:   "user without data gets empty tables",
			userID: 999,
			schema: exportTestSchema,
			data: []string{
				"INSERT INTO users (id, name) VALUES (1, 'Ada')",
				"INSERT INTO training_sessions (user_id, session_date) VALUES (1, '2024-01-01')",
			},
			wantCounts: map[string]int{
				"users":              0,
				"plans":              0,
				"plan_training_days": 0,
				"plan_assignments":   0,
				"training_sessions":  0,
				"set_logs":           0,
			},
		},
		{
			name:   "table renamed by a migration",
			userID: 1,
			schema: `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE measurements_migration_temp (user_id INTEGER REFERENCES users (id), measured_on TEXT);
ALTER TABLE measurements_migration_temp RENAME TO measurements;`,
			data: []string{
				"INSERT INTO users (id, name) VALUES (1, 'Ada')",
				"INSERT INTO measurements VALUES (1, '2024-01-01'), (1, '2024-01-08')",
			},
			wantCounts: map[string]int{
				"users":        1,
				"measurements": 2,
			},
		},
		{
			name:    "no users table",
			userID:  1,
			schema:  "CREATE TABLE measurements (user_id INTEGER, measured_on TEXT)",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := t.Context()
			logger := testhelpers.NewTestLogger(t)

			db, err := connect(ctx, ":memory:", logger)
			if err != nil {
				t.Fatalf("Failed to connect to database: %v", err)
			}
			t.Cleanup(func() {
				if closeErr := db.Close(); closeErr != nil {
					t.Errorf("Failed to close database: %v", closeErr)
				}
			})
			if _, err = db.ReadWrite.ExecContext(ctx, tt.schema); err != nil {
				t.Fatalf("Failed to create schema: %v", err)
			}
			for _, stmt := range tt.data {
				if _, err = db.ReadWrite.ExecContext(ctx, stmt); err != nil {
					t.Fatalf("Failed to insert test data: %v", err)
				}
			}

			dbPath, err := db.ExportUserDB(ctx, tt.userID, t.TempDir())
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExportUserDB() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			exported, err := sql.Open("sqlite3", dbPath)
			if err != nil {
				t.Fatalf("Failed to open exported database: %v", err)
			}
			defer func() {
				_ = exported.Close()
			}()

			counts := make(map[string]int)
			rows, err := exported.QueryContext(ctx, `SELECT name FROM sqlite_schema WHERE type = 'table'`)
			if err != nil {
				t.Fatalf("Failed to query tables: %v", err)
			}
			var tables []string
			for rows.Next() {
				var table string
				if err = rows.Scan(&table); err != nil {
					t.Fatalf("Failed to scan table name: %v", err)
				}
				tables = append(tables, table)
			}
			_ = rows.Close()
			for _, table := range tables {
				var count int
				if err = exported.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
					t.Fatalf("Failed to count %s: %v", table, err)
				}
				counts[table] = count
			}

			if diff := cmp.Diff(tt.wantCounts, counts); diff != "" {
				t.Errorf("exported row counts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDatabase_ExportUserDB_overwritesPreviousExport(t *testing.T) {
	ctx := t.Context()
	db, err := connect(ctx, ":memory:", testhelpers.NewTestLogger(t))
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if _, err = db.ReadWrite.ExecContext(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY); INSERT INTO users VALUES (1)"); err != nil {
		t.Fatalf("Failed to set up: %v", err)
	}

	dir := t.TempDir()
	for range 2 {
		if _, err = db.ExportUserDB(ctx, 1, dir); err != nil {
			t.Fatalf("ExportUserDB() error = %v", err)
		}
	}
}
