package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/cognicore/entmoot/pkg/entmoot/ast"
	"github.com/cognicore/entmoot/pkg/entmoot/store"
)

// sqliteStore implements store.Store on an in-memory SQLite database.
type sqliteStore struct {
	db   *sql.DB
	name string
}

// OpenMemory opens a private in-memory SQLite database. Each call gets its own
// database, named by a fresh ULID; nothing outlives the process.
func OpenMemory(ctx context.Context) (store.Store, error) {
	name := ulid.MustNew(ulid.Now(), rand.Reader).String()
	dsn := fmt.Sprintf("file:entmoot-%s?mode=memory&cache=shared", name)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// The database lives as long as its last connection, so keep exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db, name: name}, nil
}

// Close closes the database connection, discarding its contents.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS relations (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS facts (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	tbl TEXT NOT NULL,
	key TEXT NOT NULL,
	fields TEXT NOT NULL,
	UNIQUE(tbl, key)
);

CREATE INDEX IF NOT EXISTS facts_by_table ON facts(tbl, seq);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

func touchTable(ctx context.Context, tx *sql.Tx, table string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO relations (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, table)
	return err
}

// Insert adds a tuple unless an equal one is stored.
func (s *sqliteStore) Insert(ctx context.Context, table string, tuple ast.Tuple) (bool, error) {
	fields, err := store.EncodeTuple(tuple)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if err := touchTable(ctx, tx, table); err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO facts (tbl, key, fields)
VALUES (?, ?, ?)
ON CONFLICT(tbl, key) DO NOTHING;
`, table, tuple.Key(), string(fields))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Retract deletes every tuple equal to tuple. Unknown tables are left
// unregistered.
func (s *sqliteStore) Retract(ctx context.Context, table string, tuple ast.Tuple) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM facts WHERE tbl = ? AND key = ?`, table, tuple.Key())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Scan returns the table's tuples in insertion order.
func (s *sqliteStore) Scan(ctx context.Context, table string) ([]ast.Tuple, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT fields FROM facts WHERE tbl = ? ORDER BY seq`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ast.Tuple
	for rows.Next() {
		var fields string
		if err := rows.Scan(&fields); err != nil {
			return nil, err
		}
		tuple, err := store.DecodeTuple([]byte(fields))
		if err != nil {
			return nil, err
		}
		out = append(out, tuple)
	}
	return out, rows.Err()
}

// Tables returns table names in first-touch order.
func (s *sqliteStore) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM relations ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
