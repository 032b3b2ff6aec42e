// Package dbtest opens throwaway SQLite databases carrying the tenant schema.
// Production runs on MySQL; the stores only use SQL both engines accept.
package dbtest

import (
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Open returns a fresh database for one tenant, closed when the test ends.
func Open(t testing.TB, name string) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".db")
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	t.Cleanup(func() { db.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("schema %s: %v\n%s", name, err, stmt)
		}
	}
	return db
}

// Exec runs a statement and fails the test on error.
func Exec(t testing.TB, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// Count runs a COUNT(*) style query.
func Count(t testing.TB, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

// StatusName returns the status name referenced by a row, or "" when status_id is NULL.
func StatusName(t testing.TB, db *sql.DB, table, where string, args ...any) string {
	t.Helper()
	var name sql.NullString
	q := fmt.Sprintf(`SELECT s.name FROM %s x LEFT JOIN statuses s ON s.status_id = x.status_id WHERE %s`, table, where)
	if err := db.QueryRow(q, args...).Scan(&name); err != nil {
		t.Fatalf("status of %s where %s: %v", table, where, err)
	}
	return name.String
}
