//go:build !cgo_sqlite

package main

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

// initDB opens a SQLite table through the pure Go driver, waiting on a
// locked database instead of failing at once.
func initDB(path string) (*sql.DB, error) {
	if !strings.Contains(path, "?") {
		path += "?_pragma=busy_timeout(5000)"
	}
	return sql.Open("sqlite", path)
}
