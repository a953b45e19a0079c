//go:build cgo_sqlite

package main

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// initDB opens a SQLite table through the cgo driver, waiting on a locked
// database instead of failing at once.
func initDB(path string) (*sql.DB, error) {
	if !strings.Contains(path, "?") {
		path += "?_busy_timeout=5000"
	}
	return sql.Open("sqlite3", path)
}
