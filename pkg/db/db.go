package db

import (
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (creating if needed) the sqlite cache at path and migrates it.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, "open cache %s", path)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	conn.SetMaxOpenConns(1)
	if err := InitDB(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// InitDB runs migrations on the given DB connection using the embedded SQL.
func InitDB(db *sql.DB) error {
	stmts := strings.Split(migrationsSQL, ";")
	for _, s := range stmts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return errors.Wrap(err, "migrate cache")
		}
	}
	return nil
}
