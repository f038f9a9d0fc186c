// Package db provides the Postgres connection helper and the embedded
// migration files for the refresh token store.
package db

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a Postgres connection using the given DSN and verifies it with a
// ping. Caller must call Close when done.
func Open(dsn string) (*sql.DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}
