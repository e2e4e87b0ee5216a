package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// DBProvider hands out the database handle for a single operation. The
// session manager implements it by opening the handle lazily.
type DBProvider interface {
	DB(ctx context.Context) (*sqlx.DB, error)
}

// StaticDB adapts an already open handle to DBProvider.
type StaticDB struct {
	Handle *sqlx.DB
}

// DB returns the wrapped handle.
func (s StaticDB) DB(context.Context) (*sqlx.DB, error) {
	return s.Handle, nil
}
