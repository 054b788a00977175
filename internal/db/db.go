package db

import (
	"context"
	"database/sql"
)

// DB wraps the postgres handle shared by every repository.
type DB struct {
	*sql.DB
}

// Ping reports whether the database answers within ctx.
func (d *DB) Ping(ctx context.Context) error {
	return d.PingContext(ctx)
}
