package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/hawachat/internal/store/sqlstore/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL backend. Queries are shared; only the driver,
// the goose dialect and the migration directory differ.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect validates a configured dialect name.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(s); d {
	case DialectSQLite, DialectPostgres:
		return d, nil
	}
	return "", fmt.Errorf("unknown sql dialect %q", s)
}

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Dialect) gooseDialect() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite3"
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations for d.
func RunMigrations(ctx context.Context, db *sql.DB, d Dialect) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(d.gooseDialect()); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, string(d)); err != nil {
		return fmt.Errorf("migrate %s: %w", d, err)
	}
	return nil
}

// OpenDB opens a connection pool for d and migrates it. SQLite gets a
// single connection so in-memory databases are shared and writers never
// hit SQLITE_BUSY.
func OpenDB(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, err
	}
	if d == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := RunMigrations(ctx, db, d); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
