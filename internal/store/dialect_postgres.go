package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"opaca-backend/internal/schema"
)

// PostgresDialect implements Dialect for PostgreSQL via the pgx stdlib driver.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) ColumnType(t schema.FieldType) string {
	switch t {
	case schema.FieldNumber:
		return "DOUBLE PRECISION"
	case schema.FieldBoolean:
		// stored as 0/1 so round-tripping matches the sqlite adapter
		return "SMALLINT"
	default:
		return "TEXT"
	}
}

func (d *PostgresDialect) PrimaryKeySQL() string {
	return "id BIGSERIAL PRIMARY KEY"
}

func (d *PostgresDialect) TimestampColumnSQL(name string) string {
	// text column for dialect-uniform ISO-8601 storage
	return fmt.Sprintf("%q TEXT DEFAULT to_char(now() AT TIME ZONE 'UTC', 'YYYY-MM-DD HH24:MI:SS')", name)
}

func (d *PostgresDialect) TableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public')`,
		table,
	).Scan(&exists)
	return exists, err
}

// Postgres error classes: 23xxx are integrity constraint violations.
func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "23" {
		return fmt.Errorf("%w: %w", ErrConstraint, err)
	}
	return err
}

var _ Dialect = (*PostgresDialect)(nil)
