package store

import (
	"context"
	"database/sql"
	"fmt"

	"opaca-backend/internal/schema"
)

// Dialect abstracts database-specific SQL generation and behavior. Nothing
// outside the adapter branches on backend identity; it all goes through here.
type Dialect interface {
	// Name returns "sqlite" or "postgres".
	Name() string

	// DriverName returns the database/sql driver name ("sqlite" or "pgx").
	DriverName() string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// ColumnType maps a field type to the DDL column type. Boolean maps to
	// an integer type on every dialect so 0/1 storage is backend-independent.
	ColumnType(t schema.FieldType) string

	// PrimaryKeySQL returns the DDL for the auto-increment integer id column.
	PrimaryKeySQL() string

	// TimestampColumnSQL returns the DDL for a createdAt/updatedAt column
	// with a current-timestamp default.
	TimestampColumnSQL(name string) string

	// TableExists checks whether a table exists.
	TableExists(ctx context.Context, db *sql.DB, table string) (bool, error)

	// MapError inspects a driver error and returns a sentinel when it
	// recognizes the shape, otherwise the error unchanged.
	MapError(err error) error
}

// ParamBuilder accumulates query parameters and generates dialect-specific
// placeholders.
type ParamBuilder interface {
	// Add appends a value and returns its placeholder string.
	Add(v any) string

	// Params returns all accumulated parameter values.
	Params() []any
}

// NewDialect creates a Dialect for the given driver name.
func NewDialect(driver string) Dialect {
	switch driver {
	case "postgres":
		return &PostgresDialect{}
	default:
		return &SQLiteDialect{}
	}
}

type pgParamBuilder struct {
	params []any
	n      int
}

func (p *pgParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

func (p *pgParamBuilder) Params() []any { return p.params }

type sqliteParamBuilder struct {
	params []any
	n      int
}

func (p *sqliteParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("?%d", p.n)
}

func (p *sqliteParamBuilder) Params() []any { return p.params }
