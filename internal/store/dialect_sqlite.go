package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"opaca-backend/internal/schema"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) ColumnType(t schema.FieldType) string {
	switch t {
	case schema.FieldNumber:
		return "REAL"
	case schema.FieldBoolean:
		return "INTEGER"
	default:
		// text, richtext, relationship, select, date, array
		return "TEXT"
	}
}

func (d *SQLiteDialect) PrimaryKeySQL() string {
	return "id INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (d *SQLiteDialect) TimestampColumnSQL(name string) string {
	return fmt.Sprintf("%s TEXT DEFAULT CURRENT_TIMESTAMP", name)
}

func (d *SQLiteDialect) TableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?1",
		table,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "NOT NULL constraint failed") ||
		strings.Contains(msg, "constraint failed") {
		return fmt.Errorf("%w: %w", ErrConstraint, err)
	}
	return err
}

var _ Dialect = (*SQLiteDialect)(nil)
