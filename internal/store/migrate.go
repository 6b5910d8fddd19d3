package store

import (
	"context"
	"fmt"
	"strings"

	"opaca-backend/internal/schema"
)

// ColumnDefs derives the column-definition list for a collection: the
// auto-increment id first, declared fields in declaration order, timestamp
// columns last. Pure; shared by every dialect.
func ColumnDefs(d Dialect, col *schema.Collection) []string {
	defs := []string{d.PrimaryKeySQL()}

	for _, f := range col.Fields {
		def := quoteIdent(f.Name) + " " + d.ColumnType(f.Type)
		if f.Required {
			def += " NOT NULL"
		}
		if f.Unique {
			def += " UNIQUE"
		}
		if f.DefaultValue != nil {
			def += " DEFAULT " + defaultLiteral(f)
		}
		defs = append(defs, def)
	}

	if col.Timestamps {
		defs = append(defs,
			d.TimestampColumnSQL(schema.ColumnCreatedAt),
			d.TimestampColumnSQL(schema.ColumnUpdatedAt))
	}
	return defs
}

// defaultLiteral renders a field default as a DDL literal. Strings are
// single-quote escaped; booleans use the uniform 0/1 storage.
func defaultLiteral(f schema.Field) string {
	switch v := f.DefaultValue.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Migrate ensures a table exists per collection. CREATE TABLE IF NOT EXISTS
// only: repeat calls are no-ops and existing columns are never dropped or
// altered. Adding a field to an already-created table is out of scope.
func (s *SQL) Migrate(ctx context.Context, collections []schema.Collection) error {
	for i := range collections {
		col := &collections[i]
		if err := col.Validate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		exists, err := s.dialect.TableExists(ctx, s.db, col.Slug)
		if err != nil {
			return fmt.Errorf("migrate %s: check table: %w", col.Slug, err)
		}
		if !exists {
			ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
				quoteIdent(col.Slug), strings.Join(ColumnDefs(s.dialect, col), ", "))
			if _, err := s.db.ExecContext(ctx, ddl); err != nil {
				return fmt.Errorf("migrate %s: %w", col.Slug, s.dialect.MapError(err))
			}
		}

		// record the declaration for identifier vetting and bool round-trips
		c := *col
		s.collections[col.Slug] = &c
	}
	return nil
}
