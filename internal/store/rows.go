package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// queryRows executes a query and returns results as documents.
func queryRows(ctx context.Context, db *sql.DB, query string, args ...any) ([]Document, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}

	var results []Document
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		doc := make(Document, len(columns))
		for i, c := range columns {
			doc[c] = normalizeValue(values[i])
		}
		results = append(results, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return results, nil
}

// sanitizeValue converts a Go value to its uniform stored representation:
// bool -> 0/1, time -> ISO-8601 text, nested map/slice -> JSON text, nil -> NULL.
// Identical across dialects so behavior is backend-independent.
func sanitizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bool:
		if val {
			return 1
		}
		return 0
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case map[string]any, []any, []string:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return val
	}
}

// normalizeValue converts driver types to JSON-friendly Go types.
// database/sql returns []byte for TEXT columns on some drivers.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// normalizeBooleans restores 0/1 integers to bool for the named fields.
// Boolean columns are stored as integers on every dialect.
func normalizeBooleans(docs []Document, boolFields []string) {
	if len(boolFields) == 0 || len(docs) == 0 {
		return
	}
	set := make(map[string]bool, len(boolFields))
	for _, f := range boolFields {
		set[f] = true
	}
	for _, doc := range docs {
		for k, v := range doc {
			if !set[k] {
				continue
			}
			switch n := v.(type) {
			case int64:
				doc[k] = n != 0
			case int:
				doc[k] = n != 0
			case float64:
				doc[k] = n != 0
			}
		}
	}
}
