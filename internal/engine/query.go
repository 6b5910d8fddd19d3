package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"opaca-backend/internal/schema"
	"opaca-backend/internal/store"
)

// bracketed-operator form: field[op]=value
var filterKeyRe = regexp.MustCompile(`^([^\[]+)\[([^\]]+)\]$`)

var filterOps = map[string]bool{
	"gt": true, "gte": true, "lt": true, "lte": true, "like": true, "ne": true,
}

// ParseListQuery translates the flat query-string map into a structured
// filter plus find options, independent of any backend.
//
// Reserved keys page/limit/sort are extracted first; non-numeric page/limit
// fall back to defaults rather than erroring. Every remaining key is either
// a direct equality (field=v) or a bracketed operator (field[op]=v); multiple
// operators on one field accumulate and are AND-combined. Unknown fields are
// rejected with a 400 so client-supplied names never reach SQL unvetted.
func ParseListQuery(c *fiber.Ctx, col *schema.Collection) (store.Filter, store.FindOptions, error) {
	opts := store.FindOptions{Page: 1, Limit: store.DefaultLimit}

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			opts.Page = v
		}
	}
	if l := c.Query("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			opts.Limit = v
		}
	}

	if s := c.Query("sort"); s != "" {
		field := strings.TrimPrefix(s, "-")
		if !col.HasField(field) {
			return nil, opts, NewAppError(fiber.StatusBadRequest, fmt.Sprintf("Unknown sort field: %s", field))
		}
		opts.Sort = s
	}

	filter := store.Filter{}
	for key, val := range c.Queries() {
		if key == "page" || key == "limit" || key == "sort" {
			continue
		}

		field, op := key, ""
		if m := filterKeyRe.FindStringSubmatch(key); m != nil {
			field, op = m[1], m[2]
		}

		if !col.HasField(field) {
			return nil, opts, NewAppError(fiber.StatusBadRequest, fmt.Sprintf("Unknown filter field: %s", field))
		}
		if op != "" && !filterOps[op] {
			return nil, opts, NewAppError(fiber.StatusBadRequest, fmt.Sprintf("Unknown filter operator: %s", op))
		}

		filter[field] = append(filter[field], store.Condition{
			Op:    op,
			Value: coerceFilterValue(col, field, val),
		})
	}

	return filter, opts, nil
}

// coerceFilterValue converts the raw query-string value to the Go type the
// declared field stores, so bound parameters compare against typed columns.
func coerceFilterValue(col *schema.Collection, field, val string) any {
	if field == schema.ColumnID {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
		return val
	}
	f := col.GetField(field)
	if f == nil {
		return val
	}
	switch f.Type {
	case schema.FieldNumber:
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			return n
		}
	case schema.FieldBoolean:
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return val
}
