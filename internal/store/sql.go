package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	_ "modernc.org/sqlite"             // register sqlite as database/sql driver

	"opaca-backend/internal/config"
	"opaca-backend/internal/schema"
)

// SQL is the generic SQL-generating adapter. The backend is fully described
// by the Dialect; one instance serves the whole process.
type SQL struct {
	db          *sql.DB
	dialect     Dialect
	cfg         config.DatabaseConfig
	collections map[string]*schema.Collection
}

// New creates an adapter for the configured driver. No I/O happens until
// Connect.
func New(cfg config.DatabaseConfig) *SQL {
	return &SQL{
		dialect:     NewDialect(cfg.Driver),
		cfg:         cfg,
		collections: make(map[string]*schema.Collection),
	}
}

// NewSQLite creates an adapter for an embedded single-file database.
func NewSQLite(path string) *SQL {
	return New(config.DatabaseConfig{Driver: "sqlite", Path: path})
}

// NewPostgres creates an adapter for a networked PostgreSQL database.
func NewPostgres(cfg config.DatabaseConfig) *SQL {
	cfg.Driver = "postgres"
	return New(cfg)
}

func (s *SQL) Name() string { return s.dialect.Name() }

func (s *SQL) Connect(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	db, err := sql.Open(s.dialect.DriverName(), s.cfg.DSN())
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrConnection, s.dialect.Name(), err)
	}

	if s.dialect.Name() == "sqlite" {
		if dir := filepath.Dir(s.cfg.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				db.Close()
				return fmt.Errorf("%w: create data dir: %v", ErrConnection, err)
			}
		}
		// single writer, WAL for concurrent readers
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return fmt.Errorf("%w: enable WAL: %v", ErrConnection, err)
		}
	} else if s.cfg.PoolSize > 0 {
		db.SetMaxOpenConns(s.cfg.PoolSize)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("%w: ping %s: %v", ErrConnection, s.dialect.Name(), err)
	}

	s.db = db
	return nil
}

func (s *SQL) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// DB exposes the underlying handle for system probes (tests, admin setup).
func (s *SQL) DB() *sql.DB { return s.db }

func (s *SQL) Create(ctx context.Context, collection string, data Document) (Document, error) {
	table, col, err := s.table(collection)
	if err != nil {
		return nil, err
	}

	keys := sortedKeys(data)
	cols := make([]string, 0, len(keys))
	pb := s.dialect.NewParamBuilder()
	phs := make([]string, 0, len(keys))
	for _, k := range keys {
		q, err := s.column(col, k)
		if err != nil {
			return nil, err
		}
		cols = append(cols, q)
		phs = append(phs, pb.Add(sanitizeValue(data[k])))
	}

	// the empty column-list form is not valid SQL; an all-default row needs
	// the DEFAULT VALUES spelling
	query := "INSERT INTO " + table + " DEFAULT VALUES RETURNING id"
	if len(cols) > 0 {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
			table, strings.Join(cols, ", "), strings.Join(phs, ", "))
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, query, pb.Params()...).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, s.dialect.MapError(err))
	}

	doc, err := s.FindOne(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("insert %s: %w after create", collection, ErrNotFound)
	}
	return doc, nil
}

func (s *SQL) Find(ctx context.Context, collection string, filter Filter, opts FindOptions) (*PaginatedResult, error) {
	table, col, err := s.table(collection)
	if err != nil {
		return nil, err
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	// Count and data queries share the same WHERE so they always agree.
	countPB := s.dialect.NewParamBuilder()
	where, err := s.buildWhere(col, filter, countPB)
	if err != nil {
		return nil, err
	}

	var total int
	countSQL := "SELECT COUNT(*) FROM " + table + where
	if err := s.db.QueryRowContext(ctx, countSQL, countPB.Params()...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count %s: %w", collection, s.dialect.MapError(err))
	}

	pb := s.dialect.NewParamBuilder()
	whereAgain, err := s.buildWhere(col, filter, pb)
	if err != nil {
		return nil, err
	}

	order, err := s.buildOrder(col, opts.Sort)
	if err != nil {
		return nil, err
	}

	query := "SELECT * FROM " + table + whereAgain + order +
		fmt.Sprintf(" LIMIT %s OFFSET %s", pb.Add(limit), pb.Add((page-1)*limit))

	docs, err := queryRows(ctx, s.db, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, s.dialect.MapError(err))
	}
	if col != nil {
		normalizeBooleans(docs, col.BoolFields())
	}

	return NewPaginatedResult(docs, total, page, limit), nil
}

func (s *SQL) FindOne(ctx context.Context, collection string, query any) (Document, error) {
	table, col, err := s.table(collection)
	if err != nil {
		return nil, err
	}

	pb := s.dialect.NewParamBuilder()
	where, err := s.buildWhere(col, normalizeQuery(query), pb)
	if err != nil {
		return nil, err
	}

	docs, err := queryRows(ctx, s.db, "SELECT * FROM "+table+where+" LIMIT 1", pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("find one %s: %w", collection, s.dialect.MapError(err))
	}
	if len(docs) == 0 {
		return nil, nil
	}
	if col != nil {
		normalizeBooleans(docs, col.BoolFields())
	}
	return docs[0], nil
}

func (s *SQL) Update(ctx context.Context, collection string, query any, data Document) (Document, error) {
	table, col, err := s.table(collection)
	if err != nil {
		return nil, err
	}

	pb := s.dialect.NewParamBuilder()
	sets := make([]string, 0, len(data))
	for _, k := range sortedKeys(data) {
		q, err := s.column(col, k)
		if err != nil {
			return nil, err
		}
		sets = append(sets, fmt.Sprintf("%s = %s", q, pb.Add(sanitizeValue(data[k]))))
	}
	if len(sets) == 0 {
		return s.FindOne(ctx, collection, query)
	}

	where, err := s.buildWhere(col, normalizeQuery(query), pb)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s%s", table, strings.Join(sets, ", "), where)
	if _, err := s.db.ExecContext(ctx, stmt, pb.Params()...); err != nil {
		return nil, fmt.Errorf("update %s: %w", collection, s.dialect.MapError(err))
	}

	return s.FindOne(ctx, collection, query)
}

func (s *SQL) Delete(ctx context.Context, collection string, query any) (bool, error) {
	table, col, err := s.table(collection)
	if err != nil {
		return false, err
	}

	pb := s.dialect.NewParamBuilder()
	where, err := s.buildWhere(col, normalizeQuery(query), pb)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+where, pb.Params()...)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", collection, s.dialect.MapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: rows affected: %w", collection, err)
	}
	return n > 0, nil
}

// table validates the collection slug and returns it quoted, together with
// the declaration recorded at migrate time (nil when unknown).
func (s *SQL) table(collection string) (string, *schema.Collection, error) {
	if !schema.IsSafeIdent(collection) {
		return "", nil, fmt.Errorf("unsafe collection name %q", collection)
	}
	return quoteIdent(collection), s.collections[collection], nil
}

// column vets a column name against the declaration (when known) and the
// safe-identifier rule, and returns it quoted. Identifiers are the only
// strings ever interpolated into generated SQL.
func (s *SQL) column(col *schema.Collection, name string) (string, error) {
	if !schema.IsSafeIdent(name) {
		return "", fmt.Errorf("unsafe column name %q", name)
	}
	if col != nil && !col.HasField(name) {
		return "", fmt.Errorf("unknown column %q in collection %s", name, col.Slug)
	}
	return quoteIdent(name), nil
}

func (s *SQL) buildWhere(col *schema.Collection, filter Filter, pb ParamBuilder) (string, error) {
	if len(filter) == 0 {
		return "", nil
	}

	fields := make([]string, 0, len(filter))
	for f := range filter {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var clauses []string
	for _, f := range fields {
		q, err := s.column(col, f)
		if err != nil {
			return "", err
		}
		for _, cond := range filter[f] {
			op, err := opSQL(cond.Op)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, fmt.Sprintf("%s %s %s", q, op, pb.Add(sanitizeValue(cond.Value))))
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), nil
}

func (s *SQL) buildOrder(col *schema.Collection, sortSpec string) (string, error) {
	if sortSpec == "" {
		return " ORDER BY " + quoteIdent(schema.ColumnID) + " DESC", nil
	}
	dir := "ASC"
	field := sortSpec
	if strings.HasPrefix(sortSpec, "-") {
		dir = "DESC"
		field = sortSpec[1:]
	}
	q, err := s.column(col, field)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(" ORDER BY %s %s", q, dir), nil
}

func opSQL(op string) (string, error) {
	switch op {
	case "", "eq":
		return "=", nil
	case "ne":
		return "!=", nil
	case "gt":
		return ">", nil
	case "gte":
		return ">=", nil
	case "lt":
		return "<", nil
	case "lte":
		return "<=", nil
	case "like":
		return "LIKE", nil
	default:
		return "", fmt.Errorf("unknown filter operator %q", op)
	}
}

// normalizeQuery accepts the findOne/update/delete query shapes: a Filter,
// a field-equality map, or a scalar meaning id equality.
func normalizeQuery(query any) Filter {
	switch q := query.(type) {
	case Filter:
		return q
	case map[string]any:
		return Eq(q)
	default:
		return Eq(map[string]any{schema.ColumnID: q})
	}
}

// quoteIdent double-quotes an already-vetted identifier. Quoting keeps
// camelCase column names intact on PostgreSQL.
func quoteIdent(name string) string {
	return `"` + name + `"`
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Adapter = (*SQL)(nil)
