package store

import (
	"context"
	"errors"
	"math"

	"opaca-backend/internal/schema"
)

var (
	// ErrConnection means the backend is unreachable. Fatal at startup; the
	// engine never retries on its own.
	ErrConnection = errors.New("connection failed")

	// ErrConstraint means a unique/required/check constraint was broken.
	ErrConstraint = errors.New("constraint violation")

	// ErrNotFound is used by internal row helpers. FindOne never returns it;
	// a miss is (nil, nil), not an error path.
	ErrNotFound = errors.New("not found")
)

// Document is one persisted record. Shape is only known at runtime.
type Document = map[string]any

// Condition is a single filter clause on one field. Op is one of
// eq, ne, gt, gte, lt, lte, like; empty means eq.
type Condition struct {
	Op    string
	Value any
}

// Filter maps field names to their conditions. Multiple conditions on the
// same field accumulate; all clauses are AND-combined. There is no OR and no
// nested grouping.
type Filter map[string][]Condition

// Eq builds a pure-equality filter.
func Eq(pairs map[string]any) Filter {
	f := make(Filter, len(pairs))
	for k, v := range pairs {
		f[k] = []Condition{{Op: "eq", Value: v}}
	}
	return f
}

// FindOptions control pagination and ordering for Find.
type FindOptions struct {
	Page  int    // 1-based; <1 means 1
	Limit int    // <1 means DefaultLimit; capped at MaxLimit
	Sort  string // field name, leading "-" for descending; empty means id desc
}

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// PaginatedResult is the list-endpoint envelope.
type PaginatedResult struct {
	Docs          []Document `json:"docs"`
	TotalDocs     int        `json:"totalDocs"`
	Limit         int        `json:"limit"`
	TotalPages    int        `json:"totalPages"`
	Page          int        `json:"page"`
	PagingCounter int        `json:"pagingCounter"`
	HasPrevPage   bool       `json:"hasPrevPage"`
	HasNextPage   bool       `json:"hasNextPage"`
	PrevPage      *int       `json:"prevPage"`
	NextPage      *int       `json:"nextPage"`
}

// NewPaginatedResult fills in the derived pagination fields.
func NewPaginatedResult(docs []Document, totalDocs, page, limit int) *PaginatedResult {
	if docs == nil {
		docs = []Document{}
	}
	totalPages := int(math.Ceil(float64(totalDocs) / float64(limit)))
	r := &PaginatedResult{
		Docs:          docs,
		TotalDocs:     totalDocs,
		Limit:         limit,
		TotalPages:    totalPages,
		Page:          page,
		PagingCounter: (page-1)*limit + 1,
		HasPrevPage:   page > 1,
		HasNextPage:   page < totalPages,
	}
	if r.HasPrevPage {
		p := page - 1
		r.PrevPage = &p
	}
	if r.HasNextPage {
		n := page + 1
		r.NextPage = &n
	}
	return r
}

// Adapter is the storage capability every backend must implement. One
// long-lived instance is shared by all requests; implementations own each
// statement's lifecycle start to finish and hold no locks across calls.
type Adapter interface {
	// Name identifies the backend ("sqlite", "postgres").
	Name() string

	// Connect establishes backend connectivity. A second call on a live
	// adapter is a no-op. Fails with ErrConnection when unreachable.
	Connect(ctx context.Context) error

	// Close releases backend resources. Safe on an already-closed adapter.
	Close() error

	// Migrate ensures one relation per collection exists: auto-increment
	// integer primary key id first, one column per field, timestamp columns
	// last. Idempotent and additive-only; never drops or alters columns.
	Migrate(ctx context.Context, collections []schema.Collection) error

	// Create inserts one row and returns the full document including the
	// backend-assigned id.
	Create(ctx context.Context, collection string, data Document) (Document, error)

	// Find applies filter, then counts and pages with the same WHERE clause.
	Find(ctx context.Context, collection string, filter Filter, opts FindOptions) (*PaginatedResult, error)

	// FindOne takes either a scalar (id equality) or a field-equality map.
	// Returns (nil, nil) on a miss.
	FindOne(ctx context.Context, collection string, query any) (Document, error)

	// Update sets only the supplied fields on rows matching query (same
	// shape as FindOne) and returns the re-fetched document.
	Update(ctx context.Context, collection string, query any, data Document) (Document, error)

	// Delete removes matching rows; true iff at least one row was removed.
	Delete(ctx context.Context, collection string, query any) (bool, error)
}
