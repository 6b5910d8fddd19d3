package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"opaca-backend/internal/schema"
	"opaca-backend/internal/store"
)

func handlerTestCollection() schema.Collection {
	return schema.Collection{
		Slug: "posts",
		Fields: []schema.Field{
			{Name: "title", Type: schema.FieldText, Required: true},
			{Name: "views", Type: schema.FieldNumber, DefaultValue: 0},
			{Name: "published", Type: schema.FieldBoolean, DefaultValue: false},
		},
		Timestamps: true,
	}
}

// newTestApp assembles a real app over a throwaway sqlite file, mirroring the
// production wiring minus auth.
func newTestApp(t *testing.T, cols ...schema.Collection) (*fiber.App, store.Adapter) {
	t.Helper()

	s := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx, cols); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	if err := RegisterRoutes(app.Group("/api"), cols, s); err != nil {
		t.Fatalf("register routes: %v", err)
	}
	return app, s
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}

	raw, _ := io.ReadAll(resp.Body)
	var parsed map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			t.Fatalf("%s %s: bad JSON %q: %v", method, path, raw, err)
		}
	}
	return resp, parsed
}

func TestCreate_Returns201WithDocument(t *testing.T) {
	app, _ := newTestApp(t, handlerTestCollection())

	resp, doc := doJSON(t, app, "POST", "/api/posts", `{"title":"Hello"}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if doc["id"] == nil {
		t.Error("expected backend-assigned id")
	}
	if doc["title"] != "Hello" {
		t.Errorf("title = %v", doc["title"])
	}
	if doc["views"] != 0.0 || doc["published"] != false {
		t.Errorf("defaults not applied: %v", doc)
	}
}

func TestCreate_EmptyBodyOnAllOptionalCollection(t *testing.T) {
	col := schema.Collection{
		Slug: "notes",
		Fields: []schema.Field{
			{Name: "body", Type: schema.FieldText},
		},
	}
	app, _ := newTestApp(t, col)

	resp, doc := doJSON(t, app, "POST", "/api/notes", `{}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d body %v", resp.StatusCode, doc)
	}
	if doc["id"] == nil {
		t.Fatal("expected backend-assigned id")
	}
}

func TestCreate_ValidationError(t *testing.T) {
	app, _ := newTestApp(t, handlerTestCollection())

	resp, body := doJSON(t, app, "POST", "/api/posts", `{"views":"many"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["message"] != "Validation Error" {
		t.Errorf("message = %v", body["message"])
	}
	errs, _ := body["errors"].([]any)
	if len(errs) != 2 {
		t.Fatalf("expected missing title and bad views, got %v", body["errors"])
	}
}

func TestCreate_InvalidJSONBody(t *testing.T) {
	app, _ := newTestApp(t, handlerTestCollection())

	resp, _ := doJSON(t, app, "POST", "/api/posts", `{"title":`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestGet_NotFound(t *testing.T) {
	app, _ := newTestApp(t, handlerTestCollection())

	resp, body := doJSON(t, app, "GET", "/api/posts/999", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["message"] != "Not found" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestList_PaginationEnvelopeAndFilter(t *testing.T) {
	app, _ := newTestApp(t, handlerTestCollection())

	for i := 1; i <= 12; i++ {
		resp, _ := doJSON(t, app, "POST", "/api/posts",
			fmt.Sprintf(`{"title":"post %d","views":%d}`, i, i))
		if resp.StatusCode != fiber.StatusCreated {
			t.Fatalf("seed %d: status %d", i, resp.StatusCode)
		}
	}

	resp, body := doJSON(t, app, "GET", "/api/posts?limit=5&page=2", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	docs, _ := body["docs"].([]any)
	if len(docs) != 5 || body["totalDocs"] != 12.0 || body["totalPages"] != 3.0 {
		t.Fatalf("envelope: docs=%d totalDocs=%v totalPages=%v", len(docs), body["totalDocs"], body["totalPages"])
	}
	if body["hasPrevPage"] != true || body["hasNextPage"] != true {
		t.Errorf("navigation flags wrong: %v", body)
	}

	_, filtered := doJSON(t, app, "GET", "/api/posts?views[gt]=10", "")
	if filtered["totalDocs"] != 2.0 {
		t.Fatalf("views>10: totalDocs = %v", filtered["totalDocs"])
	}

	resp, _ = doJSON(t, app, "GET", "/api/posts?bogus=1", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("unknown filter field: status = %d", resp.StatusCode)
	}
}

func TestUpdate_Partial(t *testing.T) {
	app, _ := newTestApp(t, handlerTestCollection())

	_, doc := doJSON(t, app, "POST", "/api/posts", `{"title":"Before","views":1}`)
	id := fmt.Sprintf("%v", doc["id"])

	resp, updated := doJSON(t, app, "PATCH", "/api/posts/"+id, `{"views":42}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if updated["views"] != 42.0 || updated["title"] != "Before" {
		t.Fatalf("updated = %v", updated)
	}

	resp, _ = doJSON(t, app, "PATCH", "/api/posts/999", `{"views":1}`)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("missing row: status = %d", resp.StatusCode)
	}
}

func TestDelete_AcknowledgesEitherWay(t *testing.T) {
	app, _ := newTestApp(t, handlerTestCollection())

	_, doc := doJSON(t, app, "POST", "/api/posts", `{"title":"Bye"}`)
	id := fmt.Sprintf("%v", doc["id"])

	resp, body := doJSON(t, app, "DELETE", "/api/posts/"+id, "")
	if resp.StatusCode != fiber.StatusOK || body["success"] != true {
		t.Fatalf("delete: status=%d body=%v", resp.StatusCode, body)
	}

	// idempotent from the client's perspective
	resp, body = doJSON(t, app, "DELETE", "/api/posts/"+id, "")
	if resp.StatusCode != fiber.StatusOK || body["success"] != true {
		t.Fatalf("repeat delete: status=%d body=%v", resp.StatusCode, body)
	}
}

func TestCreate_UniqueConflictIs409(t *testing.T) {
	col := schema.Collection{
		Slug: "categories",
		Fields: []schema.Field{
			{Name: "name", Type: schema.FieldText, Required: true, Unique: true},
		},
	}
	app, _ := newTestApp(t, col)

	resp, _ := doJSON(t, app, "POST", "/api/categories", `{"name":"news"}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("first create: status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, app, "POST", "/api/categories", `{"name":"news"}`)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("duplicate: status = %d", resp.StatusCode)
	}
}

func TestHooks_BeforeCreateTransformsAndAborts(t *testing.T) {
	col := handlerTestCollection()
	col.Hooks = &schema.Hooks{
		BeforeCreate: func(ctx context.Context, data map[string]any) (map[string]any, error) {
			if data["title"] == "forbidden" {
				return nil, errors.New("title rejected")
			}
			data["views"] = 99.0
			return data, nil
		},
	}
	app, _ := newTestApp(t, col)

	resp, doc := doJSON(t, app, "POST", "/api/posts", `{"title":"ok"}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if doc["views"] != 99.0 {
		t.Fatalf("hook transform lost: %v", doc)
	}

	resp, _ = doJSON(t, app, "POST", "/api/posts", `{"title":"forbidden"}`)
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("abort: status = %d", resp.StatusCode)
	}
}

func TestHooks_AfterCreateFailureDoesNotChangeResponse(t *testing.T) {
	col := handlerTestCollection()
	called := false
	col.Hooks = &schema.Hooks{
		AfterCreate: func(ctx context.Context, doc map[string]any) error {
			called = true
			return errors.New("observer blew up")
		},
	}
	app, _ := newTestApp(t, col)

	resp, _ := doJSON(t, app, "POST", "/api/posts", `{"title":"x"}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !called {
		t.Fatal("after hook not invoked")
	}
}

func TestHooks_BeforeDeleteAborts(t *testing.T) {
	col := handlerTestCollection()
	col.Hooks = &schema.Hooks{
		BeforeDelete: func(ctx context.Context, id string) error {
			return NewAppError(fiber.StatusUnprocessableEntity, "Record is pinned")
		},
	}
	app, _ := newTestApp(t, col)

	_, doc := doJSON(t, app, "POST", "/api/posts", `{"title":"pinned"}`)
	id := fmt.Sprintf("%v", doc["id"])

	resp, _ := doJSON(t, app, "DELETE", "/api/posts/"+id, "")
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	// row survives the aborted delete
	resp, _ = doJSON(t, app, "GET", "/api/posts/"+id, "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("row gone after aborted delete: %d", resp.StatusCode)
	}
}

func TestAccess_PredicateDeniesAnonymous(t *testing.T) {
	col := handlerTestCollection()
	col.Access = &schema.AccessConfig{
		Create: `user != nil`,
		Update: `user != nil && user.role == "admin"`,
	}

	s := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx, []schema.Collection{col}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	api := app.Group("/api")
	api.Use(func(c *fiber.Ctx) error {
		// stand-in session middleware driven by a test header
		if role := c.Get("X-Role"); role != "" {
			c.Locals(UserLocal, map[string]any{"id": "1", "role": role})
		}
		return c.Next()
	})
	if err := RegisterRoutes(api, []schema.Collection{col}, s); err != nil {
		t.Fatalf("register routes: %v", err)
	}

	// anonymous create denied, read open
	resp, body := doJSON(t, app, "POST", "/api/posts", `{"title":"x"}`)
	if resp.StatusCode != fiber.StatusForbidden || body["message"] != "Forbidden" {
		t.Fatalf("anonymous create: status=%d body=%v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, app, "GET", "/api/posts", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("anonymous list: status = %d", resp.StatusCode)
	}

	// authenticated create allowed
	req, _ := http.NewRequest("POST", "/api/posts", strings.NewReader(`{"title":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", "user")
	resp2, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp2.StatusCode != fiber.StatusCreated {
		t.Fatalf("authenticated create: status = %d", resp2.StatusCode)
	}

	// update requires the admin role
	req, _ = http.NewRequest("PATCH", "/api/posts/1", strings.NewReader(`{"views":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", "user")
	resp3, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp3.StatusCode != fiber.StatusForbidden {
		t.Fatalf("non-admin update: status = %d", resp3.StatusCode)
	}
}

func TestNewHandler_BadPredicateFailsUpFront(t *testing.T) {
	col := handlerTestCollection()
	col.Access = &schema.AccessConfig{Read: `user ==`}

	if _, err := NewHandler(&col, nil); err == nil {
		t.Fatal("expected compile error for malformed predicate")
	}
}
