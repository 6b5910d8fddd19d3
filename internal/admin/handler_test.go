package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"

	"opaca-backend/internal/access"
	"opaca-backend/internal/auth"
	"opaca-backend/internal/config"
	"opaca-backend/internal/engine"
	"opaca-backend/internal/schema"
	"opaca-backend/internal/store"
)

func newAdminApp(t *testing.T) (*fiber.App, store.Adapter) {
	t.Helper()

	s := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx, auth.SystemCollections()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		ServerURL: "http://localhost:8080",
		Admin:     config.AdminConfig{Route: "/admin"},
		Collections: []schema.Collection{
			{Slug: "posts", Fields: []schema.Field{{Name: "title", Type: schema.FieldText}}},
		},
		Globals: []schema.Global{
			{Slug: "site-settings", Fields: []schema.Field{{Name: "siteName", Type: schema.FieldText}}},
		},
	}

	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	api := app.Group("/api")
	provider := &auth.JWTSessions{Tokens: auth.NewTokens("test-secret", 0, 0)}
	guard := auth.RequireRole(provider, access.RoleAdmin)
	RegisterRoutes(api, NewHandler(cfg, cfg.Collections, s), guard)
	return app, s
}

func get(t *testing.T, app *fiber.App, path, token string) (*http.Response, map[string]any) {
	t.Helper()

	req, _ := http.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}

	raw, _ := io.ReadAll(resp.Body)
	var parsed map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			t.Fatalf("GET %s: bad JSON %q: %v", path, raw, err)
		}
	}
	return resp, parsed
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := auth.NewTokens("test-secret", 0, 0).SignAccess(auth.SessionUser{
		ID: "1", Email: "admin@test.com", Role: access.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return token
}

func TestGetCollections_RequiresAdmin(t *testing.T) {
	app, _ := newAdminApp(t)

	resp, _ := get(t, app, "/api/__admin/collections", "")
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("anonymous: status = %d", resp.StatusCode)
	}

	userToken, err := auth.NewTokens("test-secret", 0, 0).SignAccess(auth.SessionUser{
		ID: "2", Email: "user@test.com", Role: access.RoleUser,
	})
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	resp, _ = get(t, app, "/api/__admin/collections", userToken)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("non-admin: status = %d", resp.StatusCode)
	}
}

func TestGetCollections_ReturnsDeclaredModel(t *testing.T) {
	app, _ := newAdminApp(t)

	resp, body := get(t, app, "/api/__admin/collections", adminToken(t))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	cols, _ := body["collections"].([]any)
	if len(cols) != 1 {
		t.Fatalf("collections = %v", body["collections"])
	}
	first, _ := cols[0].(map[string]any)
	if first["slug"] != "posts" {
		t.Errorf("slug = %v", first["slug"])
	}
	globals, _ := body["globals"].([]any)
	if len(globals) != 1 {
		t.Fatalf("globals = %v", body["globals"])
	}
}

func TestGetConfig(t *testing.T) {
	app, _ := newAdminApp(t)

	resp, body := get(t, app, "/api/__admin/config", adminToken(t))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["serverURL"] != "http://localhost:8080" {
		t.Errorf("serverURL = %v", body["serverURL"])
	}
}

// downAdapter fails every storage call, standing in for an unreachable backend.
type downAdapter struct{}

var errStorageDown = errors.New("storage down")

func (downAdapter) Name() string                      { return "down" }
func (downAdapter) Connect(ctx context.Context) error { return nil }
func (downAdapter) Close() error                      { return nil }
func (downAdapter) Migrate(ctx context.Context, collections []schema.Collection) error {
	return nil
}
func (downAdapter) Create(ctx context.Context, collection string, data store.Document) (store.Document, error) {
	return nil, errStorageDown
}
func (downAdapter) Find(ctx context.Context, collection string, filter store.Filter, opts store.FindOptions) (*store.PaginatedResult, error) {
	return nil, errStorageDown
}
func (downAdapter) FindOne(ctx context.Context, collection string, query any) (store.Document, error) {
	return nil, errStorageDown
}
func (downAdapter) Update(ctx context.Context, collection string, query any, data store.Document) (store.Document, error) {
	return nil, errStorageDown
}
func (downAdapter) Delete(ctx context.Context, collection string, query any) (bool, error) {
	return false, errStorageDown
}

func TestGetSetup_StorageFailureIsNotFirstRun(t *testing.T) {
	cfg := &config.Config{ServerURL: "http://localhost:8080"}

	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	provider := &auth.JWTSessions{Tokens: auth.NewTokens("test-secret", 0, 0)}
	guard := auth.RequireRole(provider, access.RoleAdmin)
	RegisterRoutes(app.Group("/api"), NewHandler(cfg, nil, downAdapter{}), guard)

	resp, body := get(t, app, "/api/__admin/setup", "")
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d body %v", resp.StatusCode, body)
	}
	if v, present := body["isSetup"]; present {
		t.Fatalf("outage must not report a setup state, got isSetup=%v", v)
	}
}

func TestGetSetup_FlipsOnceAUserExists(t *testing.T) {
	app, s := newAdminApp(t)

	resp, body := get(t, app, "/api/__admin/setup", "")
	if resp.StatusCode != fiber.StatusOK || body["isSetup"] != false {
		t.Fatalf("empty system: status=%d body=%v", resp.StatusCode, body)
	}

	if _, err := s.Create(context.Background(), auth.UsersCollection, store.Document{
		"email":    "first@test.com",
		"password": "hashed",
		"role":     "admin",
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	_, body = get(t, app, "/api/__admin/setup", "")
	if body["isSetup"] != true {
		t.Fatalf("expected isSetup=true, got %v", body)
	}
}
