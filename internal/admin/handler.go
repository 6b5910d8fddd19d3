// Package admin exposes the schema-introspection endpoints the admin UI
// consumes. Read-only: the content model cannot be mutated at runtime.
package admin

import (
	"github.com/gofiber/fiber/v2"

	"opaca-backend/internal/auth"
	"opaca-backend/internal/config"
	"opaca-backend/internal/schema"
	"opaca-backend/internal/store"
)

type Handler struct {
	collections []schema.Collection
	globals     []schema.Global
	serverURL   string
	admin       config.AdminConfig
	adapter     store.Adapter
}

func NewHandler(cfg *config.Config, collections []schema.Collection, adapter store.Adapter) *Handler {
	return &Handler{
		collections: collections,
		globals:     cfg.Globals,
		serverURL:   cfg.ServerURL,
		admin:       cfg.Admin,
		adapter:     adapter,
	}
}

// GetCollections handles GET /api/__admin/collections.
func (h *Handler) GetCollections(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"collections": h.collections,
		"globals":     h.globals,
	})
}

// GetConfig handles GET /api/__admin/config.
func (h *Handler) GetConfig(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"serverURL": h.serverURL,
		"admin":     h.admin,
	})
}

// GetSetup handles GET /api/__admin/setup. Unauthenticated on purpose: the
// admin UI needs it to decide whether to show the first-run signup screen.
// A storage failure surfaces as an error; answering false here would send the
// UI into first-run signup during an outage.
func (h *Handler) GetSetup(c *fiber.Ctx) error {
	res, err := h.adapter.Find(c.Context(), auth.UsersCollection, nil, store.FindOptions{Limit: 1})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"isSetup": res.TotalDocs > 0})
}

// RegisterRoutes mounts the admin routes. The guard gates everything except
// the setup probe.
func RegisterRoutes(api fiber.Router, h *Handler, guard fiber.Handler) {
	api.Get("/__admin/collections", guard, h.GetCollections)
	api.Get("/__admin/config", guard, h.GetConfig)
	api.Get("/__admin/setup", h.GetSetup)
}
