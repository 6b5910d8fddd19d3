package engine

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"opaca-backend/internal/schema"
	"opaca-backend/internal/store"
)

// Handler holds the five CRUD handlers synthesized for one collection over
// one storage adapter.
type Handler struct {
	col     *schema.Collection
	adapter store.Adapter
	access  *accessSet
}

// NewHandler wires a collection to an adapter. Access predicates, when
// declared, are compiled here so a bad expression fails at startup.
func NewHandler(col *schema.Collection, adapter store.Adapter) (*Handler, error) {
	acc, err := compileAccess(col)
	if err != nil {
		return nil, err
	}
	return &Handler{col: col, adapter: adapter, access: acc}, nil
}

// List handles GET /{slug}.
func (h *Handler) List(c *fiber.Ctx) error {
	if err := h.access.check(c, "read"); err != nil {
		return err
	}

	filter, opts, err := ParseListQuery(c, h.col)
	if err != nil {
		return err
	}

	result, err := h.adapter.Find(c.Context(), h.col.Slug, filter, opts)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// Get handles GET /{slug}/{id}.
func (h *Handler) Get(c *fiber.Ctx) error {
	if err := h.access.check(c, "read"); err != nil {
		return err
	}

	doc, err := h.adapter.FindOne(c.Context(), h.col.Slug, idParam(c))
	if err != nil {
		return err
	}
	if doc == nil {
		return NotFoundError()
	}
	return c.JSON(doc)
}

// Create handles POST /{slug}.
func (h *Handler) Create(c *fiber.Ctx) error {
	if err := h.access.check(c, "create"); err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return NewAppError(fiber.StatusBadRequest, "Invalid JSON body")
	}

	data, errs := ValidateBody(h.col, body, false)
	if len(errs) > 0 {
		return ValidationError(errs)
	}

	if h.col.Hooks != nil && h.col.Hooks.BeforeCreate != nil {
		transformed, err := h.col.Hooks.BeforeCreate(c.Context(), data)
		if err != nil {
			return err
		}
		data = transformed
	}

	doc, err := h.adapter.Create(c.Context(), h.col.Slug, data)
	if err != nil {
		return err
	}

	// After-hooks observe the committed document; a failure here is logged
	// only, there is no compensating rollback.
	if h.col.Hooks != nil && h.col.Hooks.AfterCreate != nil {
		if err := h.col.Hooks.AfterCreate(c.Context(), doc); err != nil {
			log.Printf("afterCreate hook failed for %s: %v", h.col.Slug, err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(doc)
}

// Update handles PATCH /{slug}/{id}. Partial: only supplied fields are set.
func (h *Handler) Update(c *fiber.Ctx) error {
	if err := h.access.check(c, "update"); err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return NewAppError(fiber.StatusBadRequest, "Invalid JSON body")
	}

	data, errs := ValidateBody(h.col, body, true)
	if len(errs) > 0 {
		return ValidationError(errs)
	}

	if h.col.Hooks != nil && h.col.Hooks.BeforeUpdate != nil {
		transformed, err := h.col.Hooks.BeforeUpdate(c.Context(), data)
		if err != nil {
			return err
		}
		data = transformed
	}

	doc, err := h.adapter.Update(c.Context(), h.col.Slug, idParam(c), data)
	if err != nil {
		return err
	}
	if doc == nil {
		return NotFoundError()
	}

	if h.col.Hooks != nil && h.col.Hooks.AfterUpdate != nil {
		if err := h.col.Hooks.AfterUpdate(c.Context(), doc); err != nil {
			log.Printf("afterUpdate hook failed for %s: %v", h.col.Slug, err)
		}
	}

	return c.JSON(doc)
}

// Delete handles DELETE /{slug}/{id}. Hooks bracket the storage delete and
// the response acknowledges success whether or not a row existed.
func (h *Handler) Delete(c *fiber.Ctx) error {
	if err := h.access.check(c, "delete"); err != nil {
		return err
	}

	id := c.Params("id")

	if h.col.Hooks != nil && h.col.Hooks.BeforeDelete != nil {
		if err := h.col.Hooks.BeforeDelete(c.Context(), id); err != nil {
			return err
		}
	}

	if _, err := h.adapter.Delete(c.Context(), h.col.Slug, idParam(c)); err != nil {
		return err
	}

	if h.col.Hooks != nil && h.col.Hooks.AfterDelete != nil {
		if err := h.col.Hooks.AfterDelete(c.Context(), id); err != nil {
			log.Printf("afterDelete hook failed for %s: %v", h.col.Slug, err)
		}
	}

	return c.JSON(fiber.Map{"success": true})
}

// idParam returns the path id as int64 when it parses, else the raw string.
// The id column is integer on every backend.
func idParam(c *fiber.Ctx) any {
	raw := c.Params("id")
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}
