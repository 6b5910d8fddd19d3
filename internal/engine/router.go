package engine

import (
	"github.com/gofiber/fiber/v2"

	"opaca-backend/internal/schema"
	"opaca-backend/internal/store"
)

// RegisterRoutes synthesizes and mounts the five CRUD routes for every
// collection under the given router group.
func RegisterRoutes(api fiber.Router, collections []schema.Collection, adapter store.Adapter) error {
	for i := range collections {
		h, err := NewHandler(&collections[i], adapter)
		if err != nil {
			return err
		}
		path := "/" + collections[i].Slug

		api.Get(path, h.List)
		api.Get(path+"/:id", h.Get)
		api.Post(path, h.Create)
		api.Patch(path+"/:id", h.Update)
		api.Delete(path+"/:id", h.Delete)
	}
	return nil
}
