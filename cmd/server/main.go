package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"opaca-backend/internal/access"
	"opaca-backend/internal/admin"
	"opaca-backend/internal/auth"
	"opaca-backend/internal/config"
	"opaca-backend/internal/engine"
	"opaca-backend/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config and validate the declared content model
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	for i := range cfg.Collections {
		if err := cfg.Collections[i].Validate(); err != nil {
			log.Fatalf("Invalid collection: %v", err)
		}
	}
	log.Printf("Config loaded (port: %d, driver: %s, %d collections)",
		cfg.Server.Port, cfg.Database.Driver, len(cfg.Collections))

	// 2. Connect storage
	adapter := store.New(cfg.Database)
	if err := adapter.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer adapter.Close()
	log.Printf("Database connected (%s)", adapter.Name())

	// 3. Migrate before accepting traffic; a failure here is fatal
	collections := append(auth.SystemCollections(), cfg.Collections...)
	if err := adapter.Migrate(ctx, collections); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Schema migrated")

	// 4. Compile the access statement and roles (fail fast on bad config)
	statement := access.BuildStatement(cfg.Collections)
	if _, err := access.CompileRoles(statement, cfg.Roles); err != nil {
		log.Fatalf("Invalid access configuration: %v", err)
	}
	log.Printf("Access statement built (%d resources)", len(statement))

	// 5. HTTP app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// 6. Auth passthrough routes and session middleware
	authHandler := auth.NewHandler(adapter,
		auth.NewTokens(cfg.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL))
	auth.RegisterRoutes(api, authHandler)
	provider := authHandler.Provider()
	api.Use(auth.Middleware(provider))

	// 7. Admin introspection, gated on an admin session
	adminHandler := admin.NewHandler(cfg, cfg.Collections, adapter)
	admin.RegisterRoutes(api, adminHandler, auth.RequireRole(provider, access.RoleAdmin))

	// 8. Dynamic CRUD routes for every declared collection
	if err := engine.RegisterRoutes(api, cfg.Collections, adapter); err != nil {
		log.Fatalf("Failed to register collection routes: %v", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}
