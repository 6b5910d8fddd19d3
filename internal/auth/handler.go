package auth

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"opaca-backend/internal/access"
	"opaca-backend/internal/engine"
	"opaca-backend/internal/store"
)

// Handler implements the authentication endpoints on top of the storage
// adapter's system collections.
type Handler struct {
	adapter store.Adapter
	tokens  Tokens

	// serializes the first-user probe with its insert so at most one
	// account gets the bootstrap admin promotion per process
	signupMu sync.Mutex
}

func NewHandler(adapter store.Adapter, tokens Tokens) *Handler {
	return &Handler{adapter: adapter, tokens: tokens}
}

// Provider returns the session capability consumed by the admin routes.
func (h *Handler) Provider() SessionProvider {
	return &JWTSessions{Tokens: h.tokens}
}

// SignUp handles POST /api/auth/sign-up. The first account ever created is
// promoted to the admin role (row-count probe immediately before the insert).
func (h *Handler) SignUp(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError(fiber.StatusBadRequest, "Invalid JSON body")
	}
	var missing []engine.FieldError
	if body.Email == "" {
		missing = append(missing, engine.FieldError{Field: "email", Message: "Field is required"})
	}
	if body.Password == "" {
		missing = append(missing, engine.FieldError{Field: "password", Message: "Field is required"})
	}
	if len(missing) > 0 {
		return engine.ValidationError(missing)
	}

	hash, err := HashPassword(body.Password)
	if err != nil {
		return err
	}

	ctx := c.Context()

	h.signupMu.Lock()
	defer h.signupMu.Unlock()

	role := access.RoleUser
	empty, err := h.noUsersYet(ctx)
	if err != nil {
		return err
	}
	if empty {
		role = access.RoleAdmin
	}

	user, err := h.adapter.Create(ctx, UsersCollection, map[string]any{
		"email":    body.Email,
		"password": hash,
		"name":     body.Name,
		"role":     role,
	})
	if err != nil {
		return err
	}

	pair, err := h.issueTokens(ctx, user)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user":   userDoc(user),
		"tokens": pair,
	})
}

// SignIn handles POST /api/auth/sign-in.
func (h *Handler) SignIn(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError(fiber.StatusBadRequest, "Invalid JSON body")
	}

	ctx := c.Context()
	user, err := h.adapter.FindOne(ctx, UsersCollection, map[string]any{"email": body.Email})
	if err != nil {
		return err
	}
	if user == nil {
		return engine.UnauthorizedError()
	}

	hash, _ := user["password"].(string)
	if !CheckPassword(body.Password, hash) {
		return engine.UnauthorizedError()
	}

	pair, err := h.issueTokens(ctx, user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"user":   userDoc(user),
		"tokens": pair,
	})
}

// Refresh handles POST /api/auth/refresh. Tokens rotate: the presented
// refresh token is consumed whether or not a new pair is issued.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil || body.RefreshToken == "" {
		return engine.UnauthorizedError()
	}

	ctx := c.Context()
	session, err := h.adapter.FindOne(ctx, SessionsCollection, map[string]any{"token": body.RefreshToken})
	if err != nil {
		return err
	}
	if session == nil {
		return engine.UnauthorizedError()
	}

	if _, err := h.adapter.Delete(ctx, SessionsCollection, map[string]any{"token": body.RefreshToken}); err != nil {
		return err
	}

	expiresAt, _ := session["expiresAt"].(string)
	if t, err := time.Parse(time.RFC3339, expiresAt); err != nil || time.Now().After(t) {
		return engine.UnauthorizedError()
	}

	userID, _ := session["userId"].(string)
	user, err := h.adapter.FindOne(ctx, UsersCollection, parseID(userID))
	if err != nil {
		return err
	}
	if user == nil {
		return engine.UnauthorizedError()
	}

	pair, err := h.issueTokens(ctx, user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"tokens": pair})
}

// SignOut handles POST /api/auth/sign-out.
func (h *Handler) SignOut(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil || body.RefreshToken == "" {
		return engine.NewAppError(fiber.StatusBadRequest, "Refresh token is required")
	}

	if _, err := h.adapter.Delete(c.Context(), SessionsCollection, map[string]any{"token": body.RefreshToken}); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

// Me handles GET /api/auth/me.
func (h *Handler) Me(c *fiber.Ctx) error {
	s := h.Provider().GetSession(c)
	if s == nil {
		return engine.UnauthorizedError()
	}
	return c.JSON(fiber.Map{"user": s.User})
}

// RegisterRoutes mounts the auth passthrough routes.
func RegisterRoutes(api fiber.Router, h *Handler) {
	grp := api.Group("/auth")
	grp.Post("/sign-up", h.SignUp)
	grp.Post("/sign-in", h.SignIn)
	grp.Post("/refresh", h.Refresh)
	grp.Post("/sign-out", h.SignOut)
	grp.Get("/me", h.Me)
}

// noUsersYet probes the users collection row count. Racy across processes;
// the signup mutex makes it single-writer within this one.
func (h *Handler) noUsersYet(ctx context.Context) (bool, error) {
	res, err := h.adapter.Find(ctx, UsersCollection, nil, store.FindOptions{Limit: 1})
	if err != nil {
		return false, err
	}
	return res.TotalDocs == 0, nil
}

func (h *Handler) issueTokens(ctx context.Context, user map[string]any) (*TokenPair, error) {
	accessToken, err := h.tokens.SignAccess(userDoc(user))
	if err != nil {
		return nil, err
	}

	refreshToken := h.tokens.NewRefresh()
	_, err = h.adapter.Create(ctx, SessionsCollection, map[string]any{
		"token":     refreshToken,
		"userId":    fmt.Sprintf("%v", user["id"]),
		"expiresAt": h.tokens.RefreshExpiry().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// parseID restores the integer id from its stored text form; the raw string
// is passed through when it doesn't parse.
func parseID(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
