package auth

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"opaca-backend/internal/engine"
)

// SessionUser is the authenticated identity carried by a session.
type SessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is what the engine consumes at the collaborator boundary; the
// credential machinery behind it stays inside this package.
type Session struct {
	User SessionUser `json:"user"`
}

// SessionProvider resolves the session for a request, or nil when the
// request carries no valid credentials.
type SessionProvider interface {
	GetSession(c *fiber.Ctx) *Session
}

// JWTSessions resolves sessions from Bearer access tokens.
type JWTSessions struct {
	Tokens Tokens
}

func (p *JWTSessions) GetSession(c *fiber.Ctx) *Session {
	header := c.Get("Authorization")
	if header == "" {
		return nil
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil
	}
	claims, err := p.Tokens.ParseAccess(parts[1])
	if err != nil {
		return nil
	}
	return &Session{User: SessionUser{
		ID:    claims.Subject,
		Email: claims.Email,
		Role:  claims.Role,
	}}
}

// Middleware attaches the session user to the request locals when valid
// credentials are present. It never rejects: content routes are open at this
// layer and collection access predicates decide per action.
func Middleware(provider SessionProvider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s := provider.GetSession(c); s != nil {
			c.Locals(engine.UserLocal, map[string]any{
				"id":    s.User.ID,
				"email": s.User.Email,
				"role":  s.User.Role,
			})
		}
		return c.Next()
	}
}

// RequireRole gates a route on a session whose role carries the given grant:
// missing session is 401, wrong role 403.
func RequireRole(provider SessionProvider, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := provider.GetSession(c)
		if s == nil {
			return engine.UnauthorizedError()
		}
		if s.User.Role != role {
			return engine.ForbiddenError()
		}
		return c.Next()
	}
}

// userDoc converts a stored user document to the session shape.
func userDoc(doc map[string]any) SessionUser {
	u := SessionUser{}
	u.ID = fmt.Sprintf("%v", doc["id"])
	u.Email, _ = doc["email"].(string)
	u.Role, _ = doc["role"].(string)
	return u
}
