package engine

import (
	"fmt"
	"log"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/gofiber/fiber/v2"

	"opaca-backend/internal/schema"
)

// UserLocal is the request-locals key under which the session middleware
// stores the authenticated user as map[string]any (id, email, role).
const UserLocal = "user"

// accessSet holds the compiled per-action predicates for one collection.
// nil program means the action has no predicate at this layer.
type accessSet struct {
	programs map[string]*vm.Program
}

// compileAccess compiles the collection's declared access expressions once.
// A bad expression is a configuration error and fails startup.
func compileAccess(col *schema.Collection) (*accessSet, error) {
	set := &accessSet{programs: map[string]*vm.Program{}}
	if col.Access == nil {
		return set, nil
	}

	sources := map[string]string{
		"create": col.Access.Create,
		"read":   col.Access.Read,
		"update": col.Access.Update,
		"delete": col.Access.Delete,
	}
	for action, src := range sources {
		if src == "" {
			continue
		}
		prog, err := expr.Compile(src, expr.AllowUndefinedVariables(), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("collection %s: %s access predicate: %w", col.Slug, action, err)
		}
		set.programs[action] = prog
	}
	return set, nil
}

// check evaluates the predicate for action against the request's user.
// No predicate means allowed; a false result or an evaluation error (for
// example dereferencing user when unauthenticated) denies with 403.
func (a *accessSet) check(c *fiber.Ctx, action string) error {
	prog := a.programs[action]
	if prog == nil {
		return nil
	}

	env := map[string]any{"user": nil}
	if u, ok := c.Locals(UserLocal).(map[string]any); ok {
		env["user"] = u
	}

	out, err := expr.Run(prog, env)
	if err != nil {
		log.Printf("access predicate for %s failed: %v", action, err)
		return ForbiddenError()
	}
	if allowed, _ := out.(bool); !allowed {
		return ForbiddenError()
	}
	return nil
}
