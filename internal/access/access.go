// Package access derives the resource/action permission grammar from the
// collection list and compiles declared roles against it. Everything here is
// built once at configuration time and shared read-only afterwards.
package access

import (
	"fmt"
	"sort"

	"opaca-backend/internal/schema"
)

// System resources present in every statement, independent of collections.
var systemResources = map[string][]string{
	"user":    {"create", "read", "update", "delete", "ban", "impersonate"},
	"session": {"read", "revoke", "delete"},
}

// Collection resources always get the standard CRUD actions.
var crudActions = []string{"create", "read", "update", "delete"}

// Built-in role names.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Statement is the full permission grammar: resource -> allowed actions.
type Statement map[string][]string

// Role is a named grant subset of a Statement.
type Role struct {
	Name   string
	Grants map[string][]string
}

// Can reports whether the role grants action on resource.
func (r *Role) Can(resource, action string) bool {
	for _, a := range r.Grants[resource] {
		if a == action {
			return true
		}
	}
	return false
}

// BuildStatement seeds the system resources and adds CRUD for every
// collection slug.
func BuildStatement(collections []schema.Collection) Statement {
	st := make(Statement, len(systemResources)+len(collections))
	for res, actions := range systemResources {
		st[res] = append([]string(nil), actions...)
	}
	for _, c := range collections {
		st[c.Slug] = append([]string(nil), crudActions...)
	}
	return st
}

// Resources returns the statement's resource names, sorted.
func (s Statement) Resources() []string {
	names := make([]string, 0, len(s))
	for r := range s {
		names = append(names, r)
	}
	sort.Strings(names)
	return names
}

func (s Statement) allows(resource, action string) bool {
	for _, a := range s[resource] {
		if a == action {
			return true
		}
	}
	return false
}

// CompileRoles builds the role set: the built-in admin (every action on every
// resource), the built-in user (nothing unless overridden), and the custom
// roles from configuration. Unknown resources or actions in a custom role are
// a configuration error, rejected here rather than silently dropped.
func CompileRoles(st Statement, custom map[string]map[string][]string) (map[string]*Role, error) {
	roles := make(map[string]*Role, len(custom)+2)

	admin := &Role{Name: RoleAdmin, Grants: make(map[string][]string, len(st))}
	for res, actions := range st {
		admin.Grants[res] = append([]string(nil), actions...)
	}
	roles[RoleAdmin] = admin
	roles[RoleUser] = &Role{Name: RoleUser, Grants: map[string][]string{}}

	for name, grants := range custom {
		if name == RoleAdmin {
			return nil, fmt.Errorf("role %q is built in and cannot be redefined", name)
		}
		role := &Role{Name: name, Grants: make(map[string][]string, len(grants))}
		for resource, actions := range grants {
			if _, ok := st[resource]; !ok {
				return nil, fmt.Errorf("role %s: unknown resource %q", name, resource)
			}
			for _, action := range actions {
				if !st.allows(resource, action) {
					return nil, fmt.Errorf("role %s: action %q not defined for resource %q", name, action, resource)
				}
			}
			role.Grants[resource] = append([]string(nil), actions...)
		}
		roles[name] = role
	}
	return roles, nil
}
