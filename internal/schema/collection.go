package schema

import (
	"context"
	"fmt"
	"regexp"
)

// FieldType enumerates the supported field types. The storage layer maps each
// of these onto a dialect column type; everything it doesn't know is text.
type FieldType string

const (
	FieldText         FieldType = "text"
	FieldNumber       FieldType = "number"
	FieldRichText     FieldType = "richtext"
	FieldRelationship FieldType = "relationship"
	FieldSelect       FieldType = "select"
	FieldDate         FieldType = "date"
	FieldBoolean      FieldType = "boolean"
	FieldArray        FieldType = "array"
)

var fieldTypes = map[FieldType]bool{
	FieldText:         true,
	FieldNumber:       true,
	FieldRichText:     true,
	FieldRelationship: true,
	FieldSelect:       true,
	FieldDate:         true,
	FieldBoolean:      true,
	FieldArray:        true,
}

type Field struct {
	Name         string    `json:"name" mapstructure:"name"`
	Type         FieldType `json:"type" mapstructure:"type"`
	Label        string    `json:"label,omitempty" mapstructure:"label"`
	Required     bool      `json:"required,omitempty" mapstructure:"required"`
	Unique       bool      `json:"unique,omitempty" mapstructure:"unique"`
	DefaultValue any       `json:"defaultValue,omitempty" mapstructure:"default_value"`
}

// AccessConfig holds optional per-action predicates as expr-lang source.
// Empty string means no predicate (the action is open at this layer).
// The environment exposes "user" as map[string]any or nil.
type AccessConfig struct {
	Create string `json:"-" mapstructure:"create"`
	Read   string `json:"-" mapstructure:"read"`
	Update string `json:"-" mapstructure:"update"`
	Delete string `json:"-" mapstructure:"delete"`
}

// Hooks are caller-supplied lifecycle callbacks. Before-hooks may transform
// the data and may abort the operation by returning an error. After-hooks
// observe the final state; their errors are logged, never surfaced.
type Hooks struct {
	BeforeCreate func(ctx context.Context, data map[string]any) (map[string]any, error)
	AfterCreate  func(ctx context.Context, doc map[string]any) error
	BeforeUpdate func(ctx context.Context, data map[string]any) (map[string]any, error)
	AfterUpdate  func(ctx context.Context, doc map[string]any) error
	BeforeDelete func(ctx context.Context, id string) error
	AfterDelete  func(ctx context.Context, id string) error
}

// Collection is a declared content type. Declared once at configuration time
// and shared read-only for the process lifetime; nothing mutates it afterwards.
type Collection struct {
	Slug       string        `json:"slug" mapstructure:"slug"`
	Fields     []Field       `json:"fields" mapstructure:"fields"`
	Timestamps bool          `json:"timestamps,omitempty" mapstructure:"timestamps"`
	Auth       bool          `json:"auth,omitempty" mapstructure:"auth"`
	Hooks      *Hooks        `json:"-" mapstructure:"-"`
	Access     *AccessConfig `json:"-" mapstructure:"access"`
}

// Global is a single-document resource exposed through admin introspection.
type Global struct {
	Slug   string  `json:"slug" mapstructure:"slug"`
	Fields []Field `json:"fields" mapstructure:"fields"`
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsSafeIdent reports whether s is usable as a SQL identifier without quoting.
// Slugs and field names must pass this before they are ever interpolated into
// generated SQL; values are always bound parameters.
func IsSafeIdent(s string) bool {
	return identRe.MatchString(s)
}

// Column names managed by the engine itself.
const (
	ColumnID        = "id"
	ColumnCreatedAt = "createdAt"
	ColumnUpdatedAt = "updatedAt"
)

func reservedColumn(name string) bool {
	return name == ColumnID || name == ColumnCreatedAt || name == ColumnUpdatedAt
}

// Validate checks the declaration before anything derives SQL from it.
func (c *Collection) Validate() error {
	if !IsSafeIdent(c.Slug) {
		return fmt.Errorf("collection slug %q is not a safe identifier", c.Slug)
	}
	seen := make(map[string]bool, len(c.Fields))
	for _, f := range c.Fields {
		if !IsSafeIdent(f.Name) {
			return fmt.Errorf("collection %s: field name %q is not a safe identifier", c.Slug, f.Name)
		}
		if reservedColumn(f.Name) {
			return fmt.Errorf("collection %s: field name %q is reserved", c.Slug, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("collection %s: duplicate field %q", c.Slug, f.Name)
		}
		seen[f.Name] = true
		if !fieldTypes[f.Type] {
			return fmt.Errorf("collection %s: field %s has unknown type %q", c.Slug, f.Name, f.Type)
		}
	}
	return nil
}

// GetField returns a pointer to the field with the given name, or nil.
func (c *Collection) GetField(name string) *Field {
	for i := range c.Fields {
		if c.Fields[i].Name == name {
			return &c.Fields[i]
		}
	}
	return nil
}

// HasField reports whether name is a declared field or an engine-managed
// column (id, plus timestamps when enabled). Used to vet filter and sort keys.
func (c *Collection) HasField(name string) bool {
	if name == ColumnID {
		return true
	}
	if c.Timestamps && (name == ColumnCreatedAt || name == ColumnUpdatedAt) {
		return true
	}
	return c.GetField(name) != nil
}

// FieldNames returns all declared field names in declaration order.
func (c *Collection) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// BoolFields returns the names of boolean fields. The storage layer needs
// these to restore 0/1 integers to booleans on the way out.
func (c *Collection) BoolFields() []string {
	var names []string
	for _, f := range c.Fields {
		if f.Type == FieldBoolean {
			names = append(names, f.Name)
		}
	}
	return names
}
