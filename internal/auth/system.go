package auth

import "opaca-backend/internal/schema"

// Names of the system collections the auth provider persists through the
// same storage adapter as content.
const (
	UsersCollection    = "users"
	SessionsCollection = "sessions"
)

// SystemCollections declares the auth storage. Migrated alongside the
// caller's collections so both backends carry them without extra DDL.
func SystemCollections() []schema.Collection {
	return []schema.Collection{
		{
			Slug: UsersCollection,
			Fields: []schema.Field{
				{Name: "email", Type: schema.FieldText, Required: true, Unique: true},
				{Name: "password", Type: schema.FieldText, Required: true},
				{Name: "name", Type: schema.FieldText},
				{Name: "role", Type: schema.FieldText, DefaultValue: "user"},
			},
			Timestamps: true,
			Auth:       true,
		},
		{
			Slug: SessionsCollection,
			Fields: []schema.Field{
				{Name: "token", Type: schema.FieldText, Required: true, Unique: true},
				{Name: "userId", Type: schema.FieldRelationship, Required: true},
				{Name: "expiresAt", Type: schema.FieldDate, Required: true},
			},
			Timestamps: true,
		},
	}
}
