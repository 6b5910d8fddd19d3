package engine

import (
	"fmt"
	"time"

	"opaca-backend/internal/schema"
)

// ValidateBody checks a request body against the collection's declared
// fields. For updates every field is optional (partial schema); for creates
// required fields must be present and defaults are applied. Unknown body
// keys are dropped. Returns the typed data or the itemized field errors.
func ValidateBody(col *schema.Collection, body map[string]any, isUpdate bool) (map[string]any, []FieldError) {
	data := make(map[string]any, len(body))
	var errs []FieldError

	for _, f := range col.Fields {
		val, present := body[f.Name]

		if !present || val == nil {
			if !isUpdate && f.DefaultValue != nil {
				data[f.Name] = f.DefaultValue
				continue
			}
			if !isUpdate && f.Required {
				errs = append(errs, FieldError{Field: f.Name, Message: "Field is required"})
			}
			if present {
				// explicit null clears the column
				data[f.Name] = nil
			}
			continue
		}

		if msg := checkType(f, val); msg != "" {
			errs = append(errs, FieldError{Field: f.Name, Message: msg})
			continue
		}
		data[f.Name] = val
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return data, nil
}

func checkType(f schema.Field, val any) string {
	switch f.Type {
	case schema.FieldText, schema.FieldRichText, schema.FieldSelect, schema.FieldRelationship:
		if _, ok := val.(string); !ok {
			return fmt.Sprintf("Expected string, got %T", val)
		}
	case schema.FieldNumber:
		switch val.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Sprintf("Expected number, got %T", val)
		}
	case schema.FieldBoolean:
		if _, ok := val.(bool); !ok {
			return fmt.Sprintf("Expected boolean, got %T", val)
		}
	case schema.FieldDate:
		s, ok := val.(string)
		if !ok {
			return fmt.Sprintf("Expected date string, got %T", val)
		}
		if !validDate(s) {
			return fmt.Sprintf("Invalid date: %s", s)
		}
	case schema.FieldArray:
		if _, ok := val.([]any); !ok {
			return fmt.Sprintf("Expected array, got %T", val)
		}
	}
	return ""
}

func validDate(s string) bool {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
