package target

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// FieldType is the value type of a schema field
type FieldType int

const (
	StringField FieldType = iota
	IntField
	BoolField
	StringListField
)

func (t FieldType) String() string {
	switch t {
	case StringField:
		return "string"
	case IntField:
		return "int"
	case BoolField:
		return "bool"
	case StringListField:
		return "[]string"
	default:
		return "unknown"
	}
}

// Field describes one platform parameter
type Field struct {
	Name        string
	Type        FieldType
	Required    bool
	Default     any
	Description string
}

// Schema describes the parameters a platform accepts
type Schema struct {
	Fields []Field
}

// FieldError describes a single invalid field
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldErrors collects all problems found while validating an entry
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}

// Field returns the field named name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Defaults returns the parameters produced by validating an empty entry.
func (s Schema) Defaults() Params {
	p := Params{}
	for _, f := range s.Fields {
		if f.Default != nil {
			p[f.Name] = f.Default
		}
	}
	return p
}

// Validate checks raw against the schema, fills defaults and normalizes
// numeric values. Unknown keys are rejected.
func (s Schema) Validate(raw map[string]any) (Params, error) {
	var errs FieldErrors
	out := Params{}

	unknown := make([]string, 0)
	for key := range raw {
		if _, ok := s.Field(key); !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		errs = append(errs, FieldError{Field: key, Message: "unknown field"})
	}

	for _, f := range s.Fields {
		v, ok := raw[f.Name]
		if !ok || v == nil {
			if f.Required {
				errs = append(errs, FieldError{Field: f.Name, Message: "is required"})
				continue
			}
			if f.Default != nil {
				out[f.Name] = f.Default
			}
			continue
		}
		normalized, err := normalize(f.Type, v)
		if err != nil {
			errs = append(errs, FieldError{Field: f.Name, Message: err.Error()})
			continue
		}
		out[f.Name] = normalized
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func normalize(t FieldType, v any) (any, error) {
	switch t {
	case StringField:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case IntField:
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case uint64:
			return int(n), nil
		case float64:
			if n == math.Trunc(n) {
				return int(n), nil
			}
		}
	case BoolField:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case StringListField:
		switch l := v.(type) {
		case []string:
			return append([]string(nil), l...), nil
		case []any:
			out := make([]string, 0, len(l))
			for _, item := range l {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("expected %s, got element %T", t, item)
				}
				out = append(out, s)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", t, v)
}
