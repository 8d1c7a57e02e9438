package target

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Params are the validated, platform-specific fields of a target entry.
// Two targets are interchangeable only when their Params are equal.
type Params map[string]any

// Equal compares the canonical encodings of both parameter sets.
func (p Params) Equal(other Params) bool {
	if len(p) != len(other) {
		return false
	}
	if len(p) == 0 {
		return true
	}
	return p.canonical() == other.canonical()
}

func (p Params) canonical() string {
	// encoding/json writes map keys in sorted order
	b, err := json.Marshal(map[string]any(p))
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(p))
	}
	return string(b)
}

// String returns the canonical encoding, used in logs and summaries.
func (p Params) String() string {
	return p.canonical()
}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	return maps.Clone(p)
}

// GetString returns the string value of key, or "" when absent.
func (p Params) GetString(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// GetInt returns the integer value of key, or 0 when absent.
func (p Params) GetInt(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// GetBool returns the boolean value of key.
func (p Params) GetBool(key string) bool {
	v, _ := p[key].(bool)
	return v
}

// GetStrings returns the string list value of key.
func (p Params) GetStrings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
