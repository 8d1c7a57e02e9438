package testcase

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/yoanbernabeu/testfleet/internal/constants"
)

// RawFilter is a filter entry as written in the runbook
type RawFilter map[string]any

// Type returns the runner type, defaulting to the local runner
func (r RawFilter) Type() string {
	if v, ok := r[constants.FilterTypeKey].(string); ok && v != "" {
		return v
	}
	return constants.DefaultRunnerType
}

// Kind returns the filter kind, defaulting to criteria
func (r RawFilter) Kind() string {
	if v, ok := r[constants.FilterKindKey].(string); ok && v != "" {
		return v
	}
	return constants.CriteriaFilterKind
}

// WithDefaults returns a copy with type and kind set explicitly
func (r RawFilter) WithDefaults() RawFilter {
	out := maps.Clone(r)
	if out == nil {
		out = RawFilter{}
	}
	out[constants.FilterTypeKey] = r.Type()
	out[constants.FilterKindKey] = r.Kind()
	return out
}

// DefaultFilter selects the demo cases. It replaces an empty filter list.
func DefaultFilter() RawFilter {
	return RawFilter{
		constants.FilterTypeKey: constants.DefaultRunnerType,
		constants.FilterKindKey: constants.CriteriaFilterKind,
		constants.CriteriaKey: map[string]any{
			"name": constants.DefaultFilterName,
			"area": constants.DefaultFilterArea,
		},
	}
}

// Filter is a parsed filter. Runners type-assert the kinds they accept.
type Filter interface {
	// RunnerType is the runner the filter belongs to.
	RunnerType() string
	// Kind is the key the filter was parsed under.
	Kind() string
}

// FilterParser builds a typed filter from a raw entry with defaults applied
type FilterParser func(raw RawFilter) (Filter, error)

// UnknownKindError is returned for a filter kind nobody registered
type UnknownKindError struct {
	Kind      string
	Available []string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown filter kind %q (available: %v)", e.Kind, e.Available)
}

// IsUnknownKind checks if the error is or wraps an UnknownKindError
func IsUnknownKind(err error) bool {
	var unknown *UnknownKindError
	return err != nil && errors.As(err, &unknown)
}

// FilterRegistry maps filter kinds to parsers
type FilterRegistry struct {
	mu      sync.RWMutex
	parsers map[string]FilterParser
}

// NewFilterRegistry returns a registry with the built-in criteria and
// script kinds registered
func NewFilterRegistry() *FilterRegistry {
	r := &FilterRegistry{parsers: make(map[string]FilterParser)}
	_ = r.Register(constants.CriteriaFilterKind, ParseCriteria)
	_ = r.Register(constants.ScriptFilterKind, ParseScript)
	return r
}

// Register adds a parser for kind
func (r *FilterRegistry) Register(kind string, parser FilterParser) error {
	if kind == "" || parser == nil {
		return fmt.Errorf("filter kind and parser are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.parsers[kind]; exists {
		return fmt.Errorf("filter kind %q already registered", kind)
	}
	r.parsers[kind] = parser
	return nil
}

// Kinds returns the registered kinds, sorted
func (r *FilterRegistry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.parsers))
	for k := range r.parsers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Parse applies the type and kind defaults and dispatches on kind
func (r *FilterRegistry) Parse(raw RawFilter) (Filter, error) {
	withDefaults := raw.WithDefaults()
	kind := withDefaults.Kind()

	r.mu.RLock()
	parser, ok := r.parsers[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownKindError{Kind: kind, Available: r.Kinds()}
	}
	return parser(withDefaults)
}

// ParseAll parses every raw filter, stopping at the first error
func (r *FilterRegistry) ParseAll(raws []RawFilter) ([]Filter, error) {
	filters := make([]Filter, 0, len(raws))
	for i, raw := range raws {
		f, err := r.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// decodeStrict decodes raw into out, rejecting keys out does not declare
func decodeStrict(raw RawFilter, out any) error {
	data, err := yaml.Marshal(map[string]any(raw))
	if err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid %s filter: %w", raw.Kind(), err)
	}
	return nil
}

// StringList accepts a scalar or a sequence
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*s = StringList{node.Value}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*s = list
	return nil
}

// IntList accepts a scalar or a sequence
type IntList []int

// UnmarshalYAML implements yaml.Unmarshaler
func (l *IntList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var v int
		if err := node.Decode(&v); err != nil {
			return err
		}
		*l = IntList{v}
		return nil
	}
	var list []int
	if err := node.Decode(&list); err != nil {
		return err
	}
	*l = list
	return nil
}
