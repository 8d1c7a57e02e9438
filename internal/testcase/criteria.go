package testcase

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/yoanbernabeu/testfleet/internal/constants"
)

// Criteria is the predicate of a criteria filter. Name, area and category
// are regular expressions; an empty criterion matches all.
type Criteria struct {
	Name     string     `yaml:"name,omitempty"`
	Area     string     `yaml:"area,omitempty"`
	Category string     `yaml:"category,omitempty"`
	Priority IntList    `yaml:"priority,omitempty"`
	Tags     StringList `yaml:"tags,omitempty"`
}

// merge copies the criteria set in other, failing on a key set in both
func (c *Criteria) merge(other Criteria) error {
	var conflicts []string
	mergeString := func(key string, dst *string, src string) {
		if src == "" {
			return
		}
		if *dst != "" {
			conflicts = append(conflicts, key)
			return
		}
		*dst = src
	}
	mergeString("name", &c.Name, other.Name)
	mergeString("area", &c.Area, other.Area)
	mergeString("category", &c.Category, other.Category)
	if len(other.Priority) > 0 {
		if len(c.Priority) > 0 {
			conflicts = append(conflicts, "priority")
		} else {
			c.Priority = other.Priority
		}
	}
	if len(other.Tags) > 0 {
		if len(c.Tags) > 0 {
			conflicts = append(conflicts, "tags")
		} else {
			c.Tags = other.Tags
		}
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("%s set both inline and under criteria", strings.Join(conflicts, ", "))
	}
	return nil
}

// CriteriaFilter selects registered cases by their metadata. The predicate
// lives under the criteria key; the same keys written next to type are
// accepted as a shorthand.
type CriteriaFilter struct {
	Type       string   `yaml:"type"`
	FilterKind string   `yaml:"kind"`
	Criteria   Criteria `yaml:"criteria,omitempty"`
	Shorthand  Criteria `yaml:",inline"`

	name     *regexp.Regexp
	area     *regexp.Regexp
	category *regexp.Regexp
}

// RunnerType implements Filter
func (f *CriteriaFilter) RunnerType() string { return f.Type }

// Kind implements Filter
func (f *CriteriaFilter) Kind() string { return constants.CriteriaFilterKind }

// ParseCriteria is the FilterParser of the criteria kind
func ParseCriteria(raw RawFilter) (Filter, error) {
	f := &CriteriaFilter{}
	if err := decodeStrict(raw, f); err != nil {
		return nil, err
	}
	if err := f.Criteria.merge(f.Shorthand); err != nil {
		return nil, fmt.Errorf("invalid criteria filter: %w", err)
	}
	f.Shorthand = Criteria{}
	if err := f.compile(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *CriteriaFilter) compile() error {
	c := f.Criteria
	var err error
	if f.name, err = compileCriterion("name", c.Name); err != nil {
		return err
	}
	if f.area, err = compileCriterion("area", c.Area); err != nil {
		return err
	}
	f.category, err = compileCriterion("category", c.Category)
	return err
}

func compileCriterion(field, expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s pattern %q: %w", field, expr, err)
	}
	return re, nil
}

// Match reports whether c satisfies every criterion. Filters must come
// from ParseCriteria so their patterns are compiled.
func (f *CriteriaFilter) Match(c *Case) bool {
	crit := f.Criteria
	if f.name != nil && !f.name.MatchString(c.FullName()) {
		return false
	}
	if f.area != nil && !f.area.MatchString(c.Area) {
		return false
	}
	if f.category != nil && !f.category.MatchString(c.Category) {
		return false
	}
	if len(crit.Priority) > 0 && !slices.Contains(crit.Priority, c.Priority) {
		return false
	}
	if len(crit.Tags) > 0 && !slices.ContainsFunc(crit.Tags, func(tag string) bool {
		return slices.Contains(c.Tags, tag)
	}) {
		return false
	}
	return true
}

func (f *CriteriaFilter) String() string {
	c := f.Criteria
	var parts []string
	for _, kv := range [][2]string{{"name", c.Name}, {"area", c.Area}, {"category", c.Category}} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+"="+kv[1])
		}
	}
	if len(c.Priority) > 0 {
		parts = append(parts, fmt.Sprintf("priority=%v", []int(c.Priority)))
	}
	if len(c.Tags) > 0 {
		parts = append(parts, "tags="+strings.Join(c.Tags, ","))
	}
	if len(parts) == 0 {
		return "all cases"
	}
	return strings.Join(parts, " ")
}
