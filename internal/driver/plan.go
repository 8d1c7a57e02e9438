// Package driver enumerates (case, target) executions up front and runs
// them, binding pool targets for the lifetime of each case's scope.
package driver

import (
	"slices"

	"github.com/yoanbernabeu/testfleet/internal/target"
	"github.com/yoanbernabeu/testfleet/internal/testcase"
)

// Item is one execution of a case, on one configured target when the case
// needs one
type Item struct {
	Case   *testcase.Case
	Target *target.Spec
}

// ID names the execution, suffixed with the target for parametrized cases
func (it Item) ID() string {
	if it.Target == nil {
		return it.Case.FullName()
	}
	return it.Case.FullName() + "[Target=" + it.Target.Name + "]"
}

// bindingKey identifies the binding an item uses; empty without target
func (it Item) bindingKey() string {
	if it.Target == nil {
		return ""
	}
	return it.Target.Name + "|" + it.Case.ScopeKey()
}

// Plan expands cases into items. Cases without a target dependency run
// once, first. Target-bound cases run once per spec, grouped by spec so
// shared scopes stay contiguous.
func Plan(cases []*testcase.Case, specs []target.Spec) []Item {
	var items []Item
	for _, c := range cases {
		if !c.NeedsTarget {
			items = append(items, Item{Case: c})
		}
	}
	for i := range specs {
		spec := &specs[i]
		for _, c := range cases {
			if c.NeedsTarget {
				items = append(items, Item{Case: c, Target: spec})
			}
		}
	}
	return items
}

// scopePlan precomputes, for every binding key, the union of required
// features and the index of the last item using it
type scopePlan struct {
	features map[string][]string
	last     map[string]int
}

func planScopes(items []Item) scopePlan {
	sp := scopePlan{features: map[string][]string{}, last: map[string]int{}}
	for i, it := range items {
		key := it.bindingKey()
		if key == "" {
			continue
		}
		sp.last[key] = i
		for _, f := range it.Case.Features {
			if !slices.Contains(sp.features[key], f) {
				sp.features[key] = append(sp.features[key], f)
			}
		}
	}
	return sp
}
