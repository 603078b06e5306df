// Package filter selects scenarios by evaluating a boolean tag expression,
// e.g. "smoke and not flaky". Tag names are normalized to identifiers: the
// leading '@' is dropped and '-'/'.' become '_'.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/stepflow-dev/stepflow/types"
)

// Filter is a compiled tag expression.
type Filter struct {
	source  string
	program *vm.Program
}

// New compiles a tag expression. An empty expression matches everything.
func New(expression string) (*Filter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return &Filter{}, nil
	}
	program, err := expr.Compile(normalizeExpr(expression), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("invalid tag filter %q: %w", expression, err)
	}
	return &Filter{source: expression, program: program}, nil
}

// Empty reports whether the filter matches everything.
func (f *Filter) Empty() bool {
	return f.program == nil
}

// Apply returns a copy of the feature set containing only scenarios whose
// effective tags (scenario tags plus feature tags) satisfy the expression.
// Features left without scenarios are dropped. The universe of tags across
// the whole input backs the expression environment, so referencing a tag no
// scenario carries simply evaluates to false.
func (f *Filter) Apply(features []*types.Feature) ([]*types.Feature, error) {
	if f.Empty() {
		return features, nil
	}

	universe := tagUniverse(features)
	var out []*types.Feature
	for _, feat := range features {
		kept := &types.Feature{Name: feat.Name, URI: feat.URI, Tags: feat.Tags}
		for _, s := range feat.Scenarios {
			match, err := f.matches(s.EffectiveTags(feat), universe)
			if err != nil {
				return nil, err
			}
			if match {
				kept.Scenarios = append(kept.Scenarios, s)
			}
		}
		if len(kept.Scenarios) > 0 {
			out = append(out, kept)
		}
	}
	return out, nil
}

// MatchScenario evaluates the expression against one scenario's tags.
func (f *Filter) MatchScenario(s *types.Scenario) (bool, error) {
	if f.Empty() {
		return true, nil
	}
	return f.matches(s.Tags, nil)
}

func (f *Filter) matches(tags []string, universe map[string]any) (bool, error) {
	env := make(map[string]any, len(universe)+len(tags))
	for k := range universe {
		env[k] = false
	}
	for _, t := range tags {
		env[normalizeTag(t)] = true
	}
	res, err := expr.Run(f.program, env)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate tag filter %q: %w", f.source, err)
	}
	match, ok := res.(bool)
	if !ok {
		return false, fmt.Errorf("tag filter %q did not evaluate to a boolean", f.source)
	}
	return match, nil
}

// tagUniverse collects the normalized names of every tag in the input.
func tagUniverse(features []*types.Feature) map[string]any {
	u := make(map[string]any)
	for _, f := range features {
		for _, t := range f.Tags {
			u[normalizeTag(t)] = false
		}
		for _, s := range f.Scenarios {
			for _, t := range s.Tags {
				u[normalizeTag(t)] = false
			}
		}
	}
	return u
}

func normalizeTag(tag string) string {
	name := types.TagName(tag)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ".", "_")
	return name
}

var tagRefExpr = regexp.MustCompile(`@[\w.-]+`)

// normalizeExpr rewrites @tag references in the expression so users can
// write tags the way they appear in feature files.
func normalizeExpr(expression string) string {
	return tagRefExpr.ReplaceAllStringFunc(expression, normalizeTag)
}
