package types

import (
	"fmt"
	"strings"
)

// ScenarioType distinguishes plain scenarios from outlines that expand
// against example tables before scheduling.
type ScenarioType string

const (
	ScenarioTypeStandard ScenarioType = "scenario"
	ScenarioTypeOutline  ScenarioType = "scenario_outline"
)

// Feature is the parsed representation of one feature file. The engine only
// reads it; parsing feature syntax is the job of an external collaborator.
type Feature struct {
	Name      string      `yaml:"name"`
	URI       string      `yaml:"uri"`
	Tags      []string    `yaml:"tags,omitempty"`
	Scenarios []*Scenario `yaml:"scenarios"`
}

// Scenario is one executable scenario or outline template.
type Scenario struct {
	ID       string       `yaml:"id,omitempty"`
	Name     string       `yaml:"name"`
	Tags     []string     `yaml:"tags,omitempty"`
	Steps    []*Step      `yaml:"steps"`
	Type     ScenarioType `yaml:"type,omitempty"`
	Examples []Example    `yaml:"examples,omitempty"`

	// Back-references populated by the loader; not part of the manifest.
	FeatureName string `yaml:"-"`
	FeatureURI  string `yaml:"-"`
}

// Example is one example table attached to a scenario outline.
type Example struct {
	Name string              `yaml:"name,omitempty"`
	Rows []map[string]string `yaml:"rows"`
}

// Step is a single step line. Steps are immutable; placeholder substitution
// produces a new Step via WithValues.
type Step struct {
	Keyword string `yaml:"keyword"`
	Text    string `yaml:"text"`
	Line    int    `yaml:"line,omitempty"`
}

// WithValues returns a copy of the step with every <name> placeholder
// replaced by the corresponding row value. The receiver is never mutated.
func (s *Step) WithValues(row map[string]string) *Step {
	text := s.Text
	for k, v := range row {
		text = strings.ReplaceAll(text, "<"+k+">", v)
	}
	return &Step{Keyword: s.Keyword, Text: text, Line: s.Line}
}

// HasTag reports whether the scenario carries the named tag, ignoring any
// leading '@' on either side. Tags with arguments match on the bare name,
// so HasTag("time") is true for "@time(30)".
func (s *Scenario) HasTag(name string) bool {
	return HasTag(s.Tags, name)
}

// EffectiveTags returns the scenario tags merged with its feature's tags.
func (s *Scenario) EffectiveTags(feature *Feature) []string {
	if feature == nil || len(feature.Tags) == 0 {
		return s.Tags
	}
	merged := make([]string, 0, len(feature.Tags)+len(s.Tags))
	merged = append(merged, feature.Tags...)
	merged = append(merged, s.Tags...)
	return merged
}

// HasTag reports whether the tag list contains the named tag.
func HasTag(tags []string, name string) bool {
	name = strings.TrimPrefix(name, "@")
	for _, t := range tags {
		if TagName(t) == name {
			return true
		}
	}
	return false
}

// TagName returns the bare tag name: no leading '@', no argument list.
func TagName(tag string) string {
	tag = strings.TrimPrefix(tag, "@")
	if i := strings.IndexByte(tag, '('); i >= 0 {
		tag = tag[:i]
	}
	return tag
}

// TagArg returns the argument of a parameterized tag such as "@time(30)".
// The second return is false when the tag is absent or carries no argument.
func TagArg(tags []string, name string) (string, bool) {
	name = strings.TrimPrefix(name, "@")
	for _, t := range tags {
		if TagName(t) != name {
			continue
		}
		t = strings.TrimPrefix(t, "@")
		open := strings.IndexByte(t, '(')
		end := strings.LastIndexByte(t, ')')
		if open < 0 || end <= open {
			return "", false
		}
		return strings.TrimSpace(t[open+1 : end]), true
	}
	return "", false
}

// TagArgs returns the comma-separated arguments of a parameterized tag,
// e.g. "@depends-on(login,signup)" yields ["login", "signup"].
func TagArgs(tags []string, name string) []string {
	arg, ok := TagArg(tags, name)
	if !ok || arg == "" {
		return nil
	}
	parts := strings.Split(arg, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ExpandOutline materializes a scenario outline into concrete scenarios, one
// per example row, substituting <placeholder> tokens in every step. Plain
// scenarios are returned as a single-element slice unchanged. The returned
// scenarios are fresh instances; the outline is never mutated.
func (s *Scenario) ExpandOutline() []*Scenario {
	if s.Type != ScenarioTypeOutline || len(s.Examples) == 0 {
		return []*Scenario{s}
	}

	var expanded []*Scenario
	n := 0
	for _, example := range s.Examples {
		for _, row := range example.Rows {
			n++
			steps := make([]*Step, len(s.Steps))
			for i, step := range s.Steps {
				steps[i] = step.WithValues(row)
			}
			expanded = append(expanded, &Scenario{
				ID:          fmt.Sprintf("%s#%d", s.ID, n),
				Name:        fmt.Sprintf("%s (example %d)", s.Name, n),
				Tags:        s.Tags,
				Steps:       steps,
				Type:        ScenarioTypeStandard,
				FeatureName: s.FeatureName,
				FeatureURI:  s.FeatureURI,
			})
		}
	}
	return expanded
}
