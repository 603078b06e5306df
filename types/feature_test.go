package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepWithValues(t *testing.T) {
	step := &Step{Keyword: "When", Text: "the user <name> buys <count> items", Line: 7}
	got := step.WithValues(map[string]string{"name": "alice", "count": "3"})

	assert.Equal(t, "the user alice buys 3 items", got.Text)
	assert.Equal(t, "When", got.Keyword)
	assert.Equal(t, 7, got.Line)
	// The original step is never mutated.
	assert.Equal(t, "the user <name> buys <count> items", step.Text)
}

func TestTagHelpers(t *testing.T) {
	tags := []string{"@smoke", "@time(30)", "@depends-on(login, signup)", "plain"}

	assert.Equal(t, "smoke", TagName("@smoke"))
	assert.Equal(t, "time", TagName("@time(30)"))
	assert.Equal(t, "plain", TagName("plain"))

	assert.True(t, HasTag(tags, "smoke"))
	assert.True(t, HasTag(tags, "@smoke"))
	assert.True(t, HasTag(tags, "time"), "parameterized tags match on the bare name")
	assert.True(t, HasTag(tags, "plain"), "tags without a leading @ still match")
	assert.False(t, HasTag(tags, "critical"))

	arg, ok := TagArg(tags, "time")
	require.True(t, ok)
	assert.Equal(t, "30", arg)

	_, ok = TagArg(tags, "smoke")
	assert.False(t, ok, "tags without arguments report absence")

	assert.Equal(t, []string{"login", "signup"}, TagArgs(tags, "depends-on"))
	assert.Nil(t, TagArgs(tags, "smoke"))
}

func TestScenarioEffectiveTags(t *testing.T) {
	f := &Feature{Name: "f", Tags: []string{"@regression"}}
	s := &Scenario{Name: "s", Tags: []string{"@smoke"}}

	assert.Equal(t, []string{"@regression", "@smoke"}, s.EffectiveTags(f))
	assert.Equal(t, []string{"@smoke"}, s.EffectiveTags(nil))
	assert.Equal(t, []string{"@smoke"}, s.EffectiveTags(&Feature{Name: "untagged"}))
}

func TestExpandOutline(t *testing.T) {
	outline := &Scenario{
		ID:   "feature:auth/0",
		Name: "login",
		Type: ScenarioTypeOutline,
		Tags: []string{"@smoke"},
		Steps: []*Step{
			{Keyword: "When", Text: "the user <name> logs in"},
			{Keyword: "Then", Text: "the role is <role>"},
		},
		Examples: []Example{
			{Name: "admins", Rows: []map[string]string{
				{"name": "alice", "role": "admin"},
			}},
			{Name: "users", Rows: []map[string]string{
				{"name": "bob", "role": "user"},
			}},
		},
		FeatureName: "auth",
		FeatureURI:  "feature:auth",
	}

	expanded := outline.ExpandOutline()
	require.Len(t, expanded, 2)

	first := expanded[0]
	assert.Equal(t, "feature:auth/0#1", first.ID)
	assert.Equal(t, "login (example 1)", first.Name)
	assert.Equal(t, ScenarioTypeStandard, first.Type)
	assert.Equal(t, "the user alice logs in", first.Steps[0].Text)
	assert.Equal(t, "the role is admin", first.Steps[1].Text)
	assert.Equal(t, []string{"@smoke"}, first.Tags)
	assert.Equal(t, "auth", first.FeatureName)

	second := expanded[1]
	assert.Equal(t, "feature:auth/0#2", second.ID)
	assert.Equal(t, "the user bob logs in", second.Steps[0].Text)

	// The outline template itself is untouched.
	assert.Equal(t, "the user <name> logs in", outline.Steps[0].Text)
	assert.Equal(t, ScenarioTypeOutline, outline.Type)
}

func TestExpandOutlinePassthrough(t *testing.T) {
	plain := &Scenario{Name: "plain", Type: ScenarioTypeStandard}
	expanded := plain.ExpandOutline()
	require.Len(t, expanded, 1)
	assert.Same(t, plain, expanded[0])
}
