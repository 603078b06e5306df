package registry

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, args []string) error { return nil }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(log.NewLogger(log.DiscardHandler()))
}

func TestMatchPlaceholders(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		text    string
		args    []string
	}{
		{
			name:    "int placeholder",
			pattern: "I have {int} cucumbers",
			text:    "I have 42 cucumbers",
			args:    []string{"42"},
		},
		{
			name:    "string placeholder strips quotes",
			pattern: "the user {string} logs in",
			text:    `the user "alice" logs in`,
			args:    []string{"alice"},
		},
		{
			name:    "float placeholder",
			pattern: "the price is {float}",
			text:    "the price is 3.14",
			args:    []string{"3.14"},
		},
		{
			name:    "word placeholder",
			pattern: "I click {word}",
			text:    "I click submit",
			args:    []string{"submit"},
		},
		{
			name:    "anonymous placeholder is greedy",
			pattern: "I see {}",
			text:    "I see anything at all",
			args:    []string{"anything at all"},
		},
		{
			name:    "multiple placeholders in pattern order",
			pattern: "{word} buys {int} items for {float}",
			text:    "bob buys 3 items for 9.99",
			args:    []string{"bob", "3", "9.99"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t)
			require.NoError(t, r.Register(tt.pattern, noop, Options{}))

			m := r.Match(tt.text)
			require.Equal(t, MatchFound, m.Kind)
			require.NotNil(t, m.Definition)
			assert.Equal(t, tt.pattern, m.Definition.Pattern)
			assert.Equal(t, tt.args, m.Args)
		})
	}
}

func TestMatchIsAnchored(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register("I have {int} cucumbers", noop, Options{}))

	// Partial matches must not count.
	assert.Equal(t, MatchUndefined, r.Match("I have 42 cucumbers today").Kind)
	assert.Equal(t, MatchUndefined, r.Match("oh I have 42 cucumbers").Kind)
}

func TestMatchUndefined(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register("I have {int} cucumbers", noop, Options{}))

	m := r.Match("I eat a sandwich")
	assert.Equal(t, MatchUndefined, m.Kind)
	assert.Nil(t, m.Definition)
}

func TestMatchAmbiguous(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register("I have {int} cucumbers", noop, Options{}))
	require.NoError(t, r.Register("I have {} cucumbers", noop, Options{}))

	m := r.Match("I have 42 cucumbers")
	require.Equal(t, MatchAmbiguous, m.Kind)
	assert.Len(t, m.Candidates, 2)
	assert.Contains(t, m.Candidates, "I have {int} cucumbers")
	assert.Contains(t, m.Candidates, "I have {} cucumbers")
}

func TestLiteralRegexMetacharacters(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register("the total is $ {int} (net)", noop, Options{}))

	m := r.Match("the total is $ 12 (net)")
	require.Equal(t, MatchFound, m.Kind)
	assert.Equal(t, []string{"12"}, m.Args)
}

func TestRegisterValidation(t *testing.T) {
	r := newTestRegistry(t)
	assert.Error(t, r.Register("I do a thing", nil, Options{}))
	assert.Equal(t, 0, r.Len())
}

func TestLockRejectsRegistration(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register("step one", noop, Options{}))

	r.Lock()
	require.True(t, r.Locked())

	err := r.Register("step two", noop, Options{})
	require.ErrorIs(t, err, ErrLocked)
	assert.Equal(t, 1, r.Len())

	// Locked registries still match.
	assert.Equal(t, MatchFound, r.Match("step one").Kind)

	r.Unlock()
	require.NoError(t, r.Register("step two", noop, Options{}))
	assert.Equal(t, 2, r.Len())
}

func TestLockSortsByOrder(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register("I do {}", noop, Options{Order: 10}))
	require.NoError(t, r.Register("I do {word}", noop, Options{Order: 1}))
	r.Lock()

	// Both patterns match, so candidates come back in sorted order.
	m := r.Match("I do x")
	require.Equal(t, MatchAmbiguous, m.Kind)
	assert.Equal(t, []string{"I do {word}", "I do {}"}, m.Candidates)
}

func TestTypedStepErrors(t *testing.T) {
	undefined := &UndefinedStepError{Text: "I warp reality"}
	assert.True(t, IsUndefinedStepError(undefined))
	assert.False(t, IsUndefinedStepError(ErrLocked))
	assert.Contains(t, undefined.Error(), "I warp reality")

	ambiguous := &AmbiguousStepError{Text: "I do x", Patterns: []string{"a", "b"}}
	assert.True(t, IsAmbiguousStepError(ambiguous))
	assert.False(t, IsAmbiguousStepError(undefined))
	assert.Contains(t, ambiguous.Error(), "2 patterns")
}
