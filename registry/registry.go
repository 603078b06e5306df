// Package registry stores step-pattern to handler bindings and matches raw
// step text against them. The registry is locked once execution begins;
// registration after the lock is an error, not a warning.
package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// ErrPending is returned by step handlers whose implementation is not yet
// written. The owning step is reported as pending rather than failed.
var ErrPending = errors.New("step implementation pending")

// ErrLocked is returned by Register once the registry has been locked.
var ErrLocked = errors.New("registry is locked, registration is not permitted during execution")

// HandlerFunc executes one step. args holds the capture-group values
// extracted from the step text, in pattern order.
type HandlerFunc func(ctx context.Context, args []string) error

// StepDefinition is one pattern/handler binding. Immutable once registered.
type StepDefinition struct {
	Pattern string
	Expr    *regexp.Regexp
	Handler HandlerFunc
	Owner   string
	Order   int
}

// Options carries optional registration metadata.
type Options struct {
	Owner string
	Order int
}

// MatchKind classifies the outcome of matching a step text.
type MatchKind int

const (
	// MatchFound means exactly one pattern matched.
	MatchFound MatchKind = iota
	// MatchUndefined means no registered pattern matched.
	MatchUndefined
	// MatchAmbiguous means more than one pattern matched; this is surfaced
	// explicitly rather than silently picking the first candidate.
	MatchAmbiguous
)

// Match is the result of resolving a step text against the registry.
type Match struct {
	Kind       MatchKind
	Definition *StepDefinition
	Args       []string
	Candidates []string // patterns that matched, populated for MatchAmbiguous
}

// Registry holds the step definitions for one engine instance. It is safe
// for concurrent reads; writes are rejected after Lock.
type Registry struct {
	mu     sync.RWMutex
	defs   []*StepDefinition
	locked bool
	log    log.Logger
}

// NewRegistry creates an empty, unlocked registry.
func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.New()
	}
	return &Registry{log: logger.New("component", "registry")}
}

// Register binds a step pattern to a handler. It fails once the registry is
// locked or when the pattern does not compile.
func (r *Registry) Register(pattern string, handler HandlerFunc, opts Options) error {
	if handler == nil {
		return fmt.Errorf("handler is required for pattern %q", pattern)
	}

	expr, err := compilePattern(pattern)
	if err != nil {
		return fmt.Errorf("failed to compile step pattern %q: %w", pattern, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locked {
		return ErrLocked
	}
	r.defs = append(r.defs, &StepDefinition{
		Pattern: pattern,
		Expr:    expr,
		Handler: handler,
		Owner:   opts.Owner,
		Order:   opts.Order,
	})
	r.log.Debug("Registered step definition", "pattern", pattern, "owner", opts.Owner)
	return nil
}

// Lock freezes the registry. Called once, immediately before the first
// scenario runs. Definitions are sorted by registration order metadata so
// Match output is deterministic.
func (r *Registry) Lock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locked {
		return
	}
	sort.SliceStable(r.defs, func(i, j int) bool { return r.defs[i].Order < r.defs[j].Order })
	r.locked = true
	r.log.Debug("Registry locked", "definitions", len(r.defs))
}

// Unlock re-opens the registry for registration. Intended for test setups
// that reuse one registry across runs.
func (r *Registry) Unlock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = false
}

// Locked reports whether the registry rejects registration.
func (r *Registry) Locked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locked
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Match resolves a step text. Every registered pattern is tried: zero
// matches yields MatchUndefined, more than one yields MatchAmbiguous with
// all candidate patterns.
func (r *Registry) Match(text string) Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *StepDefinition
	var args []string
	var candidates []string
	for _, def := range r.defs {
		m := def.Expr.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidates = append(candidates, def.Pattern)
		if found == nil {
			found = def
			args = m[1:]
		}
	}

	switch len(candidates) {
	case 0:
		return Match{Kind: MatchUndefined}
	case 1:
		return Match{Kind: MatchFound, Definition: found, Args: args}
	default:
		return Match{Kind: MatchAmbiguous, Candidates: candidates}
	}
}

// placeholder tokens and their capture groups, per the step-pattern syntax.
var placeholderGroups = map[string]string{
	"{string}": `"([^"]*)"`,
	"{int}":    `(\d+)`,
	"{float}":  `(\d*\.?\d+)`,
	"{word}":   `([^\s]+)`,
	"{}":       `(.+)`,
}

var placeholderExpr = regexp.MustCompile(`\{(?:string|int|float|word)?\}`)

// compilePattern turns a step pattern into an anchored regexp, quoting
// literal text and mapping placeholder tokens to capture groups.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	last := 0
	for _, loc := range placeholderExpr.FindAllStringIndex(pattern, -1) {
		b.WriteString(regexp.QuoteMeta(pattern[last:loc[0]]))
		b.WriteString(placeholderGroups[pattern[loc[0]:loc[1]]])
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(pattern[last:]))
	b.WriteString("$")
	return regexp.Compile(b.String())
}
