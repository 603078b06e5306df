package planner

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/stepflow-dev/stepflow/types"
)

// Strategy orders a set of scenarios for execution. Implementations must not
// mutate the input slice or the scenarios themselves.
type Strategy interface {
	Name() string
	Order(scenarios []*types.Scenario) ([]*types.Scenario, error)
}

// CircularDependencyError is fatal during dependency-strategy planning.
type CircularDependencyError struct {
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected: %v", e.Chain)
}

// IsCircularDependencyError checks if the error is or wraps a
// CircularDependencyError.
func IsCircularDependencyError(err error) bool {
	var target *CircularDependencyError
	return err != nil && errors.As(err, &target)
}

// priorityStrategy orders scenarios by a tag-derived score, descending.
// The sort is stable: equal-priority scenarios keep their original order.
type priorityStrategy struct{}

func (priorityStrategy) Name() string { return "priority" }

func (priorityStrategy) Order(scenarios []*types.Scenario) ([]*types.Scenario, error) {
	out := cloneSlice(scenarios)
	sort.SliceStable(out, func(i, j int) bool {
		return PriorityScore(out[i]) > PriorityScore(out[j])
	})
	return out, nil
}

// PriorityScore derives a scenario's scheduling priority from its tags.
func PriorityScore(s *types.Scenario) int {
	score := 0
	if s.HasTag("critical") {
		score += 100
	}
	if s.HasTag("smoke") {
		score += 80
	}
	if s.HasTag("regression") {
		score += 40
	}
	if s.HasTag("flaky") {
		score -= 20
	}
	return score
}

// resourceTags are the tags recognized as resource requirements.
var resourceTags = []string{"database", "api", "filesystem", "network", "browser", "queue"}

// resourceStrategy groups scenarios by required resource set: resource-free
// scenarios first, then ascending resource-set cardinality, which keeps the
// contention window as small as possible.
type resourceStrategy struct{}

func (resourceStrategy) Name() string { return "resource" }

func (resourceStrategy) Order(scenarios []*types.Scenario) ([]*types.Scenario, error) {
	out := cloneSlice(scenarios)
	sort.SliceStable(out, func(i, j int) bool {
		return len(Resources(out[i])) < len(Resources(out[j]))
	})
	return out, nil
}

// Resources returns the resource set a scenario requires, derived from tags.
func Resources(s *types.Scenario) []string {
	var rs []string
	for _, r := range resourceTags {
		if s.HasTag(r) {
			rs = append(rs, r)
		}
	}
	return rs
}

// dependencyStrategy topologically orders scenarios along @depends-on(id,...)
// tags with a depth-first visit. A visit re-entering an in-progress node is a
// circular dependency and aborts planning.
type dependencyStrategy struct{}

func (dependencyStrategy) Name() string { return "dependency" }

func (dependencyStrategy) Order(scenarios []*types.Scenario) ([]*types.Scenario, error) {
	byID := make(map[string]*types.Scenario, len(scenarios))
	for _, s := range scenarios {
		byID[dependencyID(s)] = s
	}

	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(scenarios))
	out := make([]*types.Scenario, 0, len(scenarios))

	var visit func(s *types.Scenario, chain []string) error
	visit = func(s *types.Scenario, chain []string) error {
		id := dependencyID(s)
		switch state[id] {
		case done:
			return nil
		case inProgress:
			return &CircularDependencyError{Chain: append(chain, id)}
		}
		state[id] = inProgress
		chain = append(chain, id)
		for _, dep := range types.TagArgs(s.Tags, "depends-on") {
			target, ok := byID[dep]
			if !ok {
				return fmt.Errorf("scenario %q depends on unknown scenario %q", id, dep)
			}
			if err := visit(target, chain); err != nil {
				return err
			}
		}
		state[id] = done
		out = append(out, s)
		return nil
	}

	for _, s := range scenarios {
		if err := visit(s, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// dependencyID is the identifier other scenarios reference in @depends-on.
// An explicit @id(...) tag wins; otherwise the scenario name is used.
func dependencyID(s *types.Scenario) string {
	if id, ok := types.TagArg(s.Tags, "id"); ok {
		return id
	}
	return s.Name
}

// timeOptimalStrategy orders scenarios by ascending estimated duration.
type timeOptimalStrategy struct {
	baseStepCost time.Duration
}

func (timeOptimalStrategy) Name() string { return "time-optimal" }

func (st timeOptimalStrategy) Order(scenarios []*types.Scenario) ([]*types.Scenario, error) {
	out := cloneSlice(scenarios)
	sort.SliceStable(out, func(i, j int) bool {
		return EstimateDuration(out[i], st.baseStepCost) < EstimateDuration(out[j], st.baseStepCost)
	})
	return out, nil
}

// EstimateDuration estimates a scenario's runtime: step count times a base
// cost, scaled by tag-based modifiers. An explicit @time(N) tag overrides
// the estimate with N seconds.
func EstimateDuration(s *types.Scenario, baseStepCost time.Duration) time.Duration {
	if arg, ok := types.TagArg(s.Tags, "time"); ok {
		if secs, err := strconv.ParseFloat(arg, 64); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}

	if baseStepCost <= 0 {
		baseStepCost = DefaultBaseStepCost
	}
	estimate := float64(len(s.Steps)) * float64(baseStepCost)
	for tag, factor := range durationModifiers {
		if s.HasTag(tag) {
			estimate *= factor
		}
	}
	return time.Duration(estimate)
}

// DefaultBaseStepCost is the assumed cost of one step when no explicit base
// cost is configured.
const DefaultBaseStepCost = 100 * time.Millisecond

var durationModifiers = map[string]float64{
	"slow":     3.0,
	"api":      1.5,
	"database": 2.0,
	"ui-heavy": 2.5,
}

// randomStrategy shuffles scenarios uniformly (Fisher-Yates). It is the only
// strategy exempt from plan idempotence.
type randomStrategy struct {
	rnd *rand.Rand
}

func (randomStrategy) Name() string { return "random" }

func (st randomStrategy) Order(scenarios []*types.Scenario) ([]*types.Scenario, error) {
	out := cloneSlice(scenarios)
	st.rnd.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out, nil
}

func cloneSlice(scenarios []*types.Scenario) []*types.Scenario {
	out := make([]*types.Scenario, len(scenarios))
	copy(out, scenarios)
	return out
}
