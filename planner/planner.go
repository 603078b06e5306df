// Package planner converts a filtered feature set into a prioritized,
// grouped execution plan using a pluggable scheduling strategy.
package planner

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/stepflow-dev/stepflow/types"
)

// Options are the run options the planner consumes.
type Options struct {
	Strategy     string
	Parallel     bool
	Workers      int
	Grouping     types.GroupingMode
	BaseStepCost time.Duration
	Seed         int64 // seed for the random strategy; 0 seeds from the clock
}

// Planner builds execution plans. Strategies are selected by name and new
// ones can be registered before planning.
type Planner struct {
	log        log.Logger
	strategies map[string]Strategy
}

// New creates a planner with the built-in strategies registered.
func New(logger log.Logger) *Planner {
	if logger == nil {
		logger = log.New()
	}
	return &Planner{
		log:        logger.New("component", "planner"),
		strategies: make(map[string]Strategy),
	}
}

// RegisterStrategy makes a strategy selectable by name, replacing any
// previous registration under the same name.
func (p *Planner) RegisterStrategy(s Strategy) {
	p.strategies[s.Name()] = s
}

// strategyFor resolves the configured strategy, building the built-ins on
// demand so option-dependent strategies see the right options.
func (p *Planner) strategyFor(opts Options) (Strategy, error) {
	name := opts.Strategy
	if name == "" {
		name = "priority"
	}
	if s, ok := p.strategies[name]; ok {
		return s, nil
	}
	switch name {
	case "priority":
		return priorityStrategy{}, nil
	case "resource":
		return resourceStrategy{}, nil
	case "dependency":
		return dependencyStrategy{}, nil
	case "time-optimal":
		return timeOptimalStrategy{baseStepCost: opts.BaseStepCost}, nil
	case "random":
		seed := opts.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return randomStrategy{rnd: rand.New(rand.NewSource(seed))}, nil
	default:
		return nil, fmt.Errorf("unknown scheduling strategy %q", name)
	}
}

// CreatePlan expands scenario outlines, orders the scenarios with the
// selected strategy and partitions them into serial and parallel groups.
// The returned plan is an immutable snapshot; rebuilding it from the same
// input yields the same execution order for every deterministic strategy.
func (p *Planner) CreatePlan(features []*types.Feature, opts Options) (*types.ExecutionPlan, error) {
	strategy, err := p.strategyFor(opts)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if !opts.Parallel || workers < 1 {
		workers = 1
	}

	scenarios := expandFeatures(features)
	ordered, err := strategy.Order(scenarios)
	if err != nil {
		return nil, fmt.Errorf("strategy %q failed to order scenarios: %w", strategy.Name(), err)
	}

	order := make([]string, len(ordered))
	for i, s := range ordered {
		order[i] = s.ID
	}

	serial, parallel := splitSerial(ordered)
	groups := chunkScenarios(parallel, workers)

	plan := &types.ExecutionPlan{
		Features:          features,
		Scenarios:         ordered,
		ExecutionOrder:    order,
		SerialGroup:       serial,
		ParallelGroups:    groups,
		WorkItems:         p.buildWorkItems(serial, groups, opts),
		EstimatedDuration: planDuration(serial, groups, opts.BaseStepCost),
		Strategy:          strategy.Name(),
		Workers:           workers,
	}

	p.log.Info("Created execution plan",
		"strategy", plan.Strategy,
		"scenarios", len(plan.Scenarios),
		"serial", len(plan.SerialGroup),
		"parallelGroups", len(plan.ParallelGroups),
		"workers", workers,
		"estimatedDuration", plan.EstimatedDuration)
	return plan, nil
}

// expandFeatures flattens features into concrete scenarios, expanding
// outlines against their example tables before scheduling. Feature tags are
// folded into each scenario so tag-driven strategies see them. The parsed
// input is never mutated; every plan scenario is a copy.
func expandFeatures(features []*types.Feature) []*types.Scenario {
	var out []*types.Scenario
	for _, f := range features {
		for _, s := range f.Scenarios {
			for _, expanded := range s.ExpandOutline() {
				concrete := *expanded
				concrete.Tags = expanded.EffectiveTags(f)
				concrete.FeatureName = f.Name
				concrete.FeatureURI = f.URI
				out = append(out, &concrete)
			}
		}
	}
	return out
}

// splitSerial isolates @serial/@no-parallel scenarios into the group that is
// never parallelized, preserving order within both partitions.
func splitSerial(scenarios []*types.Scenario) (serial, parallel []*types.Scenario) {
	for _, s := range scenarios {
		if s.HasTag("serial") || s.HasTag("no-parallel") {
			serial = append(serial, s)
		} else {
			parallel = append(parallel, s)
		}
	}
	return serial, parallel
}

// chunkScenarios partitions scenarios into ceil(count/workers)-sized
// contiguous chunks, one chunk per worker slot.
func chunkScenarios(scenarios []*types.Scenario, workers int) [][]*types.Scenario {
	if len(scenarios) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	size := (len(scenarios) + workers - 1) / workers
	var groups [][]*types.Scenario
	for start := 0; start < len(scenarios); start += size {
		end := min(start+size, len(scenarios))
		groups = append(groups, scenarios[start:end])
	}
	return groups
}

// buildWorkItems converts the plan's groups into dispatchable work items.
// With feature grouping, contiguous same-feature runs within a group share
// one item; otherwise each scenario is its own item.
func (p *Planner) buildWorkItems(serial []*types.Scenario, groups [][]*types.Scenario, opts Options) []*types.WorkItem {
	var items []*types.WorkItem
	add := func(scenarios []*types.Scenario, isSerial bool) {
		for _, batch := range batchScenarios(scenarios, opts.Grouping) {
			var est time.Duration
			priority := 0
			for _, s := range batch {
				est += EstimateDuration(s, opts.BaseStepCost)
				if score := PriorityScore(s); score > priority {
					priority = score
				}
			}
			items = append(items, &types.WorkItem{
				ID:                uuid.New().String(),
				Priority:          priority,
				EstimatedDuration: est,
				Scenarios:         batch,
				Serial:            isSerial,
			})
		}
	}

	add(serial, true)
	for _, g := range groups {
		add(g, false)
	}
	return items
}

// batchScenarios groups contiguous scenarios of the same feature when
// feature grouping is configured.
func batchScenarios(scenarios []*types.Scenario, mode types.GroupingMode) [][]*types.Scenario {
	if len(scenarios) == 0 {
		return nil
	}
	if mode != types.GroupByFeature {
		out := make([][]*types.Scenario, len(scenarios))
		for i, s := range scenarios {
			out[i] = []*types.Scenario{s}
		}
		return out
	}

	var out [][]*types.Scenario
	var current []*types.Scenario
	for _, s := range scenarios {
		if len(current) > 0 && current[0].FeatureURI != s.FeatureURI {
			out = append(out, current)
			current = nil
		}
		current = append(current, s)
	}
	return append(out, current)
}

// planDuration estimates the whole plan: the parallel groups race to
// completion while the serial group runs to exhaustion outside that race,
// so the estimate is the serial total plus the largest parallel group.
func planDuration(serial []*types.Scenario, groups [][]*types.Scenario, baseStepCost time.Duration) time.Duration {
	var total time.Duration
	for _, s := range serial {
		total += EstimateDuration(s, baseStepCost)
	}
	var maxGroup time.Duration
	for _, g := range groups {
		var sum time.Duration
		for _, s := range g {
			sum += EstimateDuration(s, baseStepCost)
		}
		if sum > maxGroup {
			maxGroup = sum
		}
	}
	return total + maxGroup
}
