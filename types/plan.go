package types

import "time"

// GroupingMode controls the unit of dispatch handed to workers.
type GroupingMode string

const (
	GroupByScenario GroupingMode = "scenario"
	GroupByFeature  GroupingMode = "feature"
)

// WorkItem is the unit of dispatch: one scenario, or one feature's scenarios
// when feature grouping is enabled. Each item is consumed exactly once by
// exactly one worker; a worker dying before it reports puts the item back at
// the front of the queue.
type WorkItem struct {
	ID                string
	Priority          int
	EstimatedDuration time.Duration
	Scenarios         []*Scenario
	Serial            bool
}

// ExecutionPlan is a derived, immutable snapshot of one run's schedule.
// It is recomputed per run and never mutated mid-run.
type ExecutionPlan struct {
	Features          []*Feature
	Scenarios         []*Scenario // outline-expanded, strategy-ordered
	ExecutionOrder    []string    // scenario IDs in execution order
	SerialGroup       []*Scenario // @serial/@no-parallel scenarios, never parallelized
	ParallelGroups    [][]*Scenario
	WorkItems         []*WorkItem
	EstimatedDuration time.Duration
	Strategy          string
	Workers           int
}

// TotalScenarios returns the number of scenarios the plan schedules.
func (p *ExecutionPlan) TotalScenarios() int {
	return len(p.Scenarios)
}
