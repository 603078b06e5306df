package types

import "time"

// Stats tracks outcome counts at one aggregation level.
type Stats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
	Pending int
}

func (s *Stats) add(status Status) {
	s.Total++
	switch status {
	case StatusPassed:
		s.Passed++
	case StatusFailed:
		s.Failed++
	case StatusSkipped:
		s.Skipped++
	case StatusPending:
		s.Pending++
	}
}

// FeatureSummary aggregates the results of one feature's scenarios.
type FeatureSummary struct {
	Name      string
	URI       string
	Scenarios []*ScenarioResult
	Stats     Stats
	Status    Status
	Duration  time.Duration
}

// ExecutionSummary accumulates running totals as results arrive. It is
// written by exactly one goroutine: worker results are funneled through a
// single aggregation point, so no locking is needed on the counters.
type ExecutionSummary struct {
	RunID     string
	Features  map[string]*FeatureSummary
	featOrder []string
	Feats     Stats
	Scenarios Stats
	Steps     Stats
	Status    Status
	Duration  time.Duration
	StartTime time.Time
	EndTime   time.Time
	Error     error // set when the run itself failed before/outside scenario execution
}

// NewExecutionSummary creates an empty summary for one run.
func NewExecutionSummary(runID string) *ExecutionSummary {
	return &ExecutionSummary{
		RunID:     runID,
		Features:  make(map[string]*FeatureSummary),
		Status:    StatusPending,
		StartTime: time.Now(),
	}
}

// AddResult folds one scenario result into the summary. Single-writer:
// callers must funnel all results through one goroutine.
func (s *ExecutionSummary) AddResult(r *ScenarioResult) {
	key := r.FeatureURI
	if key == "" {
		key = r.FeatureName
	}
	fs, ok := s.Features[key]
	if !ok {
		fs = &FeatureSummary{Name: r.FeatureName, URI: r.FeatureURI, Status: StatusPassed}
		s.Features[key] = fs
		s.featOrder = append(s.featOrder, key)
	}
	fs.Scenarios = append(fs.Scenarios, r)
	fs.Stats.add(r.Status)
	fs.Duration += r.Duration
	fs.Status = fs.Stats.Roll()

	s.Scenarios.add(r.Status)
	for _, step := range r.Steps {
		s.Steps.add(step.Status)
	}
}

// Finalize freezes timing and derives feature-level and run-level status.
func (s *ExecutionSummary) Finalize() {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	s.Feats = Stats{}
	for _, key := range s.featOrder {
		s.Feats.add(s.Features[key].Status)
	}
	s.Status = s.Feats.Roll()
	if s.Error != nil {
		s.Status = StatusFailed
	}
}

// Roll derives a single status from the counts, with the same precedence
// used for scenarios: failed > pending > all-skipped > passed. Empty counts
// roll up to pending.
func (s Stats) Roll() Status {
	switch {
	case s.Failed > 0:
		return StatusFailed
	case s.Pending > 0, s.Total == 0:
		return StatusPending
	case s.Skipped == s.Total:
		return StatusSkipped
	default:
		return StatusPassed
	}
}

// OrderedFeatures returns feature summaries in arrival order.
func (s *ExecutionSummary) OrderedFeatures() []*FeatureSummary {
	out := make([]*FeatureSummary, 0, len(s.featOrder))
	for _, key := range s.featOrder {
		out = append(out, s.Features[key])
	}
	return out
}
