package types

import "time"

// Status represents the outcome of a step or scenario execution.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusPending Status = "pending"
)

// SkipReasonPreviousFailed is recorded on steps skipped because an earlier
// step in the same scenario failed.
const SkipReasonPreviousFailed = "previous step failed"

// StepResult captures the outcome of a single step run.
type StepResult struct {
	Keyword  string
	Text     string
	Line     int
	Status   Status
	Error    error
	Reason   string // populated for skipped steps
	Duration time.Duration
}

// ScenarioResult captures the outcome of one scenario execution. For
// data-driven scenarios there is one ScenarioResult per data row.
type ScenarioResult struct {
	ScenarioID  string
	Name        string
	FeatureName string
	FeatureURI  string
	Status      Status
	Steps       []*StepResult
	Error       error
	Duration    time.Duration
	StartTime   time.Time
	EndTime     time.Time
	Attachments []string
	Retries     int
	Row         map[string]string // data row driving this execution, nil otherwise
}

// DeriveScenarioStatus computes a scenario's status from its step results.
// Precedence: any failed step wins, then any pending step, then all-skipped;
// otherwise the scenario passed. An empty step list is pending.
func DeriveScenarioStatus(steps []*StepResult) Status {
	if len(steps) == 0 {
		return StatusPending
	}
	pending := false
	skipped := 0
	for _, s := range steps {
		switch s.Status {
		case StatusFailed:
			return StatusFailed
		case StatusPending:
			pending = true
		case StatusSkipped:
			skipped++
		}
	}
	if pending {
		return StatusPending
	}
	if skipped == len(steps) {
		return StatusSkipped
	}
	return StatusPassed
}
