package artifacts

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/stepflow-dev/stepflow/types"
)

// ScenarioRecorder implements the executor's Recorder boundary: it renders a
// scenario's step outcomes into a log file for failing scenarios and
// attaches the file path to the result. Like all recording collaborators,
// its failures are logged and never fail the scenario.
type ScenarioRecorder struct {
	sink *Sink
	log  log.Logger
}

// NewScenarioRecorder creates a recorder writing into the given sink.
func NewScenarioRecorder(sink *Sink, logger log.Logger) *ScenarioRecorder {
	if logger == nil {
		logger = log.New()
	}
	return &ScenarioRecorder{sink: sink, log: logger.New("component", "recorder")}
}

// Start begins recording one scenario.
func (r *ScenarioRecorder) Start(ctx context.Context, scenario *types.Scenario) error {
	r.log.Debug("Recording scenario", "scenario", scenario.Name)
	return nil
}

// Stop finishes recording. Failing scenarios get their step log persisted;
// passing scenarios leave no artifact.
func (r *ScenarioRecorder) Stop(ctx context.Context, result *types.ScenarioResult) ([]string, error) {
	if result.Status != types.StatusFailed {
		return nil, nil
	}
	path, err := r.sink.WriteLog(result.Name, renderStepLog(result))
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

// renderStepLog produces the plain-text execution log for one result.
func renderStepLog(result *types.ScenarioResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", result.Name)
	fmt.Fprintf(&b, "feature:  %s\n", result.FeatureName)
	fmt.Fprintf(&b, "status:   %s\n", result.Status)
	if result.Error != nil {
		fmt.Fprintf(&b, "error:    %v\n", result.Error)
	}
	if len(result.Row) > 0 {
		fmt.Fprintf(&b, "data row: %v\n", result.Row)
	}
	b.WriteString("steps:\n")
	for _, s := range result.Steps {
		fmt.Fprintf(&b, "  [%s] %s %s", s.Status, s.Keyword, s.Text)
		if s.Reason != "" {
			fmt.Fprintf(&b, " (%s)", s.Reason)
		}
		if s.Error != nil {
			fmt.Fprintf(&b, ": %v", s.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}
