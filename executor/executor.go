// Package executor drives single scenarios through their lifecycle:
// before hooks, steps in document order, after hooks, optional retries.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/stepflow-dev/stepflow/hooks"
	"github.com/stepflow-dev/stepflow/provider"
	"github.com/stepflow-dev/stepflow/registry"
	"github.com/stepflow-dev/stepflow/types"
)

// Recorder is the recording/telemetry collaborator started and stopped
// around each scenario. Its failures are logged but never fail the scenario.
type Recorder interface {
	Start(ctx context.Context, scenario *types.Scenario) error
	// Stop returns artifact paths to attach to the scenario result.
	Stop(ctx context.Context, result *types.ScenarioResult) ([]string, error)
}

// ScenarioExecutionError wraps a panic or internal fault caught at the
// scenario boundary. It is converted into a failed ScenarioResult and never
// crashes the run.
type ScenarioExecutionError struct {
	Scenario string
	Cause    error
}

func (e *ScenarioExecutionError) Error() string {
	return fmt.Sprintf("scenario %q execution error: %v", e.Scenario, e.Cause)
}

func (e *ScenarioExecutionError) Unwrap() error { return e.Cause }

// IsScenarioExecutionError checks if the error is or wraps a
// ScenarioExecutionError.
func IsScenarioExecutionError(err error) bool {
	var target *ScenarioExecutionError
	return err != nil && errors.As(err, &target)
}

// Config holds the collaborators and knobs for an executor.
type Config struct {
	Registry *registry.Registry
	Hooks    *hooks.Orchestrator
	Provider provider.DataProvider // optional; required only for @DataProvider scenarios
	Recorder Recorder              // optional
	Retries  int                   // retry budget for failed scenarios
	Log      log.Logger
}

// Executor runs scenarios. One executor is safely shared across workers:
// its collaborators are read-only after lock, and all per-scenario state
// lives in the result values it produces.
type Executor struct {
	cfg    Config
	log    log.Logger
	tracer trace.Tracer
}

// New creates a scenario executor.
func New(cfg Config) (*Executor, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Hooks == nil {
		return nil, fmt.Errorf("hook orchestrator is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retry budget cannot be negative, got %d", cfg.Retries)
	}
	return &Executor{
		cfg:    cfg,
		log:    cfg.Log.New("component", "executor"),
		tracer: otel.Tracer("scenario executor"),
	}, nil
}

// ExecuteScenario runs one concrete scenario. Scenarios tagged
// @DataProvider(...) expand at run time into one execution per loaded data
// row, skipping rows flagged _execute:false; everything else produces
// exactly one result. Faults never propagate: they come back as failed
// results.
func (e *Executor) ExecuteScenario(ctx context.Context, s *types.Scenario) []*types.ScenarioResult {
	tag, ok := provider.DataTag(s.Tags)
	if !ok {
		return []*types.ScenarioResult{e.runWithRetries(ctx, s, nil)}
	}

	if e.cfg.Provider == nil {
		err := fmt.Errorf("scenario %q is data-driven but no data provider is configured", s.Name)
		return []*types.ScenarioResult{e.failedResult(s, err)}
	}
	rows, err := e.cfg.Provider.LoadFromTag(tag)
	if err != nil {
		return []*types.ScenarioResult{e.failedResult(s, fmt.Errorf("failed to load data rows: %w", err))}
	}

	var results []*types.ScenarioResult
	for i, row := range rows {
		if !row.Execute() {
			e.log.Debug("Skipping data row flagged _execute:false", "scenario", s.Name, "row", i)
			continue
		}
		results = append(results, e.runWithRetries(ctx, s, row))
	}
	if len(results) == 0 {
		e.log.Warn("Data-driven scenario had no executable rows", "scenario", s.Name, "tag", tag)
		results = append(results, e.skippedResult(s, "no executable data rows"))
	}
	return results
}

// runWithRetries runs the scenario, re-running the full lifecycle (hooks
// included) while the result is failed and retry budget remains. The
// returned result carries the last attempt plus the retry count.
func (e *Executor) runWithRetries(ctx context.Context, s *types.Scenario, row provider.Row) *types.ScenarioResult {
	result := e.runSingle(ctx, s, row)
	retries := 0
	for result.Status == types.StatusFailed && retries < e.cfg.Retries {
		retries++
		e.log.Info("Retrying failed scenario", "scenario", s.Name, "attempt", retries+1, "budget", e.cfg.Retries)
		result = e.runSingle(ctx, s, row)
	}
	result.Retries = retries
	return result
}

// runSingle executes one attempt: Before hooks, steps in document order,
// After hooks. Finalization (after hooks, recorder stop, timing) is deferred
// so it runs even when step execution panics.
func (e *Executor) runSingle(ctx context.Context, s *types.Scenario, row provider.Row) (result *types.ScenarioResult) {
	ctx, span := e.tracer.Start(ctx, "scenario "+s.Name)
	defer span.End()

	result = &types.ScenarioResult{
		ScenarioID:  s.ID,
		Name:        s.Name,
		FeatureName: s.FeatureName,
		FeatureURI:  s.FeatureURI,
		StartTime:   time.Now(),
		Row:         row,
	}

	recording := e.startRecorder(ctx, s)

	defer func() {
		if r := recover(); r != nil {
			err := &ScenarioExecutionError{Scenario: s.Name, Cause: fmt.Errorf("panic: %v", r)}
			e.log.Error("Scenario execution panicked", "scenario", s.Name, "error", err)
			result.Error = err
			result.Status = types.StatusFailed
		}
		e.finalize(ctx, s, result, recording)
	}()

	if _, err := e.cfg.Hooks.RunPhase(ctx, hooks.PhaseBefore); err != nil {
		// Before-hook failure aborts the scenario: no steps run.
		result.Error = err
		result.Steps = e.skipAllSteps(s, row, "before hook failed")
		result.Status = types.StatusFailed
		return result
	}

	result.Steps = e.runSteps(ctx, s, row)
	result.Status = types.DeriveScenarioStatus(result.Steps)
	if result.Status == types.StatusFailed && result.Error == nil {
		result.Error = firstStepError(result.Steps)
	}
	return result
}

// finalize is the finally-equivalent: after hooks, recorder stop and timing
// run regardless of how the attempt ended.
func (e *Executor) finalize(ctx context.Context, s *types.Scenario, result *types.ScenarioResult, recording bool) {
	if _, err := e.cfg.Hooks.RunPhase(ctx, hooks.PhaseAfter); err != nil {
		e.log.Error("After hooks reported failures", "scenario", s.Name, "error", err)
		if result.Status != types.StatusFailed {
			result.Status = types.StatusFailed
			result.Error = err
		}
	}
	if recording {
		if paths, err := e.cfg.Recorder.Stop(ctx, result); err != nil {
			e.log.Warn("Recorder stop failed", "scenario", s.Name, "error", err)
		} else {
			result.Attachments = append(result.Attachments, paths...)
		}
	}
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
}

// runSteps executes steps strictly in document order. Once a step fails,
// every remaining step is marked skipped and nothing further runs.
func (e *Executor) runSteps(ctx context.Context, s *types.Scenario, row provider.Row) []*types.StepResult {
	results := make([]*types.StepResult, 0, len(s.Steps))
	failed := false
	for _, step := range s.Steps {
		concrete := step
		if len(row) > 0 {
			concrete = step.WithValues(row)
		}
		if failed {
			results = append(results, &types.StepResult{
				Keyword: concrete.Keyword,
				Text:    concrete.Text,
				Line:    concrete.Line,
				Status:  types.StatusSkipped,
				Reason:  types.SkipReasonPreviousFailed,
			})
			continue
		}
		res := e.runStep(ctx, concrete)
		results = append(results, res)
		if res.Status == types.StatusFailed {
			failed = true
		}
	}
	return results
}

// runStep resolves and invokes one step, bracketed by BeforeStep/AfterStep
// hooks. Undefined and ambiguous matches fail the step with a typed error.
func (e *Executor) runStep(ctx context.Context, step *types.Step) *types.StepResult {
	start := time.Now()
	res := &types.StepResult{Keyword: step.Keyword, Text: step.Text, Line: step.Line}
	defer func() {
		res.Duration = time.Since(start)
	}()

	if _, err := e.cfg.Hooks.RunPhase(ctx, hooks.PhaseBeforeStep); err != nil {
		res.Status = types.StatusFailed
		res.Error = err
		return res
	}
	defer func() {
		if _, err := e.cfg.Hooks.RunPhase(ctx, hooks.PhaseAfterStep); err != nil && res.Status != types.StatusFailed {
			res.Status = types.StatusFailed
			res.Error = err
		}
	}()

	match := e.cfg.Registry.Match(step.Text)
	switch match.Kind {
	case registry.MatchUndefined:
		res.Status = types.StatusFailed
		res.Error = &registry.UndefinedStepError{Text: step.Text}
		return res
	case registry.MatchAmbiguous:
		res.Status = types.StatusFailed
		res.Error = &registry.AmbiguousStepError{Text: step.Text, Patterns: match.Candidates}
		return res
	}

	err := e.invoke(ctx, match.Definition, match.Args)
	switch {
	case err == nil:
		res.Status = types.StatusPassed
	case errors.Is(err, registry.ErrPending):
		res.Status = types.StatusPending
		res.Error = err
	default:
		res.Status = types.StatusFailed
		res.Error = err
	}
	return res
}

// invoke calls the step handler, converting a panic into an error.
func (e *Executor) invoke(ctx context.Context, def *registry.StepDefinition, args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step handler for %q panicked: %v", def.Pattern, r)
		}
	}()
	return def.Handler(ctx, args)
}

// startRecorder starts the recording collaborator; its failure is logged,
// never fatal. Returns whether a matching Stop is owed.
func (e *Executor) startRecorder(ctx context.Context, s *types.Scenario) bool {
	if e.cfg.Recorder == nil {
		return false
	}
	if err := e.cfg.Recorder.Start(ctx, s); err != nil {
		e.log.Warn("Recorder start failed", "scenario", s.Name, "error", err)
		return false
	}
	return true
}

// skipAllSteps marks every step of the scenario skipped with the given
// reason, used when Before hooks abort the scenario.
func (e *Executor) skipAllSteps(s *types.Scenario, row provider.Row, reason string) []*types.StepResult {
	out := make([]*types.StepResult, len(s.Steps))
	for i, step := range s.Steps {
		concrete := step
		if len(row) > 0 {
			concrete = step.WithValues(row)
		}
		out[i] = &types.StepResult{
			Keyword: concrete.Keyword,
			Text:    concrete.Text,
			Line:    concrete.Line,
			Status:  types.StatusSkipped,
			Reason:  reason,
		}
	}
	return out
}

func (e *Executor) failedResult(s *types.Scenario, err error) *types.ScenarioResult {
	now := time.Now()
	e.log.Error("Scenario failed before execution", "scenario", s.Name, "error", err)
	return &types.ScenarioResult{
		ScenarioID:  s.ID,
		Name:        s.Name,
		FeatureName: s.FeatureName,
		FeatureURI:  s.FeatureURI,
		Status:      types.StatusFailed,
		Error:       err,
		StartTime:   now,
		EndTime:     now,
	}
}

func (e *Executor) skippedResult(s *types.Scenario, reason string) *types.ScenarioResult {
	now := time.Now()
	return &types.ScenarioResult{
		ScenarioID:  s.ID,
		Name:        s.Name,
		FeatureName: s.FeatureName,
		FeatureURI:  s.FeatureURI,
		Status:      types.StatusSkipped,
		Steps:       e.skipAllSteps(s, nil, reason),
		StartTime:   now,
		EndTime:     now,
	}
}

func firstStepError(steps []*types.StepResult) error {
	for _, s := range steps {
		if s.Status == types.StatusFailed && s.Error != nil {
			return s.Error
		}
	}
	return nil
}
