// Package stepflow wires the execution-orchestration engine together: it
// loads a parsed feature set, plans it, drives it through the sequential or
// parallel path and aggregates typed results into one summary per run.
package stepflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stepflow-dev/stepflow/artifacts"
	"github.com/stepflow-dev/stepflow/executor"
	"github.com/stepflow-dev/stepflow/exitcodes"
	"github.com/stepflow-dev/stepflow/filter"
	"github.com/stepflow-dev/stepflow/hooks"
	"github.com/stepflow-dev/stepflow/metrics"
	"github.com/stepflow-dev/stepflow/orchestrator"
	"github.com/stepflow-dev/stepflow/planner"
	"github.com/stepflow-dev/stepflow/provider"
	"github.com/stepflow-dev/stepflow/registry"
	"github.com/stepflow-dev/stepflow/source"
	"github.com/stepflow-dev/stepflow/types"
)

// coordinator implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &Coordinator{}

// Coordinator sequences initialize, plan, execute and aggregate for each
// run. It owns the ExecutionPlan and ExecutionSummary for the lifetime of
// one run; workers only ever own their currently assigned work item.
type Coordinator struct {
	ctx      context.Context
	config   *Config
	version  string
	registry *registry.Registry
	hooks    *hooks.Orchestrator
	planner  *planner.Planner
	loader   *source.Loader
	filter   *filter.Filter
	summary  *types.ExecutionSummary

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New creates a coordinator and registers the configured plugins' step
// definitions and hooks.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*Coordinator, error) {
	if config == nil {
		return nil, NewConfigurationError(errors.New("config is required"))
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.Log.Debug("Creating coordinator with config",
		"features", config.FeaturesPath,
		"strategy", config.Strategy,
		"parallel", config.Parallel,
		"workers", config.Workers,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	reg := registry.NewRegistry(config.Log)
	hks := hooks.New(config.Log)
	for _, plugin := range config.Plugins {
		if err := plugin(reg, hks); err != nil {
			return nil, NewConfigurationError(fmt.Errorf("plugin registration failed: %w", err))
		}
	}

	tagFilter, err := filter.New(config.FilterExpr)
	if err != nil {
		return nil, NewConfigurationError(err)
	}

	return &Coordinator{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		hooks:            hks,
		planner:          planner.New(config.Log),
		loader:           source.NewLoader(config.Log),
		filter:           tagFilter,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the scenario suite, once or periodically at the configured
// interval. Start implements the cliapp.Lifecycle interface.
func (c *Coordinator) Start(ctx context.Context) error {
	// Panic recovery so runtime faults exit with the runtime error code.
	defer func() {
		if r := recover(); r != nil {
			c.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	c.ctx = ctx
	c.done = make(chan struct{})
	c.running.Store(true)

	if c.config.RunOnce {
		c.config.Log.Info("Starting stepflow in run-once mode")
	} else {
		c.config.Log.Info("Starting stepflow in continuous mode", "interval", c.config.RunInterval)
	}

	err := c.runSuite()
	if err != nil {
		c.config.Log.Error("Run failed", "error", err)
		if c.config.RunOnce {
			return err
		}
	}

	if c.config.RunOnce {
		c.config.Log.Info("Run completed, exiting (run-once mode)")

		if c.summary != nil && c.summary.Status == types.StatusFailed {
			c.config.Log.Warn("Run-once completed with failures, returning scenario failure")
			return NewScenarioFailureError(fmt.Sprintf("%d of %d scenarios failed",
				c.summary.Scenarios.Failed, c.summary.Scenarios.Total))
		}

		go func() {
			c.shutdownCallback(nil)
		}()
		return nil
	}

	// Periodic execution goroutine for continuous mode.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.config.Log.Debug("Starting periodic runner goroutine", "interval", c.config.RunInterval)

		for {
			select {
			case <-time.After(c.config.RunInterval):
				if !c.running.Load() {
					c.config.Log.Debug("Service stopped, exiting periodic runner")
					return
				}
				c.config.Log.Info("Running periodic suite")
				if err := c.runSuite(); err != nil {
					c.config.Log.Error("Error running periodic suite", "error", err)
				}

			case <-c.done:
				c.config.Log.Debug("Done signal received, stopping periodic runner")
				return

			case <-ctx.Done():
				c.config.Log.Debug("Context canceled, stopping periodic runner")
				c.running.Store(false)
				return
			}
		}
	}()
	c.config.Log.Debug("stepflow started successfully")
	return nil
}

// runSuite performs one complete run: discover, filter, plan, execute,
// aggregate. Whatever goes wrong, a complete summary is produced so
// downstream reporting always has something to render.
func (c *Coordinator) runSuite() error {
	runID := uuid.New().String()
	summary := types.NewExecutionSummary(runID)
	c.summary = summary
	log := c.config.Log

	defer func() {
		c.printSummaryTable(summary)
		metrics.RecordRun(runID, summary)
		log.Info("Run completed", "run_id", runID, "status", summary.Status, "duration", summary.Duration)
	}()

	features, err := c.loader.Load(c.config.FeaturesPath)
	if err != nil {
		summary.Error = err
		summary.Finalize()
		metrics.RecordErrorDetails("feature discovery failed", err)
		return NewDiscoveryError(err)
	}

	features, err = c.filter.Apply(features)
	if err != nil {
		summary.Error = err
		summary.Finalize()
		return NewRuntimeError(fmt.Errorf("tag filter evaluation failed: %w", err))
	}
	if len(features) == 0 {
		err := fmt.Errorf("no scenarios match filter %q", c.config.FilterExpr)
		summary.Error = err
		summary.Finalize()
		return NewDiscoveryError(err)
	}

	plan, err := c.planner.CreatePlan(features, planner.Options{
		Strategy: c.config.Strategy,
		Parallel: c.config.Parallel,
		Workers:  c.config.Workers,
		Grouping: c.config.Grouping,
	})
	if err != nil {
		summary.Error = err
		summary.Finalize()
		metrics.RecordErrorDetails("planning failed", err)
		return NewRuntimeError(err)
	}

	exec, err := c.buildExecutor(runID)
	if err != nil {
		summary.Error = err
		summary.Finalize()
		return NewRuntimeError(err)
	}

	// The registry and hook orchestrator become read-only here, immediately
	// before the first scenario runs, and are shared across workers by
	// reference from this point on.
	c.registry.Lock()
	c.hooks.Lock()

	onResult := func(r *types.ScenarioResult) {
		summary.AddResult(r)
		metrics.RecordScenario(runID, r.FeatureName, r.Status)
		for _, s := range r.Steps {
			metrics.RecordStep(runID, s.Status)
		}
	}

	if _, err := c.hooks.RunPhase(c.ctx, hooks.PhaseBeforeAll); err != nil {
		summary.Error = err
		summary.Finalize()
		return NewRuntimeError(fmt.Errorf("BeforeAll hooks failed: %w", err))
	}

	execErr := c.execute(plan, exec, onResult)

	// AfterAll hooks are always attempted, even when execution failed.
	if _, err := c.hooks.RunPhase(c.ctx, hooks.PhaseAfterAll); err != nil {
		log.Error("AfterAll hooks reported failures", "error", err)
	}

	summary.Finalize()
	if execErr != nil {
		return NewRuntimeError(execErr)
	}
	return nil
}

// execute drives the plan through the sequential path or the worker pool.
func (c *Coordinator) execute(plan *types.ExecutionPlan, exec *executor.Executor, onResult func(*types.ScenarioResult)) error {
	if !c.config.Parallel {
		// Sequential mode: one scenario at a time, in the scheduler's order.
		for _, s := range plan.Scenarios {
			if c.ctx.Err() != nil {
				return c.ctx.Err()
			}
			for _, r := range exec.ExecuteScenario(c.ctx, s) {
				onResult(r)
			}
		}
		return nil
	}

	pool, err := orchestrator.New(orchestrator.Config{
		Workers:      plan.Workers,
		Executor:     exec,
		Log:          c.config.Log,
		RequeueLimit: c.config.RequeueLimit,
	})
	if err != nil {
		return err
	}
	return pool.Execute(c.ctx, plan, onResult)
}

// buildExecutor assembles the per-run executor with its collaborators: the
// artifact recorder and, when configured, the file-backed data provider.
// Collaborator setup is fanned out; none of it may block scenario execution
// setup indefinitely.
func (c *Coordinator) buildExecutor(runID string) (*executor.Executor, error) {
	var recorder executor.Recorder
	var dataProvider provider.DataProvider

	g := new(errgroup.Group)
	g.Go(func() error {
		sink, err := artifacts.NewSink(c.config.ArtifactsDir, runID, c.config.Log)
		if err != nil {
			// Recording failures never fail the run, only lose artifacts.
			c.config.Log.Warn("Artifact sink unavailable, recording disabled", "error", err)
			return nil
		}
		recorder = artifacts.NewScenarioRecorder(sink, c.config.Log)
		return nil
	})
	g.Go(func() error {
		if c.config.DataDir != "" {
			dataProvider = provider.NewFileProvider(c.config.DataDir, c.config.Log)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return executor.New(executor.Config{
		Registry: c.registry,
		Hooks:    c.hooks,
		Provider: dataProvider,
		Recorder: recorder,
		Retries:  c.config.Retries,
		Log:      c.config.Log,
	})
}

// Stop stops the stepflow service.
// Stop implements the cliapp.Lifecycle interface.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.config.Log.Info("Stopping stepflow")

	if !c.running.Load() {
		c.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	// Update running state first to prevent new runs.
	c.running.Store(false)

	c.config.Log.Debug("Sending done signal to goroutines")
	close(c.done)

	c.config.Log.Info("stepflow stopped successfully")
	return nil
}

// Stopped returns true if the stepflow service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (c *Coordinator) Stopped() bool {
	return !c.running.Load()
}

// Summary returns the most recent run's summary.
func (c *Coordinator) Summary() *types.ExecutionSummary {
	return c.summary
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving on.
func (c *Coordinator) WaitForShutdown(ctx context.Context) error {
	c.config.Log.Debug("Waiting for all goroutines to terminate")

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.config.Log.Debug("All goroutines terminated successfully")
		return nil
	case <-ctx.Done():
		c.config.Log.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
