package stepflow

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"

	"github.com/stepflow-dev/stepflow/flags"
	"github.com/stepflow-dev/stepflow/hooks"
	"github.com/stepflow-dev/stepflow/registry"
	"github.com/stepflow-dev/stepflow/types"
)

// Plugin registers step definitions and hooks against the engine's registry
// and hook orchestrator. Plugins replace runtime discovery: the step modules
// an engine runs are the ones passed in at startup, nothing is scanned off
// the file system.
type Plugin func(reg *registry.Registry, hks *hooks.Orchestrator) error

// Config holds the application configuration
type Config struct {
	FeaturesPath string             // Path to the parsed feature manifest
	FilterExpr   string             // Tag expression selecting scenarios
	Strategy     string             // Scheduling strategy name
	Parallel     bool               // Execute on a worker pool instead of sequentially
	Workers      int                // Worker pool size (0 = auto-determine)
	Retries      int                // Retry budget for failed scenarios
	Grouping     types.GroupingMode // Work item grouping mode
	DataDir      string             // Directory holding data-provider files
	ArtifactsDir string             // Directory receiving per-run artifacts
	RunInterval  time.Duration      // Interval between runs
	RunOnce      bool               // Indicates if the service should exit after one run
	RequeueLimit int                // Max crash-requeues per work item
	Plugins      []Plugin           // Step/hook registration functions
	Log          log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, logger log.Logger, featuresPath string) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, NewConfigurationError(fmt.Errorf("missing required flags: %w", err))
	}
	if featuresPath == "" {
		return nil, NewConfigurationError(fmt.Errorf("feature manifest path is required"))
	}

	absFeatures, err := filepath.Abs(featuresPath)
	if err != nil {
		return nil, NewConfigurationError(fmt.Errorf("failed to resolve absolute path for feature manifest '%s': %w", featuresPath, err))
	}

	grouping := types.GroupingMode(ctx.String(flags.Grouping.Name))
	switch grouping {
	case types.GroupByScenario, types.GroupByFeature:
	case "":
		grouping = types.GroupByScenario
	default:
		return nil, NewConfigurationError(fmt.Errorf("unknown grouping mode %q", grouping))
	}

	workers := ctx.Int(flags.Workers.Name)
	if workers < 0 {
		return nil, NewConfigurationError(fmt.Errorf("worker count cannot be negative, got %d", workers))
	}
	retries := ctx.Int(flags.Retries.Name)
	if retries < 0 {
		return nil, NewConfigurationError(fmt.Errorf("retry budget cannot be negative, got %d", retries))
	}

	artifactsDir := ctx.String(flags.ArtifactsDir.Name)
	if artifactsDir == "" {
		artifactsDir = "artifacts"
	}
	artifactsDir, err = filepath.Abs(artifactsDir)
	if err != nil {
		return nil, NewConfigurationError(fmt.Errorf("failed to resolve absolute path for artifacts directory: %w", err))
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	cfg := &Config{
		FeaturesPath: absFeatures,
		FilterExpr:   ctx.String(flags.Filter.Name),
		Strategy:     ctx.String(flags.Strategy.Name),
		Parallel:     ctx.Bool(flags.Parallel.Name),
		Workers:      workers,
		Retries:      retries,
		Grouping:     grouping,
		DataDir:      ctx.String(flags.DataDir.Name),
		ArtifactsDir: artifactsDir,
		RunInterval:  runInterval,
		RunOnce:      runOnce,
		RequeueLimit: ctx.Int(flags.RequeueLimit.Name),
		Log:          logger,
	}
	return cfg, cfg.Validate()
}

// Validate checks the semantic consistency of the configuration.
func (c *Config) Validate() error {
	if c.FeaturesPath == "" {
		return NewConfigurationError(fmt.Errorf("feature manifest path is required"))
	}
	if c.Log == nil {
		return NewConfigurationError(fmt.Errorf("logger is required"))
	}
	if c.RunInterval < 0 {
		return NewConfigurationError(fmt.Errorf("run interval cannot be negative"))
	}
	return nil
}
