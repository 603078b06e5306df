package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "STEPFLOW"

var (
	Features = &cli.StringFlag{
		Name:     "features",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "FEATURES"),
		Usage:    "Path to the parsed feature manifest (eg. 'features.yaml')",
	}
	Filter = &cli.StringFlag{
		Name:    "filter",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FILTER"),
		Usage:   "Tag expression selecting scenarios to run (eg. 'smoke and not flaky')",
	}
	Strategy = &cli.StringFlag{
		Name:    "strategy",
		Value:   "priority",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STRATEGY"),
		Usage:   "Scheduling strategy: priority, resource, dependency, time-optimal or random",
	}
	Parallel = &cli.BoolFlag{
		Name:    "parallel",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PARALLEL"),
		Usage:   "Execute scenarios on a worker pool instead of sequentially",
	}
	Workers = &cli.IntFlag{
		Name:    "workers",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKERS"),
		Usage:   "Worker pool size. 0 sizes the pool to max(1, cpuCount-1).",
	}
	Retries = &cli.IntFlag{
		Name:    "retries",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RETRIES"),
		Usage:   "Retry budget for failed scenarios",
	}
	Grouping = &cli.StringFlag{
		Name:    "grouping",
		Value:   "scenario",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GROUPING"),
		Usage:   "Work item grouping mode: scenario or feature",
	}
	DataDir = &cli.StringFlag{
		Name:    "data-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DATA_DIR"),
		Usage:   "Directory holding data-provider files for @DataProvider scenarios",
	}
	ArtifactsDir = &cli.StringFlag{
		Name:    "artifacts-dir",
		Value:   "artifacts",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ARTIFACTS_DIR"),
		Usage:   "Directory receiving per-run execution artifacts",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	RequeueLimit = &cli.IntFlag{
		Name:    "requeue-limit",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REQUEUE_LIMIT"),
		Usage:   "Max crash-requeues per work item before it is failed. 0 uses the default, negative is unbounded.",
	}
)

var requiredFlags = []cli.Flag{
	Features,
}

var optionalFlags = []cli.Flag{
	Filter,
	Strategy,
	Parallel,
	Workers,
	Retries,
	Grouping,
	DataDir,
	ArtifactsDir,
	RunInterval,
	RequeueLimit,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

// CheckRequired checks that the required flags are set
func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
