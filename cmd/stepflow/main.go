package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	stepflow "github.com/stepflow-dev/stepflow"
	"github.com/stepflow-dev/stepflow/exitcodes"
	"github.com/stepflow-dev/stepflow/flags"
	"github.com/stepflow-dev/stepflow/service"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "stepflow"
	app.Usage = "Scenario Execution Orchestration Service"
	app.Description = "stepflow plans and executes behavior scenarios across a worker pool"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Map typed errors onto the documented exit codes
			switch {
			case stepflow.IsConfigurationError(err):
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.InitErr))
			case stepflow.IsDiscoveryError(err):
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.DiscoveryErr))
			case stepflow.IsRuntimeError(err):
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			case stepflow.IsScenarioFailureError(err):
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.ScenarioFailure))
			default:
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.ScenarioFailure))
			}
		}
	}

	// Start telemetry
	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start server
	ctx := ctxinterrupt.WithSignalWaiterMain(context.Background())
	svc := service.New()
	svc.Start(ctx)
	defer svc.Shutdown()

	// Start CLI
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := stepflow.NewConfig(ctx, log, ctx.String(flags.Features.Name))
	if err != nil {
		return nil, stepflow.NewConfigurationError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	coordinator, err := stepflow.New(ctx.Context, cfg, Version, closeApp)
	if err != nil {
		if stepflow.IsConfigurationError(err) {
			return nil, err
		}
		return nil, stepflow.NewRuntimeError(fmt.Errorf("failed to create coordinator: %w", err))
	}

	return coordinator, nil
}
