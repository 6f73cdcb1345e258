package workload

import (
	"context"
	"fmt"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/rs/zerolog"
)

// Driver starts and restarts the workload managed by the agent
type Driver struct {
	exec Executor

	// ScriptPath is the materialized setup script
	ScriptPath string

	// StartCommand defaults to running ScriptPath
	StartCommand string

	// RestartCommand defaults to StartCommand
	RestartCommand string

	logger zerolog.Logger
}

// NewDriver creates a Driver running commands through exec
func NewDriver(exec Executor, scriptPath, startCmd, restartCmd string) *Driver {
	return &Driver{
		exec:           exec,
		ScriptPath:     scriptPath,
		StartCommand:   startCmd,
		RestartCommand: restartCmd,
		logger:         log.WithComponent("workload"),
	}
}

func (d *Driver) startCommand() string {
	if d.StartCommand != "" {
		return d.StartCommand
	}
	return d.ScriptPath
}

func (d *Driver) restartCommand() string {
	if d.RestartCommand != "" {
		return d.RestartCommand
	}
	return d.startCommand()
}

// Start runs the workload start command
func (d *Driver) Start(ctx context.Context) error {
	cmd := d.startCommand()
	d.logger.Info().Str("command", cmd).Msg("Starting workload")

	out, err := d.exec.Exec(ctx, cmd, Options{})
	if err != nil {
		return fmt.Errorf("failed to start workload: %w", err)
	}
	d.logger.Debug().Str("output", truncate(out, 200)).Msg("Workload started")
	return nil
}

// Restart runs the workload restart command
func (d *Driver) Restart(ctx context.Context) error {
	cmd := d.restartCommand()
	d.logger.Info().Str("command", cmd).Msg("Restarting workload")

	timer := metrics.NewTimer()
	_, err := d.exec.Exec(ctx, cmd, Options{})
	if err != nil {
		metrics.RestartsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to restart workload: %w", err)
	}
	metrics.RestartsTotal.WithLabelValues("ok").Inc()
	d.logger.Info().Dur("took", timer.Duration()).Msg("Workload restarted")
	return nil
}
