package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/shepherd/pkg/agent"
	"github.com/cuemby/shepherd/pkg/config"
	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shepherd",
	Short: "Shepherd - fleet node agent",
	Long: `Shepherd keeps every node of a fleet converged on a declared setup
script and environment, and restarts the workload one node at a time
under a fleet-wide restart lock arbitrated by the leader node.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Shepherd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("api", "127.0.0.1:7947", "Agent API address")

	agentCmd.Flags().StringP("config", "c", "", "Path to the agent config file")
	agentCmd.Flags().StringSlice("env-file", []string{"/etc/shepherd/shepherd.env"}, "Dotenv files with SHEPHERD_* settings (missing files are skipped)")

	eventCmd.Flags().StringToString("meta", nil, "Event metadata (key=value)")

	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(eventCmd)
	rootCmd.AddCommand(rollingRestartCmd)
	rootCmd.AddCommand(certsCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(versionCmd)
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the node agent",
	Long: `Run the node agent in the foreground.

The agent installs and starts the workload, joins its peers, and then
reacts to lifecycle events until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		envFiles, _ := cmd.Flags().GetStringSlice("env-file")

		if err := config.LoadEnvFiles(envFiles...); err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
		})
		metrics.SetVersion(Version)

		rt, err := agent.NewRuntime(cfg)
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := rt.Run(ctx); err != nil {
			return fmt.Errorf("agent stopped: %w", err)
		}
		log.Logger.Info().Msg("Shutdown complete")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Shepherd version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}
