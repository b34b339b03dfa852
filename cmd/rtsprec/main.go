// Package main is the CLI entry point for rtsprec.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/rtsprec/internal/config"
	"github.com/eliteGoblin/rtsprec/internal/infra"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rtsprec",
	Short: "RTSP stream recorder",
	Long: `rtsprec records one RTSP stream to disk with ffmpeg, split into
fixed-length segments under OUTPUT_DIR/YYYY/MM/DD/.

The recorder restarts the capture engine whenever it fails and removes
the partial segments a failed run leaves behind. Use start/stop/restart/status
to run it in the background, or record to run it in the foreground.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the recorder in the background",
	Long: `Spawns a detached recorder process and writes its PID record.
Does nothing if a recorder is already running.`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background recorder",
	Long: `Sends SIGTERM to the recorder, waits up to STOP_TIMEOUT, then sends SIGKILL.
Stopping a recorder that is not running is not an error.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Stop then start the background recorder",
	Args:  cobra.NoArgs,
	RunE:  runRestart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the recorder is running",
	Long:  `Shows the recorder process, how it was found, its uptime and today's latest segment.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Run the recorder in the foreground",
	Long: `Runs the capture supervisor until SIGINT or SIGTERM.
This is the process start spawns; run it directly under systemd or a terminal.`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration",
	Long:  `Loads the configuration, validates it and checks the engine binary and output directory.`,
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file (default $RTSPREC_CONFIG)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads settings; validate rejects unusable ones.
func loadConfig(validate bool) (*config.Config, error) {
	cfg, err := config.Load(config.Options{ConfigPath: configPath})
	if err != nil {
		return nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// runtimePaths returns where the PID record and instance lock live.
func runtimePaths(cfg *config.Config) *infra.ExecModeConfig {
	return infra.DetectExecMode().WithPIDFile(cfg.PIDFile)
}

// absConfigPath makes --config survive the detached spawn.
func absConfigPath() string {
	if configPath == "" {
		return ""
	}
	if abs, err := filepath.Abs(configPath); err == nil {
		return abs
	}
	return configPath
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("rtsprec %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

// isConfigError reports whether err came from configuration loading or validation.
func isConfigError(err error) bool {
	return errors.Is(err, config.ErrInvalid)
}
