// Package cmd provides the CLI commands for filesense.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/filesense/filesense/internal/config"
	"github.com/filesense/filesense/internal/logging"
	"github.com/filesense/filesense/internal/profiling"
	"github.com/filesense/filesense/pkg/version"
)

var (
	configPath string
	debugMode  bool

	profileCPU   string
	profileMem   string
	profileTrace string
	profile      *profiling.Session
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filesense",
		Short: "Local, real-time semantic file search",
		Long: `Filesense watches folders, indexes their files locally, and answers
semantic and exact-text searches over them. Results are served to
clients over WebSocket and to one-shot CLI queries.

Everything runs on this machine; no file content leaves it.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts := profiling.Options{
				CPUPath:   profileCPU,
				HeapPath:  profileMem,
				TracePath: profileTrace,
			}
			if !opts.Enabled() {
				return nil
			}
			s, err := profiling.Start(opts)
			if err != nil {
				return err
			}
			profile = s
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if profile == nil {
				return nil
			}
			return profile.Stop()
		},
	}

	cmd.SetVersionTemplate("filesense version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to filesense.yaml")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write a CPU profile to the given file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write a heap profile to the given file on exit")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write an execution trace to the given file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newFoldersCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig reads configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// serveLogger builds full file+stderr logging for the daemon.
func serveLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if debugMode {
		logCfg.Level = "debug"
	}
	return logging.Setup(logCfg)
}

// quietLogger keeps one-shot commands readable: warnings and errors
// only, to stderr, unless --debug asks for more.
func quietLogger() *slog.Logger {
	level := slog.LevelWarn
	if debugMode {
		level = slog.LevelDebug
	}
	var out io.Writer = os.Stderr
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}
