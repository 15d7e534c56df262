package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/filesense/filesense/internal/daemon"
	"github.com/filesense/filesense/internal/preflight"
	"github.com/filesense/filesense/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the search daemon",
		Long: `Serve watches the configured folders, keeps the index current, and
answers WebSocket clients until interrupted.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, cleanup, err := serveLogger(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// One daemon per data dir; a second instance would fight over the
	// catalog database and the vector index files.
	lock := daemon.NewDataDirLock(cfg.Paths.DataDir)
	acquired, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("another filesense daemon is using %s", cfg.Paths.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	pidfile := daemon.NewPIDFile(filepath.Join(cfg.Paths.DataDir, "filesense.pid"))
	if err := pidfile.Write(); err != nil {
		logger.Warn("pid file write failed", "error", err)
	}
	defer func() { _ = pidfile.Remove() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Preflight results are advisory; the stack degrades rather than
	// refusing to start.
	for _, check := range preflight.RunAll(ctx, cfg) {
		if check.Status == preflight.StatusPass {
			logger.Info("preflight", "check", check.Name, "message", check.Message)
		} else {
			logger.Warn("preflight", "check", check.Name, "status", check.Status.String(), "message", check.Message)
		}
	}

	st, err := newStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	go func() { _ = st.pump.Run(ctx) }()
	go func() { _ = st.coordinator.Run(ctx) }()

	for _, folder := range cfg.Paths.Folders {
		if _, err := st.coordinator.AddFolder(ctx, folder); err != nil {
			logger.Warn("configured folder not watchable", "path", folder, "error", err)
		}
	}

	srv := server.New(cfg, st.coordinator, st.engine, st.bus, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return srv.Shutdown()
	case err := <-errCh:
		// Bind failure or a listener crash; either way the daemon is done.
		return err
	}
}
