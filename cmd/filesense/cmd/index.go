package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/filesense/filesense/internal/daemon"
	"github.com/filesense/filesense/internal/ui"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index <folder>",
		Short: "Index a folder and remember it",
		Long: `Index walks the folder, indexes every supported file, and adds the
folder to the configuration so the daemon watches it from now on.`,
		Args: cobra.ExactArgs(1),
		RunE: runIndex,
	}
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := quietLogger()
	printer := ui.NewPrinter(os.Stdout)

	lock := daemon.NewDataDirLock(cfg.Paths.DataDir)
	acquired, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("a filesense daemon is using %s; send it an indexFolder request instead", cfg.Paths.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	ctx := cmd.Context()
	st, err := newStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.coordinator.AddFolder(ctx, args[0])
	if err != nil {
		return err
	}
	printer.IndexStats(stats)

	// Remember the folder so serve watches it on the next start.
	folder, err := filepath.Abs(args[0])
	if err == nil && !containsString(cfg.Paths.Folders, folder) {
		cfg.Paths.Folders = append(cfg.Paths.Folders, folder)
		savePath := configPath
		if savePath == "" {
			savePath = filepath.Join(cfg.Paths.DataDir, "filesense.yaml")
		}
		if saveErr := cfg.Save(savePath); saveErr != nil {
			printer.Warnf("could not update config: %v", saveErr)
		}
	}
	return nil
}

func containsString(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
