package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/filesense/filesense/internal/daemon"
	"github.com/filesense/filesense/internal/ui"
)

func newSearchCmd() *cobra.Command {
	var limit int
	var exact bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed folders",
		Long: `Search runs one query against a fresh in-process stack: the saved
catalog and vector index are loaded, the configured folders are
refreshed, and results print to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], limit, exact)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum results (0 = default)")
	cmd.Flags().BoolVar(&exact, "exact", false, "Exact-text match instead of semantic")
	return cmd
}

func runSearch(cmd *cobra.Command, text string, limit int, exact bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := quietLogger()
	printer := ui.NewPrinter(os.Stdout)

	// The refresh below writes to the catalog, so this needs the same
	// exclusivity as indexing.
	lock := daemon.NewDataDirLock(cfg.Paths.DataDir)
	acquired, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("a filesense daemon is using %s; send it a search request instead", cfg.Paths.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	ctx := cmd.Context()
	st, err := newStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// Refresh the configured folders. Unchanged files short-circuit on
	// their content hash, so this is cheap after the first run.
	for _, folder := range cfg.Paths.Folders {
		if _, addErr := st.coordinator.AddFolder(ctx, folder); addErr != nil {
			printer.Warnf("skipping %s: %v", folder, addErr)
		}
	}

	if exact {
		res, searchErr := st.engine.SearchText(ctx, text, limit)
		if searchErr != nil {
			return searchErr
		}
		printer.SearchResults(res)
		return nil
	}

	res, searchErr := st.engine.Search(ctx, text, limit)
	if searchErr != nil {
		return searchErr
	}
	printer.SearchResults(res)
	return nil
}
