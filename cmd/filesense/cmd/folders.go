package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/filesense/filesense/internal/ui"
)

func newFoldersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "folders",
		Short: "List the configured watched folders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ui.NewPrinter(os.Stdout).Folders(cfg.Paths.Folders)
			return nil
		},
	}
}
