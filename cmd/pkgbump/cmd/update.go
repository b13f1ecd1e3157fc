package cmd

import (
	"github.com/anthr76/pkgbump/internal/updater"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update [package-dir]",
	Short: "Update the package to the latest upstream tag",
	Long: `Update the package in package-dir (default ".") to the latest upstream tag.

The record file is saved with the new version and source hash before the
dependency hash is resolved. If resolving the dependency hash fails, the
placeholder hash is left in place and the command still exits 0.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	u, err := updater.New(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	return u.Run(cmd.Context())
}
