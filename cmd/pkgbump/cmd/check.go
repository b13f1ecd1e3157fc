package cmd

import (
	"fmt"

	"github.com/anthr76/pkgbump/internal/updater"
	"github.com/spf13/cobra"
)

var checkExitCode bool

var checkCmd = &cobra.Command{
	Use:   "check [package-dir]",
	Short: "Report whether a newer upstream tag exists",
	Long: `Compare the recorded version with the latest upstream tag without
writing anything.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkExitCode, "exit-code", false, "exit with an error when an update is available")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	u, err := updater.New(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	_, status, err := u.Check(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Current: %s, Latest: %s\n", status.Current, status.Latest)
	if !status.Needed {
		fmt.Fprintln(out, "Already up to date")
		return nil
	}

	fmt.Fprintf(out, "Update available: %s -> %s\n", status.Current, status.Latest)
	if checkExitCode {
		return fmt.Errorf("%s is out of date", cfg.Name)
	}
	return nil
}
