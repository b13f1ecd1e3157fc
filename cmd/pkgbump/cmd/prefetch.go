package cmd

import (
	"fmt"

	"github.com/anthr76/pkgbump/internal/command"
	"github.com/anthr76/pkgbump/internal/fetch"
	"github.com/anthr76/pkgbump/internal/hash"
	"github.com/spf13/cobra"
)

var prefetchNix32 bool

var prefetchCmd = &cobra.Command{
	Use:   "prefetch <archive-url>",
	Short: "Print the SRI hash of an unpacked source archive",
	Long: `Download an archive, unpack it and print the hash fetchFromGitHub and
fetchzip expect. Uses nix-prefetch-url when installed.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrefetch,
}

func init() {
	rootCmd.AddCommand(prefetchCmd)
	prefetchCmd.Flags().BoolVar(&prefetchNix32, "nix32", false, "print the hash in Nix base32 instead of SRI")
}

func runPrefetch(cmd *cobra.Command, args []string) error {
	h, err := fetch.NewPrefetcher(command.Exec{}).Prefetch(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out, err := formatHash(h, prefetchNix32)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

// formatHash renders an SRI hash in the requested output form.
func formatHash(sri string, nix32 bool) (string, error) {
	if !nix32 {
		return sri, nil
	}
	return hash.SRIToNix32(sri)
}
