package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/anthr76/pkgbump/internal/config"
	"github.com/anthr76/pkgbump/internal/logger"
	"github.com/spf13/cobra"
	"go.trai.ch/zerr"
	"go.uber.org/zap/zapcore"
)

const Version = "0.1.0"

var (
	rootVerbose  bool
	rootLogLevel string
	rootConfig   string
)

var rootCmd = &cobra.Command{
	Use:   "pkgbump",
	Short: "Bump a Nix package to its latest upstream release",
	Long: `pkgbump updates a Nix package definition to the newest upstream tag.

It recomputes the source hash, regenerates the Cargo.lock patch needed for
extra cargo features, and resolves the dependency hash by building the
package against a placeholder.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Sync()

	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&rootConfig, "config", "c", "", "package config file (default <package-dir>/"+config.DefaultConfigFile+")")
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	level, ok := logger.ParseLevel(rootLogLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", rootLogLevel)
	}
	if rootVerbose {
		level = zapcore.DebugLevel
	}
	logger.SetLevel(level)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logger.ToContext(ctx, logger.Logger()))
	return nil
}

// loadConfig reads the package config for the optional directory argument.
func loadConfig(args []string) (*config.Config, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	cfg, err := config.Load(dir, rootConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// printError writes err followed by any captured subprocess details.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)

	var zErr *zerr.Error
	if !errors.As(err, &zErr) {
		return
	}

	meta := zErr.Metadata()
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %v\n", k, meta[k])
	}
}
