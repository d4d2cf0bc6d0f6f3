package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/timelessos/flint/internal/config"
	"github.com/timelessos/flint/internal/errmsg"
	"github.com/timelessos/flint/internal/ferr"
	"github.com/timelessos/flint/internal/log"
)

const (
	exitGeneral   = 1
	exitCancelled = 130
)

var (
	quietFlag   bool
	verboseFlag bool
	debugFlag   bool

	cfg *config.Config
)

var globalCtx context.Context
var globalCancel context.CancelFunc

var rootCmd = &cobra.Command{
	Use:   "flint",
	Short: "A content-addressed package manager",
	Long: `flint builds software packages from declarative build manifests,
stores their filesystem trees as deduplicated, hash-addressed chunks in a
shared store, signs repository metadata with Ed25519 keys, and installs
named versions by materializing chunk sets into working directories.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Show errors only")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show verbose output (INFO level)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Show debug output")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogger()

		var err error
		cfg, err = config.DefaultConfig()
		if err != nil {
			return err
		}
		return cfg.EnsureDirectories()
	}

	rootCmd.AddCommand(repoCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(gcCmd)
}

func main() {
	globalCtx, globalCancel = context.WithCancel(context.Background())
	defer globalCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived %s, canceling operation...\n", sig)
		globalCancel()
		<-sigChan
		fmt.Fprintln(os.Stderr, "Forced exit")
		os.Exit(exitCancelled)
	}()

	if err := rootCmd.ExecuteContext(globalCtx); err != nil {
		if globalCtx.Err() == context.Canceled {
			os.Exit(exitCancelled)
		}
		fmt.Fprintln(os.Stderr, errmsg.Format(err, nil))
		os.Exit(exitGeneral)
	}
}

func initLogger() {
	log.SetDefault(log.NewTextLogger(os.Stderr, determineLogLevel()))
}

func determineLogLevel() slog.Level {
	if debugFlag {
		return slog.LevelDebug
	}
	if verboseFlag {
		return slog.LevelInfo
	}
	if quietFlag {
		return slog.LevelError
	}
	if isTruthy(os.Getenv("FLINT_DEBUG")) {
		return slog.LevelDebug
	}
	if isTruthy(os.Getenv("FLINT_VERBOSE")) {
		return slog.LevelInfo
	}
	if isTruthy(os.Getenv("FLINT_QUIET")) {
		return slog.LevelError
	}
	return slog.LevelWarn
}

func isTruthy(s string) bool {
	s = strings.ToLower(s)
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// safeRepoDir resolves a --repo name to a directory, wrapping config's path
// escape error as a ferr.PathEscape error.
func safeRepoDir(name string) (string, error) {
	dir, err := cfg.SafeRepoDir(name)
	if err != nil {
		return "", ferr.Wrap(ferr.PathEscape, "safeRepoDir", name, err)
	}
	return dir, nil
}
