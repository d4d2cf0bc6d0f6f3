package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/timelessos/flint/internal/catalog"
	"github.com/timelessos/flint/internal/run"
)

var runCmd = &cobra.Command{
	Use:                "run <repo> <id> <entrypoint> [-- args...]",
	Short:              "Run an installed package's entrypoint",
	Args:               cobra.MinimumNArgs(3),
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := safeRepoDir(args[0])
		if err != nil {
			return err
		}
		id, entrypoint, childArgs := args[1], args[2], args[3:]
		if len(childArgs) > 0 && childArgs[0] == "--" {
			childArgs = childArgs[1:]
		}

		pkg, err := catalog.GetInstalledPackage(repoDir, id)
		if err != nil {
			return err
		}

		installedDir := filepath.Join(repoDir, catalog.InstalledDirName, id)
		result, err := run.Start(cmd.Context(), pkg, installedDir, entrypoint, childArgs)
		if err != nil {
			return err
		}

		if result.Signaled {
			os.Exit(1)
		}
		os.Exit(result.ExitCode)
		return nil
	},
}
