package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/timelessos/flint/internal/config"
	"github.com/timelessos/flint/internal/hashkind"
	"github.com/timelessos/flint/internal/mirror"
	"github.com/timelessos/flint/internal/version"
)

var installCmd = &cobra.Command{
	Use:   "install <repo> <id>",
	Short: "Fetch any missing chunks from mirrors and install a package",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := safeRepoDir(args[0])
		if err != nil {
			return err
		}

		client := mirror.NewClient(config.GetMirrorTimeout())
		packageHash, err := version.Install(cmd.Context(), client, repoDir, cfg.StoreDir, hashkind.Blake3, args[1])
		if err != nil {
			return err
		}

		fmt.Printf("installed %s (%s)\n", args[1], packageHash)
		return nil
	},
}
