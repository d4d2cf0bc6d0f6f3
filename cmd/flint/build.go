package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/timelessos/flint/internal/build"
)

var forceBuildFlag bool

var buildCmd = &cobra.Command{
	Use:   "build <repo> <build-manifest>",
	Short: "Build a package from a build manifest into a repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := safeRepoDir(args[0])
		if err != nil {
			return err
		}

		engine := build.NewEngine(repoDir, cfg.KeyDir, cfg.StoreDir, cfg.SourceCache)
		pkg, err := engine.Build(cmd.Context(), args[1], build.Options{ForceBuild: forceBuildFlag})
		if err != nil {
			return err
		}

		fmt.Printf("built %s (build_hash=%s, %d chunks)\n", pkg.ID, pkg.BuildHash, len(pkg.Chunks))
		return nil
	},
}

func init() {
	buildCmd.Flags().BoolVar(&forceBuildFlag, "force", false, "Skip the build-hash short-circuit check")
}
