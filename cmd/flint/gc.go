package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/timelessos/flint/internal/catalog"
	"github.com/timelessos/flint/internal/version"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage-collect unreferenced chunks from the shared store",
}

var gcCleanUnusedCmd = &cobra.Command{
	Use:   "clean-unused <repo>",
	Short: "Keep only chunks referenced by some package in the repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := safeRepoDir(args[0])
		if err != nil {
			return err
		}
		removed, err := catalog.CleanUnused(repoDir, cfg.StoreDir)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d unreferenced chunks\n", len(removed))
		return nil
	},
}

var gcCleanUsedCmd = &cobra.Command{
	Use:   "clean-used <repo>",
	Short: "Keep only chunks referenced by currently installed packages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := safeRepoDir(args[0])
		if err != nil {
			return err
		}
		removed, err := version.CleanUsed(repoDir, cfg.StoreDir)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d chunks unused by installed packages\n", len(removed))
		return nil
	},
}

func init() {
	gcCmd.AddCommand(gcCleanUnusedCmd)
	gcCmd.AddCommand(gcCleanUsedCmd)
}
