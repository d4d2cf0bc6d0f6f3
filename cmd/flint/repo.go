package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/timelessos/flint/internal/config"
	"github.com/timelessos/flint/internal/manifest"
	"github.com/timelessos/flint/internal/mirror"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage repositories",
}

var repoCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new, empty, self-signed repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := safeRepoDir(args[0])
		if err != nil {
			return err
		}
		m, err := manifest.Create(repoDir, cfg.KeyDir)
		if err != nil {
			return err
		}
		fmt.Printf("created repository %q (edition %s, hash kind %s)\n", args[0], m.Edition, m.HashKind)
		return nil
	},
}

var repoAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a remote repository, trusting its key on first use",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := safeRepoDir(args[0])
		if err != nil {
			return err
		}
		client := mirror.NewClient(config.GetMirrorTimeout())
		m, err := client.AddRepository(cmd.Context(), args[1], repoDir, nil)
		if err != nil {
			return err
		}
		fmt.Printf("added repository %q with %d packages\n", args[0], len(m.Packages))
		return nil
	},
}

var repoUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Refresh a repository's manifest from its mirrors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := safeRepoDir(args[0])
		if err != nil {
			return err
		}
		m, err := manifest.ReadManifest(repoDir)
		if err != nil {
			return err
		}
		client := mirror.NewClient(config.GetMirrorTimeout())
		changed, err := client.UpdateRepository(cmd.Context(), m.Mirrors, repoDir)
		if err != nil {
			return err
		}
		if changed {
			fmt.Printf("repository %q updated\n", args[0])
		} else {
			fmt.Printf("repository %q already up to date\n", args[0])
		}
		return nil
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list <name>",
	Short: "List packages in a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := safeRepoDir(args[0])
		if err != nil {
			return err
		}
		m, err := manifest.ReadManifest(repoDir)
		if err != nil {
			return err
		}
		for _, p := range m.Packages {
			fmt.Printf("%s\t%s\n", p.ID, p.BuildHash)
		}
		return nil
	},
}

func init() {
	repoCmd.AddCommand(repoCreateCmd)
	repoCmd.AddCommand(repoAddCmd)
	repoCmd.AddCommand(repoUpdateCmd)
	repoCmd.AddCommand(repoListCmd)
}
