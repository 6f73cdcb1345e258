package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/cuemby/shepherd/pkg/storage"
	"github.com/spf13/cobra"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect or migrate the local replica (agent must be stopped)",
}

var storeDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every scope of the local replica",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, _ := cmd.Flags().GetString("backend")
		dir, _ := cmd.Flags().GetString("data-dir")

		s, err := storage.Open(backend, dir)
		if err != nil {
			return err
		}
		defer s.Close()

		scopes, err := s.Scopes()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "SCOPE\tKEY\tVALUE")
		for _, scope := range scopes {
			kv, err := s.Get(scope)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(kv))
			for k := range kv {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "%s\t%s\t%s\n", scope, k, kv[k])
			}
		}
		return w.Flush()
	},
}

var storeMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy the local replica to another backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		fromDir, _ := cmd.Flags().GetString("from-dir")
		to, _ := cmd.Flags().GetString("to")
		toDir, _ := cmd.Flags().GetString("to-dir")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if from == storage.BackendMemory || to == storage.BackendMemory {
			return fmt.Errorf("the memory backend cannot be migrated")
		}
		if from == to && fromDir == toDir {
			return fmt.Errorf("source and destination are the same store")
		}

		src, err := storage.Open(from, fromDir)
		if err != nil {
			return fmt.Errorf("failed to open source: %w", err)
		}
		defer src.Close()

		dst, err := storage.Open(to, toDir)
		if err != nil {
			return fmt.Errorf("failed to open destination: %w", err)
		}
		defer dst.Close()

		res, err := storage.Migrate(src, dst, dryRun)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		if dryRun {
			fmt.Printf("[DRY RUN] Would copy %d scopes (%d keys) from %s to %s\n", res.Scopes, res.Keys, from, to)
			return nil
		}
		fmt.Printf("✓ Copied %d scopes (%d keys) from %s to %s\n", res.Scopes, res.Keys, from, to)
		fmt.Printf("  Set storage.backend: %s and node.data_dir: %s before restarting the agent\n", to, toDir)
		return nil
	},
}

func init() {
	storeDumpCmd.Flags().String("backend", storage.BackendBolt, "Storage backend (bolt or badger)")
	storeDumpCmd.Flags().String("data-dir", "/var/lib/shepherd", "Agent data directory")

	storeMigrateCmd.Flags().String("from", storage.BackendBolt, "Source backend")
	storeMigrateCmd.Flags().String("from-dir", "/var/lib/shepherd", "Source data directory")
	storeMigrateCmd.Flags().String("to", storage.BackendBadger, "Destination backend")
	storeMigrateCmd.Flags().String("to-dir", "/var/lib/shepherd/badger", "Destination data directory")
	storeMigrateCmd.Flags().Bool("dry-run", false, "Show what would be copied without writing")

	storeCmd.AddCommand(storeDumpCmd)
	storeCmd.AddCommand(storeMigrateCmd)
}
