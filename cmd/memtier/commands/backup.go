package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var backupRestore string

// BackupCmd snapshots or restores the SQLite store.
var BackupCmd = &cobra.Command{
	Use:   "backup [path]",
	Short: "Back up or restore the record store",
	Long: `Write a consistent snapshot of the record store to the given path
(default: a timestamped file in the configured backup directory), or restore
from one with --restore.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := LoadApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if backupRestore != "" {
			meta, err := app.Repo.Restore(ctx, backupRestore)
			if err != nil {
				return fmt.Errorf("restore: %w", err)
			}
			return enc.Encode(meta)
		}

		path := ""
		if len(args) > 0 {
			path = args[0]
		} else {
			dir := app.Config.Storage.BackupDir
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create backup dir: %w", err)
			}
			path = filepath.Join(dir, fmt.Sprintf("memtier-%s.db", time.Now().Format("20060102-150405")))
		}

		meta, err := app.Repo.Backup(ctx, path)
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		return enc.Encode(meta)
	},
}

func init() {
	BackupCmd.Flags().StringVar(&backupRestore, "restore", "", "restore the store from this backup file")
}
