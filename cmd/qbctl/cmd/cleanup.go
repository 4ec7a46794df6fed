package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func CleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Purge expired download records and their files",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.DownloadService.CleanupExpired(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "records purged: %d\nfiles removed: %d\nunlinked jobs cleared: %d\n",
				result.RecordsPurged, result.FilesRemoved, result.UnlinkedCleared)
			return nil
		},
	}
}
