package handlers

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	cacheList    bool
	cacheCleanup int
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or sweep the object cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		blobCache, err := openCache(ctx, settings)
		if err != nil {
			return err
		}

		if cacheCleanup > 0 {
			deleted, err := blobCache.CleanupOlderThan(ctx, cacheCleanup)
			if err != nil {
				return err
			}
			fmt.Printf("Cleaned up %d old cache objects\n", deleted)
			return nil
		}

		if cacheList {
			dates, err := blobCache.ListEditionDates(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Cached editions (%d):\n", len(dates))
			for _, d := range dates {
				fmt.Println(" ", d)
			}
			return nil
		}

		return cmd.Help()
	},
}

func init() {
	cacheCmd.Flags().BoolVar(&cacheList, "list", false, "List cached edition dates")
	cacheCmd.Flags().IntVar(&cacheCleanup, "cleanup", 0, "Delete edition blobs older than N days")
	rootCmd.AddCommand(cacheCmd)
}
