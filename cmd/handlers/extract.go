package handlers

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"newsroom/internal/extract"
)

var (
	extractDate  string
	extractForce bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract articles from cached edition pages into the article store",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		targetDate := time.Now().UTC().Truncate(24 * time.Hour)
		if extractDate != "" {
			targetDate, err = time.Parse("2006-01-02", extractDate)
			if err != nil {
				return fmt.Errorf("invalid date %q, use YYYY-MM-DD", extractDate)
			}
		}

		blobCache, err := openCache(ctx, settings)
		if err != nil {
			return err
		}
		st, err := openStore(ctx, settings)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		processor := extract.NewProcessor(blobCache, st)
		result, err := processor.ProcessEdition(ctx, targetDate, extractForce)
		if err != nil {
			return err
		}

		fmt.Printf("Edition processing results for %s:\n", result.EditionDate)
		fmt.Printf("  Files processed: %d/%d\n", result.ProcessedFiles, result.TotalFiles)
		fmt.Printf("  Articles found: %d\n", result.TotalArticles)
		fmt.Printf("  New articles: %d\n", result.NewArticles)
		fmt.Printf("  Duplicates: %d\n", result.DuplicateCount)
		fmt.Printf("  Processing time: %dms\n", result.ProcessingTimeMs)
		if result.FailedFiles > 0 {
			fmt.Printf("  Failed files: %d\n", result.FailedFiles)
			for _, fr := range result.Files {
				if fr.Status == "failed" {
					fmt.Printf("    %s: %s\n", fr.ObjectName, fr.ErrorMessage)
				}
			}
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractDate, "date", "", "Edition date to process (YYYY-MM-DD, default today)")
	extractCmd.Flags().BoolVar(&extractForce, "force", false, "Reprocess files already recorded in history")
	rootCmd.AddCommand(extractCmd)
}
