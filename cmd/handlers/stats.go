package handlers

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	statsDays    int
	statsCleanup int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show processing statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := openStore(ctx, settings)
		if err != nil {
			return err
		}
		defer st.Close()

		if statsCleanup > 0 {
			deleted, err := st.CleanupHistory(ctx, statsCleanup)
			if err != nil {
				return err
			}
			fmt.Printf("Cleaned up %d old history records\n", deleted)
			return nil
		}

		stats, err := st.ProcessingStats(ctx, statsDays)
		if err != nil {
			return err
		}

		var totalFound, totalNew, totalDup int64
		for _, s := range stats {
			totalFound += s.TotalFound
			totalNew += s.TotalNew
			totalDup += s.TotalDuplicates
		}

		fmt.Printf("Processing statistics (last %d days):\n", statsDays)
		fmt.Printf("  Total found: %d\n", totalFound)
		fmt.Printf("  Total new: %d\n", totalNew)
		fmt.Printf("  Total duplicates: %d\n", totalDup)
		fmt.Println("\nDaily breakdown:")
		for _, s := range stats {
			fmt.Printf("  %s (%s): %d new, %d duplicates\n",
				s.DateProcessed.Format("2006-01-02"), s.SourceType, s.TotalNew, s.TotalDuplicates)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or verify the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := openStore(ctx, settings)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}
		fmt.Println("Database schema verified")
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "Days of history to aggregate")
	statsCmd.Flags().IntVar(&statsCleanup, "cleanup", 0, "Delete history older than N days")
	rootCmd.AddCommand(statsCmd, migrateCmd)
}
