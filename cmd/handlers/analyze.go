package handlers

import (
	"github.com/spf13/cobra"

	"newsroom/internal/analytics"
)

var (
	analyzeWindow int
	analyzeDays   int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Aggregate daily metrics and compute trending",
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

		job := analytics.NewJob(st, analytics.Options{
			Window: analyzeWindow,
			Days:   analyzeDays,
		})
		return job.Run(ctx)
	},
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeWindow, "window", 7, "Trailing window size in days")
	analyzeCmd.Flags().IntVar(&analyzeDays, "days", 3, "Recent days to aggregate")
	rootCmd.AddCommand(analyzeCmd)
}
