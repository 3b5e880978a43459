package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"newsroom/internal/llm"
	"newsroom/internal/summarize"
)

var summarizeMaxBatches int

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize extracted articles with the configured LLM",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		if settings.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is not configured")
		}
		ctx := cmd.Context()

		st, err := openStore(ctx, settings)
		if err != nil {
			return err
		}
		defer st.Close()

		client := llm.NewClient(llm.ClientConfig{
			APIKey:  settings.OpenAIAPIKey,
			BaseURL: settings.OpenAIAPIBase,
		})
		failover := llm.NewModelFailover(settings.OpenAIModel, settings.OpenAIFallbacks...)

		maxBatches := settings.SummarizerMaxBatches
		if summarizeMaxBatches > 0 {
			maxBatches = summarizeMaxBatches
		}

		batcher := summarize.NewBatcher(st, client, failover, summarize.Options{
			BatchSize:  settings.SummarizerBatchSize,
			MaxBatches: maxBatches,
			MaxTokens:  settings.OpenAIMaxTokens,
		})

		stats, err := batcher.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Summarization complete: %d batches, %d successful, %d failed, %d errors\n",
			stats.BatchesProcessed, stats.Successful, stats.Failed, stats.Errors)

		if stats.Unproductive() {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	summarizeCmd.Flags().IntVar(&summarizeMaxBatches, "max-batches", 0, "Override SUMMARIZER_MAX_BATCHES")
	rootCmd.AddCommand(summarizeCmd)
}
