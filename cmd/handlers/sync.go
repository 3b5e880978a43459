package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"newsroom/internal/llm"
	"newsroom/internal/vector"
)

var (
	syncBackend string
	syncHours   int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upsert recently summarized articles into the search index",
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

		var backend vector.Backend
		switch syncBackend {
		case "weaviate":
			if settings.WeaviateURL == "" {
				return fmt.Errorf("WEAVIATE_URL is not configured")
			}
			backend = vector.NewWeaviateBackend(settings.WeaviateURL, settings.WeaviateAPIKey)
		case "qdrant":
			if settings.QdrantURL == "" {
				return fmt.Errorf("QDRANT_URL is not configured")
			}
			backend = vector.NewQdrantBackend(settings.QdrantURL, settings.QdrantAPIKey)
		default:
			return fmt.Errorf("unknown backend %q (weaviate|qdrant)", syncBackend)
		}

		// No API key means keyword-only mode.
		var embedder vector.Embedder
		if settings.OpenAIAPIKey != "" {
			client := llm.NewClient(llm.ClientConfig{
				APIKey:  settings.OpenAIAPIKey,
				BaseURL: settings.OpenAIAPIBase,
			})
			embedder = vector.NewOpenAIEmbedder(client, settings.OpenAIEmbedModel)
		}

		indexer := vector.NewIndexer(st, embedder, backend)
		n, err := indexer.Sync(ctx, syncHours)
		if err != nil {
			return err
		}
		fmt.Printf("Synced %d articles to %s\n", n, syncBackend)
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncBackend, "backend", "weaviate", "Index backend (weaviate|qdrant)")
	syncCmd.Flags().IntVar(&syncHours, "hours", 12, "Sync articles updated in the last N hours")
	rootCmd.AddCommand(syncCmd)
}
