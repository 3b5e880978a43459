package handlers

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"newsroom/internal/discover"
	"newsroom/internal/download"
	"newsroom/internal/fetch"
)

var (
	scrapeDate     string
	scrapeForce    bool
	scrapePubs     []string
	scrapeAllPubs  bool
	scrapeListPubs bool
	scrapeBaseURL  string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Discover and download edition pages into the object cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if scrapeListPubs {
			for _, pub := range discover.Publications() {
				fmt.Println(" ", pub)
			}
			return nil
		}

		targetDate := time.Now().UTC().Truncate(24 * time.Hour)
		if scrapeDate != "" {
			targetDate, err = time.Parse("2006-01-02", scrapeDate)
			if err != nil {
				return fmt.Errorf("invalid date %q, use YYYY-MM-DD", scrapeDate)
			}
		}

		blobCache, err := openCache(ctx, settings)
		if err != nil {
			return err
		}

		fetcher, err := fetch.NewHTTPFetcher(settings.SessionStoragePath, settings.RandomProxy())
		if err != nil {
			return err
		}
		discoverer := discover.New(fetcher, scrapeBaseURL)
		downloader := download.New(blobCache, settings.RandomProxy, download.Options{
			Workers: settings.ScraperParallelism,
		})

		publications := scrapePubs
		if scrapeAllPubs {
			publications = discover.Publications()
		}
		if len(publications) == 0 {
			publications = []string{discover.DefaultPublication}
		}

		anyDownloaded := false
		for _, pub := range publications {
			edition, err := discoverer.Discover(ctx, targetDate, pub)
			if err != nil {
				fmt.Printf("No edition found for %s (%s): %v\n", targetDate.Format("2006-01-02"), pub, err)
				continue
			}

			result := downloader.DownloadEdition(ctx, edition, scrapeForce)
			anyDownloaded = true

			fmt.Printf("Download results for %s — %s:\n", result.EditionDate, result.Publication)
			fmt.Printf("  Total pages: %d\n", result.TotalPages)
			fmt.Printf("  Successful: %d\n", result.Successful)
			fmt.Printf("  Failed: %d\n", result.Failed)
			fmt.Printf("  From cache: %d\n", result.FromCache)
			fmt.Printf("  Success rate: %.1f%%\n", result.SuccessRate*100)
			for _, failed := range result.FailedPages {
				fmt.Printf("    Page %d: %s\n", failed.PageNumber, failed.Error)
			}
		}

		if !anyDownloaded {
			return fmt.Errorf("no editions were downloaded")
		}
		return nil
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeDate, "date", "", "Edition date (YYYY-MM-DD, default today)")
	scrapeCmd.Flags().BoolVar(&scrapeForce, "force", false, "Download even if cached")
	scrapeCmd.Flags().StringArrayVar(&scrapePubs, "publication", nil, "Publication to download (repeatable)")
	scrapeCmd.Flags().BoolVar(&scrapeAllPubs, "all-publications", false, "Download all supported publications")
	scrapeCmd.Flags().BoolVar(&scrapeListPubs, "list-publications", false, "List supported publications and exit")
	scrapeCmd.Flags().StringVar(&scrapeBaseURL, "base-url", "https://swvatoday.com", "E-edition site root")
	rootCmd.AddCommand(scrapeCmd)
}
