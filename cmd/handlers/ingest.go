package handlers

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"newsroom/internal/ingest"
)

var (
	ingestSinceHours int
	ingestLimit      int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run an ancillary source adapter",
}

var ingestRedditCmd = &cobra.Command{
	Use:   "reddit",
	Short: "Ingest new posts from local subreddits",
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

		r := ingest.NewRedditIngester(ingest.RedditConfig{
			ClientID:     settings.RedditClientID,
			ClientSecret: settings.RedditClientSecret,
			UserAgent:    settings.RedditUserAgent,
			Username:     settings.RedditUsername,
			Password:     settings.RedditPassword,
			Subreddits:   settings.RedditSubreddits,
		}, st).WithTokenStore(st)

		n, err := r.Run(ctx, ingestSinceHours, ingestLimit)
		if err != nil {
			return err
		}
		fmt.Printf("Ingested %d reddit posts\n", n)
		return nil
	},
}

var ingestNWSCmd = &cobra.Command{
	Use:   "nws",
	Short: "Ingest active National Weather Service alerts",
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

		n := ingest.NewNWSIngester(ingest.NWSConfig{
			Zones:     settings.NWSZones,
			UserAgent: settings.NWSUserAgent,
		}, st)

		count, err := n.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Ingested %d NWS alerts\n", count)
		return nil
	},
}

var ingestFacebookCmd = &cobra.Command{
	Use:   "facebook",
	Short: "Ingest posts from managed Facebook Pages",
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

		f := ingest.NewFacebookIngester(ingest.FacebookConfig{
			GraphVersion:    settings.FacebookGraphVersion,
			UserAccessToken: settings.FacebookUserAccessToken,
			PageIDs:         settings.FacebookPageIDs,
		}, st)

		since := time.Now().UTC().Add(-time.Duration(ingestSinceHours) * time.Hour)
		n, err := f.Run(ctx, since, ingestLimit)
		if err != nil {
			return err
		}
		fmt.Printf("Ingested %d facebook posts\n", n)
		return nil
	},
}

func init() {
	ingestCmd.PersistentFlags().IntVar(&ingestSinceHours, "since", 24, "Hours back to consider")
	ingestCmd.PersistentFlags().IntVar(&ingestLimit, "limit", 50, "Max items per source")
	ingestCmd.AddCommand(ingestRedditCmd, ingestNWSCmd, ingestFacebookCmd)
	rootCmd.AddCommand(ingestCmd)
}
