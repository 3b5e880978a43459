package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"newsroom/internal/fetch"
	"newsroom/internal/session"
)

var (
	loginVerify    bool
	loginHelper    string
	loginProtected string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Establish or verify the paywalled e-edition session",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		// The lockout marker rides in the object cache so every worker
		// sees it; a cache outage degrades to the local marker file.
		blobCache, cacheErr := openCache(ctx, settings)
		var lockout *session.LockoutStore
		if cacheErr == nil {
			lockout = session.NewLockoutStore(blobCache, settings.SessionStoragePath)
		} else {
			lockout = session.NewLockoutStore(nil, settings.SessionStoragePath)
		}

		fetcher, err := fetch.NewHTTPFetcher(settings.SessionStoragePath, "")
		if err != nil {
			return err
		}

		loginFn := session.ExecLoginFunc(loginHelper, settings.RandomProxy)
		manager := session.NewManager(settings.SessionStoragePath, loginProtected, fetcher, loginFn, lockout)

		if loginVerify {
			if manager.VerifySession(ctx) {
				fmt.Println("Session is valid")
				return nil
			}
			fmt.Println("Session is invalid or expired")
			os.Exit(1)
		}

		handle, err := manager.WithSession(ctx, true)
		if err != nil {
			return err
		}
		defer handle.Close()

		fmt.Println("Login successful, session state saved to", handle.StoragePath)
		return nil
	},
}

func init() {
	loginCmd.Flags().BoolVar(&loginVerify, "verify", false, "Verify the existing session only")
	loginCmd.Flags().StringVar(&loginHelper, "helper", os.Getenv("EEDITION_LOGIN_HELPER"), "External browser login helper command")
	loginCmd.Flags().StringVar(&loginProtected, "protected-url", "https://swvatoday.com/eedition/smyth_county/", "Protected URL used for verification")
	rootCmd.AddCommand(loginCmd)
}
