package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain or refresh API tokens",
	Long: `Authenticate to the market data API using OAuth.

When a valid access token is already held, nothing happens. When a
refresh token is available, it is used silently. Only when neither works
does this command open a browser for the authorization flow and wait for
the provider to redirect back.

Examples:
  marketauth auth login            # Obtain or refresh tokens
  marketauth auth login --quiet    # Suppress progress output`,
	RunE: runAuthLogin,
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	client, cfg, err := buildClient()
	if err != nil {
		return err
	}

	if !client.IsAuthenticated() {
		authPrintln("Authenticating to the market data API...")
	}

	ok, err := client.Authenticate(cmd.Context())
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		// The flow completed but the user declined consent.
		authPrintln("Authorization was declined.")
		return errAuthRequired
	}

	info := client.TokenInfo()
	authPrint("Authenticated. Token expires %s.\n", formatExpiry(info.ExpiresAt))
	if cfg.OAuth.Scope != "" && info.Scope != "" && info.Scope != cfg.OAuth.Scope {
		authPrint("Note: granted scope %q differs from requested %q.\n", info.Scope, cfg.OAuth.Scope)
	}
	return nil
}
