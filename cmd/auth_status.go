package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show token status",
	Long: `Show the current authentication status.

This displays whether a token is held, when it expires, and whether a
refresh token is available. Token values are never printed. The exit
code is ` + fmt.Sprint(ExitCodeAuthRequired) + ` when no usable token is held, so scripts can branch on it.`,
	RunE: runAuthStatus,
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	client, cfg, err := buildClient()
	if err != nil {
		return err
	}

	info := client.TokenInfo()

	authPrintln("Market Data API")
	authPrint("  Token set: %s\n", cfg.OAuth.TokenSet)

	switch info.Status {
	case "no_token":
		authPrint("  Status:    Not authenticated\n")
		authPrint("             Run: marketauth auth login\n")
		return errAuthRequired

	case "expired":
		authPrint("  Status:    Expired\n")
		authPrint("  Expired:   %s\n", formatExpiry(info.ExpiresAt))
		if info.HasRefreshToken {
			authPrint("  Refresh:   Available (login will refresh silently)\n")
		} else {
			authPrint("  Refresh:   Not available (full login required)\n")
		}
		return errAuthRequired

	default:
		authPrint("  Status:    Authenticated\n")
		authPrint("  Expires:   %s\n", formatExpiry(info.ExpiresAt))
		if info.HasRefreshToken {
			authPrint("  Refresh:   Available\n")
		} else {
			authPrint("  Refresh:   Not available (re-auth required on expiry)\n")
		}
		if info.Scope != "" {
			authPrint("  Scope:     %s\n", info.Scope)
		}
	}
	return nil
}

// formatExpiry renders an expiry time with its direction relative to now.
func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	remaining := time.Until(t).Round(time.Second)
	if remaining < 0 {
		return fmt.Sprintf("%s (%s ago)", t.Local().Format(time.RFC1123), -remaining)
	}
	return fmt.Sprintf("%s (in %s)", t.Local().Format(time.RFC1123), remaining)
}
