package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"marketauth/internal/auth"
	"marketauth/pkg/logging"
)

// Exit codes for CLI commands.
// These follow common conventions so scripts can branch on the outcome.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

// errAuthRequired marks outcomes where no valid credential is held and the
// user has to run `marketauth auth login`.
var errAuthRequired = errors.New("authentication required")

var logLevel string

// rootCmd represents the base command for the marketauth application.
var rootCmd = &cobra.Command{
	Use:   "marketauth",
	Short: "Manage OAuth credentials for the market data API",
	Long: `marketauth obtains, refreshes and stores the OAuth tokens used to
access the market data API. Tokens are encrypted at rest and refreshed
automatically; the browser-based authorization flow only runs when no
usable refresh token remains.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logging.Init(level, os.Stderr)
		return nil
	},
}

// SetVersion sets the version for the root command.
// This is called from the main package to inject the version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
// It is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "marketauth version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	if errors.Is(err, errAuthRequired) {
		return ExitCodeAuthRequired
	}
	if auth.IsAuthError(err) {
		return ExitCodeAuthFailed
	}
	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(newVersionCmd())
}
