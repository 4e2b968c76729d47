package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"marketauth/internal/auth"
	"marketauth/internal/auth/oauth"
	"marketauth/internal/auth/secrets"
	"marketauth/internal/config"
	"marketauth/pkg/logging"
)

const (
	// keyringService is the service name marketauth registers its storage
	// key under in the OS credential store.
	keyringService = "marketauth"
	// keyringAccount is the credential-store account for the storage key.
	keyringAccount = "storage-key"
)

var (
	authConfigPath string
	authQuiet      bool
)

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication for the market data API",
	Long: `Manage OAuth authentication for the market data API.

The auth command group provides subcommands to login, check status, and
clear stored tokens. Tokens are encrypted at rest; login opens a browser
only when no usable refresh token remains.

Examples:
  marketauth auth login    # Obtain or refresh tokens
  marketauth auth status   # Show token status
  marketauth auth logout   # Clear stored tokens`,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear stored tokens",
	Long: `Clear the stored OAuth tokens.

This removes the encrypted token record, requiring a full browser-based
authorization on the next login.`,
	RunE: runAuthLogout,
}

// authPrint prints output only if the --quiet flag is not set.
// Use this for progress messages and non-essential output.
func authPrint(format string, args ...interface{}) {
	if !authQuiet {
		fmt.Printf(format, args...)
	}
}

// authPrintln prints a line only if the --quiet flag is not set.
func authPrintln(a ...interface{}) {
	if !authQuiet {
		fmt.Println(a...)
	}
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)

	// Common flags for auth commands (shared across subcommands)
	authCmd.PersistentFlags().StringVar(&authConfigPath, "config-path", config.GetDefaultConfigDir(), "Configuration directory")
	authCmd.PersistentFlags().BoolVarP(&authQuiet, "quiet", "q", false, "Suppress non-essential output")
}

// buildClient assembles the full credential stack from configuration:
// config file -> key source -> encrypted storage -> token manager ->
// OAuth client.
func buildClient() (*oauth.Client, config.Config, error) {
	cfg, err := config.LoadConfig(authConfigPath)
	if err != nil {
		return nil, config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, config.Config{}, err
	}

	// The --log-level flag wins; otherwise the config file decides.
	if !rootCmd.PersistentFlags().Changed("log-level") && cfg.LogLevel != "" {
		if level, err := logging.ParseLevel(cfg.LogLevel); err == nil {
			logging.Init(level, os.Stderr)
		}
	}

	var source secrets.KeySource
	switch cfg.Storage.Backend {
	case config.BackendKeyring:
		source = &secrets.KeyringSource{Service: keyringService, Account: keyringAccount}
	case config.BackendDerived:
		source = &secrets.DerivedSource{Dir: cfg.Storage.Dir}
	default:
		source = secrets.AutoKeySource(keyringService, keyringAccount, cfg.Storage.Dir)
	}

	store, err := secrets.NewStorage(cfg.Storage.Dir, source)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("failed to open secret storage: %w", err)
	}

	credential := credentialFromConfig(cfg)
	tokens, err := oauth.NewTokenManager(oauth.TokenManagerConfig{
		Storage:       store,
		SetName:       cfg.OAuth.TokenSet,
		TokenURL:      cfg.API.TokenURL,
		Credential:    credential,
		RefreshBuffer: cfg.RefreshBuffer(),
	})
	if err != nil {
		return nil, config.Config{}, err
	}

	client, err := oauth.NewClient(oauth.ClientConfig{
		Credential:      credential,
		AuthorizeURL:    cfg.API.AuthorizeURL,
		Scope:           cfg.OAuth.Scope,
		TokenManager:    tokens,
		CallbackTimeout: cfg.CallbackTimeout(),
		RefreshBuffer:   cfg.RefreshBuffer(),
	})
	if err != nil {
		return nil, config.Config{}, err
	}
	return client, cfg, nil
}

func credentialFromConfig(cfg config.Config) auth.Credential {
	return auth.Credential{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURI:  cfg.OAuth.RedirectURI,
	}
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	client, _, err := buildClient()
	if err != nil {
		return err
	}

	if err := client.Revoke(); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}

	authPrintln("Stored tokens cleared.")
	return nil
}
