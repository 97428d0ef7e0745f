package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"relint/internal/auth"
	"relint/internal/config"
	"relint/internal/credentials"
	"relint/internal/state"
)

var authQuiet bool

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication for relint",
	Long: `Manage authentication for relint commands.

The auth command group provides subcommands to sign in through the browser,
sign out, inspect the current session, and validate the stored token against
the server.

Examples:
  relint auth login --server <url>     # Sign in to a server
  relint auth status                   # Show the current session
  relint auth validate                 # Check the token against the server
  relint auth logout                   # Sign out of the active server
  relint auth logout --all             # Remove every stored credential`,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authValidateCmd)

	authCmd.PersistentFlags().BoolVarP(&authQuiet, "quiet", "q", false, "Suppress progress output")
}

// authPrint prints output only if the --quiet flag is not set.
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

// newResolver wires the resolver over the real config, credential store, and
// connection registry.
func newResolver() (*auth.Resolver, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	storage, err := state.NewStorage()
	if err != nil {
		return nil, err
	}
	return auth.NewResolver(cfg, credentials.NewStore(), storage), nil
}
