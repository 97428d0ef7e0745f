package cmd

import (
	"context"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"relint/internal/api"
	"relint/internal/credentials"
	"relint/internal/state"
)

// statusCheckTimeout bounds the server-side token verification so status
// stays responsive when the server is unreachable.
const statusCheckTimeout = 10 * time.Second

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current authentication status",
	Long: `Show the active connection and whether its stored token is usable.

The token is checked against the server, which catches sessions that were
revoked server-side before their local record went away.`,
	RunE: runAuthStatus,
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	storage, err := state.NewStorage()
	if err != nil {
		return err
	}
	active, err := storage.ActiveConnection()
	if err != nil {
		return err
	}
	if active == nil {
		authPrintln("Not signed in.")
		authPrintln(`Run "relint auth login --server <url>" to authenticate.`)
		return nil
	}

	authPrintln("Active connection")
	authPrint("  Server:     %s\n", active.ServerURL)
	authPrint("  Type:       %s\n", active.Type)
	if active.Org != "" {
		authPrint("  Org:        %s\n", active.Org)
	}
	if active.Region != "" {
		authPrint("  Region:     %s\n", active.Region)
	}
	authPrint("  Signed in:  %s\n", active.AuthenticatedAt.Local().Format(time.RFC822))

	token, err := credentials.NewStore().Get(active.ServerURL, active.Org)
	if err != nil || token == "" {
		authPrint("  Status:     %s\n", text.FgYellow.Sprint("No credential in the OS store"))
		authPrintln(`  Run "relint auth login" to re-authenticate.`)
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), statusCheckTimeout)
	defer cancel()
	if api.NewClient(active.ServerURL).ValidateToken(ctx, token) {
		authPrint("  Status:     %s\n", text.FgGreen.Sprint("Authenticated"))
	} else {
		authPrint("  Status:     %s\n", text.FgYellow.Sprint("Token not validated by the server"))
		authPrintln("  The server may be unreachable, or the session was revoked.")
	}
	return nil
}
