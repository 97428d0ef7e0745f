package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"relint/internal/api"
	"relint/internal/authflow"
	"relint/internal/cli"
	"relint/internal/config"
	"relint/internal/credentials"
	"relint/internal/state"
)

// Login-specific flags
var (
	loginServer  string
	loginOrg     string
	loginRegion  string
	loginTimeout time.Duration
)

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to a code-quality server",
	Long: `Sign in to a code-quality server through your browser.

This command starts a temporary local callback listener, opens the server's
login page in your default browser, and waits for the page to hand the token
back. The token is stored in the OS credential store and the server becomes
the active connection for later commands.

Examples:
  relint auth login --server https://quality.example.com
  relint auth login --server https://app.example.io --org my-org
  relint auth login --server https://app.example.io --org my-org --region eu`,
	RunE: runAuthLogin,
}

func init() {
	authLoginCmd.Flags().StringVar(&loginServer, "server", "", "Server URL to sign in to (required)")
	authLoginCmd.Flags().StringVar(&loginOrg, "org", "", "Organization key (cloud servers)")
	authLoginCmd.Flags().StringVar(&loginRegion, "region", "", "Server region (cloud servers)")
	authLoginCmd.Flags().DurationVar(&loginTimeout, "timeout", 0, "How long to wait for the browser sign-in (default from config)")
	_ = authLoginCmd.MarkFlagRequired("server")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	server := strings.TrimSpace(loginServer)
	if server == "" {
		return fmt.Errorf("--server must not be empty")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	timeout := loginTimeout
	if timeout == 0 {
		timeout = cfg.LoginTimeout
	}

	flow := authflow.New(server,
		authflow.WithTimeout(timeout),
		authflow.WithPortRange(cfg.PortRangeStart, cfg.PortRangeEnd),
	)

	authPrint("Signing in to %s\n", server)
	authPrintln("A browser window should open. If it does not, the sign-in URL is logged to stderr.")

	var s *spinner.Spinner
	if !authQuiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Waiting for browser sign-in..."
		s.Start()
	}

	token, err := flow.Run(ctx)

	if s != nil {
		s.Stop()
	}
	if err != nil {
		return &cli.AuthFlowError{Reason: err}
	}

	store := credentials.NewStore()
	account := credentials.AccountKey(server, loginOrg)
	if err := store.Set(server, loginOrg, token); err != nil {
		return err
	}

	storage, err := state.NewStorage()
	if err != nil {
		return err
	}
	connType := state.ConnectionTypeOnPremise
	if loginOrg != "" {
		connType = state.ConnectionTypeCloud
	}
	if _, err := storage.Update(func(st *state.CLIState) error {
		st.AddOrUpdateConnection(server, connType, state.ConnectionOptions{
			Org:         loginOrg,
			Region:      loginRegion,
			KeystoreKey: account,
		})
		return nil
	}); err != nil {
		return err
	}

	authPrint("  %s\n", text.FgGreen.Sprintf("Signed in to %s", server))

	// Best-effort sanity check; a failed validation does not undo the login.
	if !api.NewClient(server).ValidateToken(ctx, token) {
		authPrint("  %s\n", text.FgYellow.Sprint("Warning: the server did not validate the token. Run 'relint auth validate' to retry."))
	}
	return nil
}
