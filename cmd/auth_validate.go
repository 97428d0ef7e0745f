package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"relint/internal/api"
	"relint/internal/auth"
)

// Validate-specific flags
var (
	validateToken  string
	validateServer string
	validateOrg    string
)

// authValidateCmd represents the auth validate command
var authValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the resolved token against the server",
	Long: `Resolve credentials the same way every other command does -
environment pair, flags, then the stored session - and ask the server
whether the token is accepted.

Examples:
  relint auth validate                         # Validate the stored session
  relint auth validate --server <url> --token <tok>`,
	RunE: runAuthValidate,
}

func init() {
	authValidateCmd.Flags().StringVar(&validateToken, "token", "", "Token to validate instead of the stored one")
	authValidateCmd.Flags().StringVar(&validateServer, "server", "", "Server URL to validate against")
	authValidateCmd.Flags().StringVar(&validateOrg, "org", "", "Organization key")
}

func runAuthValidate(cmd *cobra.Command, args []string) error {
	resolver, err := newResolver()
	if err != nil {
		return err
	}

	resolved, err := resolver.Resolve(auth.Options{
		Token:  validateToken,
		Server: validateServer,
		Org:    validateOrg,
	})
	if err != nil {
		return err
	}

	if !api.NewClient(resolved.ServerURL).ValidateToken(cmd.Context(), resolved.Token) {
		authPrint("%s\n", text.FgRed.Sprintf("Token was not accepted by %s", resolved.ServerURL))
		return fmt.Errorf("token validation failed for %s", resolved.ServerURL)
	}

	authPrint("%s\n", text.FgGreen.Sprintf("Token accepted by %s", resolved.ServerURL))
	return nil
}
