package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"relint/internal/credentials"
	"relint/internal/state"
)

// Logout-specific flags
var (
	logoutAll bool
	logoutYes bool
)

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove stored credentials",
	Long: `Sign out of the active server.

The stored token is removed from the OS credential store and the connection
is removed from the registry.

Examples:
  relint auth logout                   # Sign out of the active server
  relint auth logout --all             # Remove every stored credential
  relint auth logout --all --yes       # Same, without the confirmation prompt`,
	RunE: runAuthLogout,
}

func init() {
	authLogoutCmd.Flags().BoolVar(&logoutAll, "all", false, "Remove every credential stored by relint")
	authLogoutCmd.Flags().BoolVarP(&logoutYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	if logoutAll {
		return logoutEverything()
	}

	storage, err := state.NewStorage()
	if err != nil {
		return err
	}
	active, err := storage.ActiveConnection()
	if err != nil {
		return err
	}
	if active == nil {
		authPrintln("Not signed in to any server.")
		return nil
	}

	store := credentials.NewStore()
	if err := store.Delete(active.ServerURL, active.Org); err != nil {
		return err
	}
	if _, err := storage.Update(func(st *state.CLIState) error {
		st.RemoveConnection(active.ServerURL, active.Org)
		return nil
	}); err != nil {
		return err
	}

	authPrint("Signed out of %s\n", active.ServerURL)
	return nil
}

// logoutEverything purges every keyring entry under the relint service and
// resets the auth state, keeping unrelated tool metadata intact.
func logoutEverything() error {
	if !logoutYes && !confirm("Remove every credential stored by relint?") {
		authPrintln("Aborted.")
		return nil
	}

	if err := credentials.NewStore().PurgeAll(); err != nil {
		return err
	}

	storage, err := state.NewStorage()
	if err != nil {
		return err
	}
	if _, err := storage.Update(func(st *state.CLIState) error {
		st.Auth = state.AuthState{}
		return nil
	}); err != nil {
		return err
	}

	authPrintln("Removed all stored credentials.")
	return nil
}

// confirm asks a yes/no question on stdin.
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
