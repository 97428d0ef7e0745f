// Package cli holds the error types and output helpers shared by the
// relint commands. The error types map to the semantic exit codes declared
// in cmd/root.go.
package cli

import "fmt"

// loginHint is appended to every configuration error so the user always
// sees a remediation path.
const loginHint = `Run "relint auth login", or set both RELINT_TOKEN and RELINT_SERVER_URL.`

// AuthRequiredError indicates that no usable credentials could be resolved
// for a command. It is a configuration error: the user must authenticate or
// set the environment pair; nothing is retried automatically.
type AuthRequiredError struct {
	// Reason distinguishes "no server known" from "server known but no
	// credential found".
	Reason string
}

// Error implements the error interface.
func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("authentication required: %s. %s", e.Reason, loginHint)
}

// NewAuthRequiredError creates an AuthRequiredError with the given reason.
func NewAuthRequiredError(reason string) *AuthRequiredError {
	return &AuthRequiredError{Reason: reason}
}

// AuthFlowError indicates that an interactive login flow was started but did
// not complete, for example because the browser handoff timed out.
type AuthFlowError struct {
	Reason error
}

// Error implements the error interface.
func (e *AuthFlowError) Error() string {
	return fmt.Sprintf("login failed: %v", e.Reason)
}

// Unwrap returns the underlying flow error.
func (e *AuthFlowError) Unwrap() error {
	return e.Reason
}
