// Package auth resolves the credentials every server-facing command runs
// with. Credentials can come from four places; Resolve applies them in a
// strict priority order so the outcome is predictable and testable:
//
//  1. The RELINT_TOKEN + RELINT_SERVER_URL environment pair, only when both
//     are set. Neither the credential store nor the connection registry is
//     touched in this branch.
//  2. Caller-supplied flag values.
//  3. The active connection from the registry.
//  4. The OS credential store, keyed by the resolved server and org.
//
// A partially set environment pair is a warning, never an error: the
// remaining sources are still consulted.
package auth

import (
	"fmt"
	"log/slog"

	"relint/internal/cli"
	"relint/internal/config"
	"relint/internal/state"
)

// CredentialSource is the slice of the credential store the resolver needs.
type CredentialSource interface {
	Get(server, org string) (string, error)
}

// ConnectionSource yields the active connection from the registry.
type ConnectionSource interface {
	ActiveConnection() (*state.Connection, error)
}

// Options carries the caller-supplied overrides, typically CLI flags.
type Options struct {
	Token  string
	Server string
	Org    string
}

// Resolved is the credential triple a command runs with. It is valid for a
// single invocation and never persisted.
type Resolved struct {
	Token     string
	ServerURL string
	Org       string
}

// Resolver applies the credential priority chain.
type Resolver struct {
	env      config.Env
	store    CredentialSource
	registry ConnectionSource
}

// NewResolver creates a resolver over the given sources.
func NewResolver(cfg *config.Config, store CredentialSource, registry ConnectionSource) *Resolver {
	return &Resolver{
		env:      cfg.Env,
		store:    store,
		registry: registry,
	}
}

// Resolve produces the credential triple for one command invocation, or an
// *cli.AuthRequiredError when no source can supply a server or token.
func (r *Resolver) Resolve(opts Options) (*Resolved, error) {
	if r.env.Token != "" && r.env.ServerURL != "" {
		return &Resolved{
			Token:     r.env.Token,
			ServerURL: r.env.ServerURL,
			Org:       opts.Org,
		}, nil
	}
	if r.env.Token != "" || r.env.ServerURL != "" {
		missing := "RELINT_SERVER_URL"
		if r.env.Token == "" {
			missing = "RELINT_TOKEN"
		}
		slog.Warn("ignoring partial environment configuration, set both variables to use them",
			"missing", missing,
		)
	}

	// The registry is only consulted for values the caller did not supply.
	var active *state.Connection
	if opts.Server == "" || opts.Org == "" {
		conn, err := r.registry.ActiveConnection()
		if err != nil {
			// Best-effort source: treat a failed read as "no connection".
			slog.Warn("could not read connection registry", "error", err)
		} else {
			active = conn
		}
	}

	server := opts.Server
	if server == "" && active != nil {
		server = active.ServerURL
	}
	if server == "" {
		return nil, cli.NewAuthRequiredError("no server known")
	}

	org := opts.Org
	if org == "" && active != nil {
		org = active.Org
	}

	if opts.Token != "" {
		return &Resolved{Token: opts.Token, ServerURL: server, Org: org}, nil
	}

	token, err := r.store.Get(server, org)
	if err != nil {
		// Best-effort lookup: a store failure falls through to "absent".
		slog.Warn("credential store lookup failed", "error", err)
		token = ""
	}
	if token == "" {
		return nil, cli.NewAuthRequiredError(fmt.Sprintf("no credential found for %s", server))
	}

	return &Resolved{Token: token, ServerURL: server, Org: org}, nil
}
