package state

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current version of the persisted CLI state file.
// It is written on every save and allows future releases to migrate or
// reject state files they do not understand.
const SchemaVersion = 1

// connectionNamespace is the UUIDv5 namespace for deterministic connection
// identifiers. Changing it would change every derived id, so it is fixed.
var connectionNamespace = uuid.MustParse("8f3c1d6a-2f6e-4b0a-9c5d-7e1a4b2c9d03")

// ConnectionType distinguishes hosted from self-managed servers.
type ConnectionType string

const (
	// ConnectionTypeCloud is a hosted server with a region and organization.
	ConnectionTypeCloud ConnectionType = "cloud"
	// ConnectionTypeOnPremise is a self-managed server instance.
	ConnectionTypeOnPremise ConnectionType = "on-premise"
)

// Connection is one remembered server binding.
type Connection struct {
	// ID is derived deterministically from (ServerURL, Org); the same inputs
	// always produce the same id.
	ID string `json:"id"`

	Type ConnectionType `json:"type"`

	ServerURL string `json:"serverUrl"`

	// Region is only set for cloud connections.
	Region string `json:"region,omitempty"`

	// Org is the organization key. Optional for on-premise servers.
	Org string `json:"orgKey,omitempty"`

	// AuthenticatedAt is when this connection was created or last updated.
	AuthenticatedAt time.Time `json:"authenticatedAt"`

	// KeystoreKey is the account key under which the bearer token is stored
	// in the OS credential store.
	KeystoreKey string `json:"keystoreKey"`
}

// AuthState holds the connection registry. The registry keeps at most one
// connection: writing a connection for a different server replaces the stored
// one outright, and the newly written connection always becomes active.
type AuthState struct {
	IsAuthenticated    bool         `json:"isAuthenticated"`
	Connections        []Connection `json:"connections"`
	ActiveConnectionID string       `json:"activeConnectionId,omitempty"`
}

// ToolMetadata records auxiliary per-tool information (for example the
// version of an installed scanner binary). It lives in the state file next
// to the auth state but is otherwise unrelated to it.
type ToolMetadata struct {
	Version     string    `json:"version,omitempty"`
	InstalledAt time.Time `json:"installedAt,omitempty"`
}

// CLIState is the persisted root of the state file.
type CLIState struct {
	Version int                     `json:"version"`
	Auth    AuthState               `json:"auth"`
	Tools   map[string]ToolMetadata `json:"tools,omitempty"`
}

// ConnectionOptions carries the optional attributes of a connection write.
type ConnectionOptions struct {
	Org         string
	Region      string
	KeystoreKey string
}

// ConnectionID derives the deterministic identifier for a server binding.
// It is a UUIDv5 over the normalized server URL and organization key, so
// equal inputs always map to the same id and distinct inputs collide only
// with negligible probability.
func ConnectionID(serverURL, org string) string {
	name := NormalizeServerURL(serverURL) + "\x00" + org
	return uuid.NewSHA1(connectionNamespace, []byte(name)).String()
}

// NormalizeServerURL strips the trailing slash so equivalent spellings of a
// server URL map to the same connection identity.
func NormalizeServerURL(serverURL string) string {
	return strings.TrimRight(serverURL, "/")
}

// AddOrUpdateConnection writes a connection for serverURL, enforcing the
// single-active-connection invariant: a connection for a different server
// identity replaces the stored one, while the same (server, org) pair is
// updated in place under the same id. The written connection becomes active.
func (s *CLIState) AddOrUpdateConnection(serverURL string, typ ConnectionType, opts ConnectionOptions) Connection {
	conn := Connection{
		ID:              ConnectionID(serverURL, opts.Org),
		Type:            typ,
		ServerURL:       NormalizeServerURL(serverURL),
		Region:          opts.Region,
		Org:             opts.Org,
		AuthenticatedAt: time.Now().UTC(),
		KeystoreKey:     opts.KeystoreKey,
	}

	updated := false
	for i := range s.Auth.Connections {
		if s.Auth.Connections[i].ID == conn.ID {
			s.Auth.Connections[i] = conn
			updated = true
			break
		}
	}
	if !updated {
		// Replace, not append: the registry remembers one server at a time.
		s.Auth.Connections = []Connection{conn}
	}

	s.Auth.ActiveConnectionID = conn.ID
	s.Auth.IsAuthenticated = true
	return conn
}

// ActiveConnection returns the currently active connection, or nil if the
// registry is empty or the active pointer is stale.
func (s *CLIState) ActiveConnection() *Connection {
	if s.Auth.ActiveConnectionID == "" {
		return nil
	}
	for i := range s.Auth.Connections {
		if s.Auth.Connections[i].ID == s.Auth.ActiveConnectionID {
			return &s.Auth.Connections[i]
		}
	}
	return nil
}

// FindConnection returns the connection matching (serverURL, org), or nil.
func (s *CLIState) FindConnection(serverURL, org string) *Connection {
	id := ConnectionID(serverURL, org)
	for i := range s.Auth.Connections {
		if s.Auth.Connections[i].ID == id {
			return &s.Auth.Connections[i]
		}
	}
	return nil
}

// RemoveConnection removes the connection matching (serverURL, org) and
// reports whether one was removed. If the removed connection was active, the
// active pointer falls back to a remaining connection if any, otherwise it is
// cleared. IsAuthenticated is recomputed from list emptiness.
func (s *CLIState) RemoveConnection(serverURL, org string) bool {
	id := ConnectionID(serverURL, org)

	remaining := s.Auth.Connections[:0]
	removed := false
	for _, conn := range s.Auth.Connections {
		if conn.ID == id {
			removed = true
			continue
		}
		remaining = append(remaining, conn)
	}
	if !removed {
		return false
	}
	s.Auth.Connections = remaining

	if s.Auth.ActiveConnectionID == id {
		s.Auth.ActiveConnectionID = ""
		if len(remaining) > 0 {
			s.Auth.ActiveConnectionID = remaining[0].ID
		}
	}
	s.Auth.IsAuthenticated = len(remaining) > 0
	return true
}
