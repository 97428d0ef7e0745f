package auth

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relint/internal/cli"
	"relint/internal/config"
	"relint/internal/state"
)

// fakeStore records whether the credential store was consulted.
type fakeStore struct {
	token  string
	err    error
	called bool
}

func (f *fakeStore) Get(server, org string) (string, error) {
	f.called = true
	return f.token, f.err
}

// fakeRegistry serves a fixed active connection.
type fakeRegistry struct {
	conn   *state.Connection
	err    error
	called bool
}

func (f *fakeRegistry) ActiveConnection() (*state.Connection, error) {
	f.called = true
	return f.conn, f.err
}

func cfgWithEnv(token, server string) *config.Config {
	return &config.Config{Env: config.Env{Token: token, ServerURL: server}}
}

// captureLogs routes slog output to a buffer for the duration of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })
	return &buf
}

func TestResolve_EnvPairSkipsAllStores(t *testing.T) {
	store := &fakeStore{}
	registry := &fakeRegistry{}
	resolver := NewResolver(cfgWithEnv("env-tok", "https://env.example.com"), store, registry)

	resolved, err := resolver.Resolve(Options{})
	require.NoError(t, err)

	assert.Equal(t, "env-tok", resolved.Token)
	assert.Equal(t, "https://env.example.com", resolved.ServerURL)
	assert.False(t, store.called, "credential store must not be consulted")
	assert.False(t, registry.called, "connection registry must not be consulted")
}

func TestResolve_EnvPairKeepsCallerOrg(t *testing.T) {
	resolver := NewResolver(cfgWithEnv("env-tok", "https://env.example.com"), &fakeStore{}, &fakeRegistry{})

	resolved, err := resolver.Resolve(Options{Org: "acme"})
	require.NoError(t, err)
	assert.Equal(t, "acme", resolved.Org)
}

func TestResolve_EnvPairFromRealEnvironment(t *testing.T) {
	t.Setenv("RELINT_TOKEN", "t")
	t.Setenv("RELINT_SERVER_URL", "s")

	cfg, err := config.LoadFromPath(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	store := &fakeStore{}
	resolver := NewResolver(cfg, store, &fakeRegistry{})

	resolved, err := resolver.Resolve(Options{})
	require.NoError(t, err)
	assert.Equal(t, "t", resolved.Token)
	assert.Equal(t, "s", resolved.ServerURL)
	assert.False(t, store.called)
}

func TestResolve_PartialEnvWarnsAndUsesCallerValues(t *testing.T) {
	for name, cfg := range map[string]*config.Config{
		"only token set":  cfgWithEnv("env-tok", ""),
		"only server set": cfgWithEnv("", "https://env.example.com"),
	} {
		t.Run(name, func(t *testing.T) {
			logs := captureLogs(t)
			store := &fakeStore{}
			resolver := NewResolver(cfg, store, &fakeRegistry{})

			resolved, err := resolver.Resolve(Options{
				Token:  "flag-tok",
				Server: "https://flag.example.com",
				Org:    "acme",
			})
			require.NoError(t, err)

			// The partially set env vars are never used.
			assert.Equal(t, "flag-tok", resolved.Token)
			assert.Equal(t, "https://flag.example.com", resolved.ServerURL)
			assert.Equal(t, "acme", resolved.Org)
			assert.False(t, store.called)

			assert.Contains(t, logs.String(), "partial environment configuration")
			assert.Contains(t, logs.String(), "RELINT_")
		})
	}
}

func TestResolve_ActiveConnectionSuppliesServerAndOrg(t *testing.T) {
	registry := &fakeRegistry{conn: &state.Connection{
		ServerURL: "https://active.example.com",
		Org:       "acme",
	}}
	store := &fakeStore{token: "stored-tok"}
	resolver := NewResolver(&config.Config{}, store, registry)

	resolved, err := resolver.Resolve(Options{})
	require.NoError(t, err)

	assert.Equal(t, "stored-tok", resolved.Token)
	assert.Equal(t, "https://active.example.com", resolved.ServerURL)
	assert.Equal(t, "acme", resolved.Org)
}

func TestResolve_CallerTokenSkipsCredentialStore(t *testing.T) {
	store := &fakeStore{}
	resolver := NewResolver(&config.Config{}, store, &fakeRegistry{})

	resolved, err := resolver.Resolve(Options{Token: "flag-tok", Server: "https://x.example.com"})
	require.NoError(t, err)

	assert.Equal(t, "flag-tok", resolved.Token)
	assert.False(t, store.called)
}

func TestResolve_NoServerKnown(t *testing.T) {
	resolver := NewResolver(&config.Config{}, &fakeStore{}, &fakeRegistry{})

	_, err := resolver.Resolve(Options{})
	require.Error(t, err)

	var authErr *cli.AuthRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "no server known", authErr.Reason)
	assert.Contains(t, err.Error(), "relint auth login")
}

func TestResolve_ServerKnownButNoCredential(t *testing.T) {
	registry := &fakeRegistry{conn: &state.Connection{ServerURL: "https://x.example.com"}}
	resolver := NewResolver(&config.Config{}, &fakeStore{}, registry)

	_, err := resolver.Resolve(Options{})
	require.Error(t, err)

	var authErr *cli.AuthRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Reason, "no credential found")
	assert.Contains(t, authErr.Reason, "x.example.com")
}

func TestResolve_StoreFailureTreatedAsAbsent(t *testing.T) {
	logs := captureLogs(t)
	registry := &fakeRegistry{conn: &state.Connection{ServerURL: "https://x.example.com"}}
	store := &fakeStore{err: errors.New("keyring unavailable")}
	resolver := NewResolver(&config.Config{}, store, registry)

	_, err := resolver.Resolve(Options{})

	var authErr *cli.AuthRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, logs.String(), "credential store lookup failed")
}

func TestResolve_RegistryFailureTreatedAsNoConnection(t *testing.T) {
	captureLogs(t)
	registry := &fakeRegistry{err: errors.New("corrupt state file")}
	resolver := NewResolver(&config.Config{}, &fakeStore{}, registry)

	_, err := resolver.Resolve(Options{})

	var authErr *cli.AuthRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "no server known", authErr.Reason)
}
