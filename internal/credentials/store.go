package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/sync/singleflight"
)

// ServiceName is the fixed service under which all secrets are stored in the
// OS credential store.
const ServiceName = "relint"

// indexAccount is a reserved account holding the list of known account keys.
// The OS credential store offers no enumeration, so the store maintains its
// own index to support ListAll and PurgeAll.
const indexAccount = "__accounts__"

// Entry pairs an account key with its stored token.
type Entry struct {
	Account string
	Token   string
}

// Store wraps the OS-native credential store with a process-local read
// cache. The cache is cleared on every mutation so a Get within the same
// process never returns stale data.
type Store struct {
	mu      sync.Mutex
	cache   map[string]string
	group   singleflight.Group
	service string
}

// NewStore creates a credential store under the default service name.
func NewStore() *Store {
	return &Store{
		cache:   make(map[string]string),
		service: ServiceName,
	}
}

// AccountKey derives the credential account key for a server. The key is the
// URL hostname, falling back to the raw string when server does not parse,
// suffixed with ":org" when an organization is set.
func AccountKey(server, org string) string {
	host := server
	if u, err := url.Parse(server); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	if org != "" {
		return host + ":" + org
	}
	return host
}

// Get returns the token stored for (server, org), or the empty string when
// no entry exists. Errors are only returned for credential-store failures,
// never for absence.
func (s *Store) Get(server, org string) (string, error) {
	account := AccountKey(server, org)

	s.mu.Lock()
	if token, ok := s.cache[account]; ok {
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	// Deduplicate concurrent reads of the same account; the OS keyring
	// round trip can be slow enough to overlap.
	v, err, _ := s.group.Do(account, func() (interface{}, error) {
		token, err := keyring.Get(s.service, account)
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("credential store read failed for %s: %w", account, err)
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}

	token := v.(string)
	if token != "" {
		s.mu.Lock()
		s.cache[account] = token
		s.mu.Unlock()
	}
	return token, nil
}

// Set stores a token for (server, org), overwriting any previous entry, and
// invalidates the read cache.
func (s *Store) Set(server, org, token string) error {
	account := AccountKey(server, org)
	if err := keyring.Set(s.service, account, token); err != nil {
		return fmt.Errorf("credential store write failed for %s: %w", account, err)
	}
	if err := s.indexAdd(account); err != nil {
		slog.Warn("failed to update credential index", "account", account, "error", err)
	}
	s.ClearCache()
	return nil
}

// Delete removes the entry for (server, org) and invalidates the read cache.
// Deleting a missing entry is not an error.
func (s *Store) Delete(server, org string) error {
	account := AccountKey(server, org)
	err := keyring.Delete(s.service, account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("credential store delete failed for %s: %w", account, err)
	}
	if err := s.indexRemove(account); err != nil {
		slog.Warn("failed to update credential index", "account", account, "error", err)
	}
	s.ClearCache()
	return nil
}

// ListAll returns every stored entry under the service. Accounts listed in
// the index but missing from the store are skipped.
func (s *Store) ListAll() ([]Entry, error) {
	accounts, err := s.indexRead()
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, account := range accounts {
		token, err := keyring.Get(s.service, account)
		if errors.Is(err, keyring.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("credential store read failed for %s: %w", account, err)
		}
		entries = append(entries, Entry{Account: account, Token: token})
	}
	return entries, nil
}

// PurgeAll removes every stored entry under the service, including the
// index, and invalidates the read cache.
func (s *Store) PurgeAll() error {
	accounts, err := s.indexRead()
	if err != nil {
		return err
	}

	var lastErr error
	for _, account := range accounts {
		if err := keyring.Delete(s.service, account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			lastErr = fmt.Errorf("credential store delete failed for %s: %w", account, err)
		}
	}
	if err := keyring.Delete(s.service, indexAccount); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		lastErr = err
	}
	s.ClearCache()
	return lastErr
}

// ClearCache drops every cached read. Mutating operations call it
// internally; tests call it to force keyring round trips.
func (s *Store) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

func (s *Store) indexRead() ([]string, error) {
	raw, err := keyring.Get(s.service, indexAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credential index read failed: %w", err)
	}

	var accounts []string
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		return nil, fmt.Errorf("credential index is corrupt: %w", err)
	}
	return accounts, nil
}

func (s *Store) indexWrite(accounts []string) error {
	data, err := json.Marshal(accounts)
	if err != nil {
		return err
	}
	return keyring.Set(s.service, indexAccount, string(data))
}

func (s *Store) indexAdd(account string) error {
	accounts, err := s.indexRead()
	if err != nil {
		return err
	}
	for _, existing := range accounts {
		if existing == account {
			return nil
		}
	}
	return s.indexWrite(append(accounts, account))
}

func (s *Store) indexRemove(account string) error {
	accounts, err := s.indexRead()
	if err != nil {
		return err
	}
	remaining := accounts[:0]
	for _, existing := range accounts {
		if existing != account {
			remaining = append(remaining, existing)
		}
	}
	return s.indexWrite(remaining)
}
