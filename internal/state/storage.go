package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// stateFileName is the name of the persisted CLI state file.
	stateFileName = "state.json"
	// userConfigDir is the subdirectory under home for relint configuration.
	userConfigDir = ".config/relint"
)

// Storage provides thread-safe access to the persisted CLI state file.
type Storage struct {
	mu         sync.RWMutex
	configPath string
}

// NewStorage creates a Storage using the default config path,
// ~/.config/relint/state.json.
func NewStorage() (*Storage, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to determine home directory: %w", err)
	}
	return &Storage{configPath: filepath.Join(homeDir, userConfigDir)}, nil
}

// NewStorageWithPath creates a Storage rooted at a custom directory.
// This is useful for tests or non-default configuration locations.
func NewStorageWithPath(configPath string) *Storage {
	return &Storage{configPath: configPath}
}

func (s *Storage) stateFilePath() string {
	return filepath.Join(s.configPath, stateFileName)
}

// Load reads and parses the state file. A missing file yields a fresh state
// at the current schema version. A state written by a newer release loads
// leniently; unknown fields are ignored by the JSON decoder.
func (s *Storage) Load() (*CLIState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadLocked()
}

func (s *Storage) loadLocked() (*CLIState, error) {
	data, err := os.ReadFile(s.stateFilePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &CLIState{Version: SchemaVersion}, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var st CLIState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if st.Version == 0 {
		st.Version = SchemaVersion
	}
	return &st, nil
}

// Save writes the state file, creating the configuration directory if needed.
// The file is owner-readable only since it references credential accounts.
func (s *Storage) Save(st *CLIState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(st)
}

func (s *Storage) saveLocked(st *CLIState) error {
	if err := os.MkdirAll(s.configPath, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(s.stateFilePath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// Update loads the state, applies fn, and saves the result atomically with
// respect to other Storage calls in this process.
func (s *Storage) Update(fn func(*CLIState) error) (*CLIState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	if err := fn(st); err != nil {
		return nil, err
	}
	if err := s.saveLocked(st); err != nil {
		return nil, err
	}
	return st, nil
}

// ActiveConnection loads the state and returns the active connection, or nil
// if none is configured.
func (s *Storage) ActiveConnection() (*Connection, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}
	return st.ActiveConnection(), nil
}
