// Package state persists the installation salt and encrypted credentials as a JSON file.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Manager handles state persistence and operations
type Manager struct {
	state    *PluginState
	filePath string
	mu       sync.RWMutex
}

// NewManager creates a new state manager
func NewManager(filePath string) *Manager {
	return &Manager{
		state:    NewPluginState(),
		filePath: filePath,
	}
}

// Load reads the state from the JSON file.
// A missing file yields a fresh empty state, not an error.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if os.IsNotExist(err) {
		m.state = NewPluginState()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var state PluginState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}

	if state.Version != StateFileVersion {
		return fmt.Errorf("unsupported state file version %d (expected %d)", state.Version, StateFileVersion)
	}

	if state.APIKeys == nil {
		state.APIKeys = make(map[string]string)
	}

	m.state = &state
	return nil
}

// Save writes the state to the JSON file atomically
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Write atomically: write to temp file, then rename
	tmpFile := m.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}

	if err := os.Rename(tmpFile, m.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp state file: %w", err)
	}

	return nil
}

// FilePath returns the backing file path
func (m *Manager) FilePath() string {
	return m.filePath
}

// Salt returns the installation salt, empty until EnsureSalt has run
func (m *Manager) Salt() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Salt
}

// EnsureSalt sets the salt via generate when it is blank and reports whether it changed.
// An existing salt is never replaced.
func (m *Manager) EnsureSalt(generate func() (string, error)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(m.state.Salt) != "" {
		return false, nil
	}

	salt, err := generate()
	if err != nil {
		return false, fmt.Errorf("failed to generate salt: %w", err)
	}

	m.state.Salt = salt
	m.state.UpdatedAt = time.Now()
	return true, nil
}

// GetKey returns the ciphertext stored for settingKey
func (m *Manager) GetKey(settingKey string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetKey(settingKey)
}

// SetKey stores the ciphertext for settingKey
func (m *Manager) SetKey(settingKey, ciphertext string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SetKey(settingKey, ciphertext)
}

// RemoveKey deletes the ciphertext for settingKey
func (m *Manager) RemoveKey(settingKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.RemoveKey(settingKey)
}

// Keys returns every setting key with a stored entry
func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Keys()
}

// Count returns the number of stored credentials
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.APIKeys)
}

// LoadOrCreate loads an existing state file or creates it if it doesn't exist
func LoadOrCreate(filePath string) (*Manager, error) {
	manager := NewManager(filePath)

	if err := manager.Load(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		if err := manager.Save(); err != nil {
			return nil, fmt.Errorf("failed to save initial state: %w", err)
		}
	}

	return manager, nil
}
