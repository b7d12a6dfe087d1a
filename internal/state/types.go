package state

import (
	"sort"
	"time"
)

// StateFileVersion is the current state file format version
const StateFileVersion = 1

// PluginState is the persisted per-installation data: the salt that seeds key derivation
// and the encrypted API keys keyed by "Platform/Model".
type PluginState struct {
	// Version is the state file format version for future compatibility
	Version int `json:"version"`

	// Salt is the installation secret; generated once and never rotated
	Salt string `json:"salt"`

	// APIKeys maps a setting key to base64(IV || ciphertext)
	APIKeys map[string]string `json:"api_keys"`

	// UpdatedAt is when the state was last modified
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPluginState creates an empty state with no salt
func NewPluginState() *PluginState {
	return &PluginState{
		Version: StateFileVersion,
		APIKeys: make(map[string]string),
	}
}

// GetKey returns the stored ciphertext for settingKey
func (s *PluginState) GetKey(settingKey string) (string, bool) {
	ciphertext, ok := s.APIKeys[settingKey]
	return ciphertext, ok
}

// SetKey stores ciphertext for settingKey
func (s *PluginState) SetKey(settingKey, ciphertext string) {
	if s.APIKeys == nil {
		s.APIKeys = make(map[string]string)
	}
	s.APIKeys[settingKey] = ciphertext
	s.UpdatedAt = time.Now()
}

// RemoveKey deletes the entry for settingKey
func (s *PluginState) RemoveKey(settingKey string) {
	delete(s.APIKeys, settingKey)
	s.UpdatedAt = time.Now()
}

// Keys returns the setting keys with a stored entry, sorted
func (s *PluginState) Keys() []string {
	keys := make([]string, 0, len(s.APIKeys))
	for k := range s.APIKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
