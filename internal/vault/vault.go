// Package vault encrypts vendor API keys at rest, keyed by "Platform/Model".
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/platinummonkey/pastemark/internal/apperrors"
	"github.com/platinummonkey/pastemark/internal/logger"
	"github.com/platinummonkey/pastemark/internal/state"
)

const (
	// Iterations is the PBKDF2 work factor
	Iterations = 100000

	// KeySize is the AES-256 key length in bytes
	KeySize = 32

	// IVSize is the AES-GCM nonce length in bytes
	IVSize = 12

	saltBytes = 32
)

// DeriveKey derives the AES key for one record. The installation salt is the password
// material and the setting key is the per-record salt.
func DeriveKey(password, settingKey string) []byte {
	return pbkdf2.Key([]byte(password), []byte(settingKey), Iterations, KeySize, sha256.New)
}

// Encrypt seals plaintext and returns base64(IV || ciphertext)
func Encrypt(plaintext, settingKey, password string) (string, error) {
	gcm, err := newGCM(DeriveKey(password, settingKey))
	if err != nil {
		return "", err
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", apperrors.NewCryptoError("failed to create IV", err)
	}

	sealed := gcm.Seal(iv, iv, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Any tampering, wrong key or malformed input is a crypto error.
func Decrypt(blob, settingKey, password string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", apperrors.NewCryptoError("failed to decode ciphertext", err)
	}
	if len(raw) < IVSize {
		return "", apperrors.NewCryptoError("ciphertext too short", nil)
	}

	gcm, err := newGCM(DeriveKey(password, settingKey))
	if err != nil {
		return "", err
	}

	iv, ciphertext := raw[:IVSize], raw[IVSize:]
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", apperrors.NewCryptoError("failed to decrypt", err)
	}

	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.NewCryptoError("failed to create cipher", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, apperrors.NewCryptoError("failed to create GCM", err)
	}
	return gcm, nil
}

// GenerateSalt returns a new random installation salt
func GenerateSalt() (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Vault stores encrypted API keys in the state file. Plaintext keys are never persisted or logged.
type Vault struct {
	store  *state.Manager
	logger *logger.Logger
}

// Open wraps store, generating and persisting the installation salt on first use
func Open(store *state.Manager, log *logger.Logger) (*Vault, error) {
	if log == nil {
		log = logger.Get()
	}

	created, err := store.EnsureSalt(GenerateSalt)
	if err != nil {
		return nil, apperrors.NewCryptoError("failed to initialize salt", err)
	}
	if created {
		if err := store.Save(); err != nil {
			return nil, fmt.Errorf("failed to persist salt: %w", err)
		}
		log.Info("Generated installation salt")
	}

	return &Vault{store: store, logger: log}, nil
}

// Set encrypts apiKey under settingKey and persists it. A blank apiKey removes the entry.
func (v *Vault) Set(settingKey, apiKey string) error {
	if strings.TrimSpace(settingKey) == "" {
		return apperrors.NewConfigurationError("setting key is required", nil)
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return v.Delete(settingKey)
	}

	blob, err := Encrypt(apiKey, settingKey, v.store.Salt())
	if err != nil {
		return err
	}

	v.store.SetKey(settingKey, blob)
	if err := v.store.Save(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	v.logger.WithSettingKey(settingKey).Debug("Stored API key")
	return nil
}

// Get returns the API key for settingKey. A missing or undecryptable entry reports ok == false.
func (v *Vault) Get(settingKey string) (string, bool) {
	blob, ok := v.store.GetKey(settingKey)
	if !ok || blob == "" {
		return "", false
	}

	apiKey, err := Decrypt(blob, settingKey, v.store.Salt())
	if err != nil {
		v.logger.WithSettingKey(settingKey).WithError(err).Warn("Stored API key could not be decrypted")
		return "", false
	}

	return apiKey, true
}

// Delete removes the entry for settingKey and persists the change
func (v *Vault) Delete(settingKey string) error {
	if _, ok := v.store.GetKey(settingKey); !ok {
		return nil
	}

	v.store.RemoveKey(settingKey)
	if err := v.store.Save(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	v.logger.WithSettingKey(settingKey).Debug("Removed API key")
	return nil
}

// Keys returns the setting keys that have a stored entry
func (v *Vault) Keys() []string {
	return v.store.Keys()
}
