package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// Vault encrypts provider credential objects at rest.
//
// Blob format: iv_hex:authTag_hex:ciphertext_hex (AES-256-GCM, 16-byte IV).
// Blobs are not portable across processes with different encryption secrets.
//
// Rules:
// - Decrypted configs must never be logged or cached beyond the calling operation.
// - At-rest blobs are never mutated in place; every write produces a new blob
//   with a fresh IV.

const (
	keySize = 32
	ivSize  = 16

	// keySalt is fixed so the same secret always derives the same key.
	keySalt = "channel-gateway-provider-vault"

	// insecureDefaultSecret keeps local development working without setup.
	// config.Validate rejects production deployments that rely on it.
	insecureDefaultSecret = "channel-gateway-insecure-default-key"
)

var (
	ErrMalformedBlob        = errors.New("vault: malformed encrypted blob")
	ErrAuthenticationFailed = errors.New("vault: authentication failed")
	ErrInvalidJSON          = errors.New("vault: decrypted payload is not valid JSON")
)

type Vault struct {
	key []byte
}

// New derives the AES key from the process-level encryption secret.
// An empty secret falls back to an insecure default suitable only for local use.
func New(secret string) (*Vault, error) {
	if secret == "" {
		secret = insecureDefaultSecret
	}
	key, err := scrypt.Key([]byte(secret), []byte(keySalt), 1<<15, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("vault: key derivation failed: %w", err)
	}
	return &Vault{key: key}, nil
}

// Encrypt serializes config to JSON and seals it with a fresh random IV.
func (v *Vault) Encrypt(config map[string]any) (string, error) {
	plaintext, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("vault: marshal config: %w", err)
	}

	gcm, err := v.aead()
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("vault: iv generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	// Seal appends the auth tag to the ciphertext; split them for the blob format.
	tagAt := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagAt], sealed[tagAt:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt verifies the auth tag and returns the JSON-parsed config.
func (v *Vault) Decrypt(blob string) (map[string]any, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return nil, ErrMalformedBlob
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return nil, ErrMalformedBlob
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, ErrMalformedBlob
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, ErrMalformedBlob
	}

	gcm, err := v.aead()
	if err != nil {
		return nil, err
	}
	if len(tag) != gcm.Overhead() {
		return nil, ErrMalformedBlob
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	var config map[string]any
	if err := json.Unmarshal(plaintext, &config); err != nil {
		return nil, ErrInvalidJSON
	}
	return config, nil
}

// UpdateEncryptedConfig decrypts existing, shallow-merges updates over it
// (keys in updates win) and re-encrypts with a fresh IV.
// Callers must filter out keys they do not intend to overwrite.
func (v *Vault) UpdateEncryptedConfig(existing string, updates map[string]any) (string, error) {
	config, err := v.Decrypt(existing)
	if err != nil {
		return "", err
	}
	for k, val := range updates {
		config[k] = val
	}
	return v.Encrypt(config)
}

// MaskConfig returns a display-safe copy of config. String values are masked by
// length class; everything else passes through unchanged. Not reversible.
func MaskConfig(config map[string]any) map[string]any {
	masked := make(map[string]any, len(config))
	for k, val := range config {
		if s, ok := val.(string); ok {
			masked[k] = maskValue(s)
			continue
		}
		masked[k] = val
	}
	return masked
}

func maskValue(s string) string {
	switch {
	case len(s) > 8:
		return s[:4] + "****" + s[len(s)-4:]
	case len(s) >= 5:
		return s[:2] + "****"
	default:
		return "****"
	}
}

func (v *Vault) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("vault: cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("vault: gcm init failed: %w", err)
	}
	return gcm, nil
}
