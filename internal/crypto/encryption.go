package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/drallgood/gutendex-nexus/internal/logger"
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrInvalidKeySize    = errors.New("invalid key size")
)

// KeySize is the AES-256 key length in bytes
const KeySize = 32

// EncryptionManager handles encryption and decryption of secrets kept in local storage
type EncryptionManager struct {
	key    []byte
	logger *logger.Logger
}

// NewEncryptionManager resolves the key and returns a manager.
// encodedKey (base64) wins when set; otherwise the key is read from keyFile,
// which is created with a random key on first use.
func NewEncryptionManager(encodedKey, keyFile string, log *logger.Logger) (*EncryptionManager, error) {
	key, err := resolveKey(encodedKey, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption key: %w", err)
	}
	return NewEncryptionManagerWithKey(key, log)
}

// NewEncryptionManagerWithKey creates an encryption manager with a specific key
func NewEncryptionManagerWithKey(key []byte, log *logger.Logger) (*EncryptionManager, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &EncryptionManager{
		key:    key,
		logger: log,
	}, nil
}

// DeriveKeyFromPassword derives an encryption key from a password using SHA-256.
// Meant for tests and throwaway sessions, not for real secrets.
func DeriveKeyFromPassword(password string) []byte {
	hash := sha256.Sum256([]byte(password))
	return hash[:]
}

func (em *EncryptionManager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(em.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt encrypts plaintext using AES-256-GCM and returns base64 text.
// Empty input encrypts to empty output.
func (em *EncryptionManager) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	gcm, err := em.gcm()
	if err != nil {
		em.logger.Error("Failed to initialise cipher", map[string]interface{}{"error": err.Error()})
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		em.logger.Error("Failed to generate nonce", map[string]interface{}{"error": err.Error()})
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt
func (em *EncryptionManager) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	gcm, err := em.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		em.logger.Warn("Ciphertext too short", map[string]interface{}{
			"data_length": len(data),
			"nonce_size":  nonceSize,
		})
		return "", ErrInvalidCiphertext
	}

	nonce, cipherData := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, cipherData, nil)
	if err != nil {
		em.logger.Error("Failed to decrypt", map[string]interface{}{"error": err.Error()})
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

func resolveKey(encodedKey, keyFile string) ([]byte, error) {
	if encodedKey != "" {
		return decodeKey(encodedKey, "configuration")
	}
	if keyFile == "" {
		return nil, errors.New("no encryption key configured and no key file path given")
	}

	if data, err := os.ReadFile(keyFile); err == nil {
		return decodeKey(strings.TrimSpace(string(data)), "file")
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read encryption key file: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(keyFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(keyFile, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("failed to save encryption key: %w", err)
	}
	return key, nil
}

func decodeKey(encoded, source string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key from %s: %w", source, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}
