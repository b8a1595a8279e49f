// Package settings stores user settings, currently the API key of the AI collection feature.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/drallgood/gutendex-nexus/internal/crypto"
	"github.com/drallgood/gutendex-nexus/internal/logger"
	"github.com/drallgood/gutendex-nexus/internal/storage"
)

// ErrEmptyAPIKey is returned when an empty key is saved
var ErrEmptyAPIKey = errors.New("api key is empty")

// Service reads and writes settings through the key-value store.
// The API key is encrypted at rest.
type Service struct {
	store  storage.Store
	enc    *crypto.EncryptionManager
	logger *logger.Logger
}

func NewService(store storage.Store, enc *crypto.EncryptionManager, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Get()
	}
	return &Service{
		store:  store,
		enc:    enc,
		logger: log.WithFields(map[string]interface{}{"component": "settings"}),
	}
}

// SetAPIKey encrypts and stores key
func (s *Service) SetAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyAPIKey
	}

	ciphertext, err := s.enc.Encrypt(key)
	if err != nil {
		return fmt.Errorf("failed to encrypt api key: %w", err)
	}
	if err := s.store.Set(ctx, storage.KeyAPIKey, []byte(ciphertext)); err != nil {
		return fmt.Errorf("failed to save api key: %w", err)
	}

	s.logger.Info("API key saved", map[string]interface{}{"key": Mask(key)})
	return nil
}

// APIKey returns the decrypted key, or "" when none is stored
func (s *Service) APIKey(ctx context.Context) (string, error) {
	data, ok, err := s.store.Get(ctx, storage.KeyAPIKey)
	if err != nil {
		return "", fmt.Errorf("failed to read api key: %w", err)
	}
	if !ok || len(data) == 0 {
		return "", nil
	}

	key, err := s.enc.Decrypt(string(data))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt api key: %w", err)
	}
	return key, nil
}

// HasAPIKey reports whether a key is stored
func (s *Service) HasAPIKey(ctx context.Context) (bool, error) {
	data, ok, err := s.store.Get(ctx, storage.KeyAPIKey)
	if err != nil {
		return false, fmt.Errorf("failed to read api key: %w", err)
	}
	return ok && len(data) > 0, nil
}

// ClearAPIKey removes the stored key
func (s *Service) ClearAPIKey(ctx context.Context) error {
	if err := s.store.Delete(ctx, storage.KeyAPIKey); err != nil {
		return fmt.Errorf("failed to clear api key: %w", err)
	}
	s.logger.Info("API key cleared")
	return nil
}

// Masked returns the stored key masked for display
func (s *Service) Masked(ctx context.Context) (string, error) {
	key, err := s.APIKey(ctx)
	if err != nil {
		return "", err
	}
	return Mask(key), nil
}

// Mask keeps a recognisable prefix and the last four characters: "sk-…abcd"
func Mask(key string) string {
	if key == "" {
		return ""
	}
	r := []rune(key)
	if len(r) <= 8 {
		return strings.Repeat("•", len(r))
	}
	prefix := ""
	if i := strings.IndexRune(key, '-'); i > 0 && i < 6 {
		prefix = key[:i+1]
	}
	return prefix + "…" + string(r[len(r)-4:])
}
