// Package auth implements API key issuance and verification for the
// PureTrack ingest API. Keys authenticate the device gateway posting raw
// alert events; end users never hold one.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"puretrack/internal/db"
	"puretrack/internal/types"
)

// bcryptCost is the bcrypt cost factor used for API key secret hashing.
const bcryptCost = 12

// keyTag marks PureTrack API keys so that a leaked key is recognizable in
// log scrubbers and secret scanners.
const keyTag = "ptk"

// secretBytes is the entropy of the random secret portion of a key.
const secretBytes = 32

// prefixLen is the number of leading characters of the full key stored in
// plaintext for lookup. The remainder is verified against the bcrypt hash.
const prefixLen = len(keyTag) + 1 + 8

// APIKeyStore defines the data access methods needed by the Service.
type APIKeyStore interface {
	Create(ctx context.Context, key *db.APIKey) error
	FindByPrefix(ctx context.Context, prefix string) (*db.APIKey, error)
	TouchLastUsed(ctx context.Context, keyID string, now time.Time) error
}

// SecretHasher abstracts bcrypt operations for testability.
type SecretHasher interface {
	CompareHashAndSecret(hashedSecret, secret string) error
	GenerateFromSecret(secret string) (string, error)
}

// bcryptHasher is the production implementation of SecretHasher.
type bcryptHasher struct{}

func (b *bcryptHasher) CompareHashAndSecret(hashedSecret, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(secret))
}

func (b *bcryptHasher) GenerateFromSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// IssuedKey is returned once at creation time. PlaintextKey is never
// persisted or logged; callers must hand it to the operator immediately.
type IssuedKey struct {
	ID           string
	Name         string
	KeyPrefix    string
	PlaintextKey types.SecretString
	CreatedAt    time.Time
}

// Service issues and verifies ingest API keys. Verification follows the
// prefix-lookup pattern: the visible prefix narrows the candidate set to
// one row, then the full key is checked against the stored bcrypt hash.
type Service struct {
	store  APIKeyStore
	hasher SecretHasher
	clock  types.Clock
	logger *slog.Logger
}

// ServiceConfig holds the dependencies for creating a Service.
type ServiceConfig struct {
	Store  APIKeyStore
	Hasher SecretHasher
	Clock  types.Clock
	Logger *slog.Logger
}

// NewService creates a Service. If Hasher is nil, the production
// bcryptHasher is used. If Clock is nil, RealClock is used.
func NewService(cfg ServiceConfig) *Service {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = &bcryptHasher{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  cfg.Store,
		hasher: hasher,
		clock:  clock,
		logger: logger,
	}
}

// CreateKey generates a new API key, stores its bcrypt hash, and returns
// the plaintext exactly once.
//
// Key format: "ptk_" + 43 base64url chars of random secret. The first
// twelve characters form the stored lookup prefix.
func (s *Service) CreateKey(ctx context.Context, name string) (*IssuedKey, error) {
	plaintext, err := generateKey()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate api key", err)
	}

	hash, err := s.hasher.GenerateFromSecret(plaintext)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash api key", err)
	}

	now := s.clock.Now()
	record := &db.APIKey{
		ID:         uuid.New().String(),
		Name:       name,
		KeyPrefix:  plaintext[:prefixLen],
		SecretHash: hash,
		CreatedAt:  now,
	}
	if err := s.store.Create(ctx, record); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "api key created",
		"key_id", record.ID,
		"key_name", name,
		"key_prefix", record.KeyPrefix,
	)

	return &IssuedKey{
		ID:           record.ID,
		Name:         name,
		KeyPrefix:    record.KeyPrefix,
		PlaintextKey: types.SecretString(plaintext),
		CreatedAt:    now,
	}, nil
}

// Verify authenticates a presented key. It returns the stored key record
// on success and ErrCodeAuthKeyInvalid on any failure, with the same error
// shape for unknown prefixes and wrong secrets so the response does not
// reveal which keys exist.
func (s *Service) Verify(ctx context.Context, presented string) (*db.APIKey, error) {
	if len(presented) <= prefixLen || presented[:len(keyTag)+1] != keyTag+"_" {
		return nil, types.NewAppError(types.ErrCodeAuthKeyInvalid, "invalid api key", nil)
	}

	record, err := s.store.FindByPrefix(ctx, presented[:prefixLen])
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundAPIKey {
			return nil, types.NewAppError(types.ErrCodeAuthKeyInvalid, "invalid api key", nil)
		}
		return nil, err
	}

	// bcrypt comparison covers the full presented key, so a stolen prefix
	// alone cannot authenticate.
	if err := s.hasher.CompareHashAndSecret(record.SecretHash, presented); err != nil {
		return nil, types.NewAppError(types.ErrCodeAuthKeyInvalid, "invalid api key", nil)
	}

	// Usage bookkeeping is best-effort.
	if err := s.store.TouchLastUsed(ctx, record.ID, s.clock.Now()); err != nil {
		s.logger.WarnContext(ctx, "failed to touch api key last_used_at",
			"key_id", record.ID,
			"error", err,
		)
	}

	return record, nil
}

// generateKey produces a new plaintext key: the tag, an underscore, and
// secretBytes of crypto/rand entropy in unpadded base64url.
func generateKey() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return keyTag + "_" + base64.RawURLEncoding.EncodeToString(b), nil
}
