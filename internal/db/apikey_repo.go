package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"puretrack/internal/types"
)

// APIKeyRepository provides data access for the api_keys table. API keys
// authenticate the device gateway posting raw alert events to the ingest
// endpoint.
//
// Schema:
//
//	CREATE TABLE api_keys (
//	    id           TEXT PRIMARY KEY,
//	    name         TEXT        NOT NULL,
//	    key_prefix   TEXT        NOT NULL,
//	    secret_hash  TEXT        NOT NULL, -- bcrypt
//	    created_at   TIMESTAMPTZ NOT NULL,
//	    last_used_at TIMESTAMPTZ,
//	    revoked_at   TIMESTAMPTZ
//	);
//	CREATE INDEX idx_api_keys_prefix ON api_keys (key_prefix);
type APIKeyRepository struct {
	db DBTX
}

// NewAPIKeyRepository creates an APIKeyRepository backed by the given
// database connection.
func NewAPIKeyRepository(db DBTX) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// APIKey is the persisted representation of an ingest credential. The
// plaintext secret exists only at creation time; SecretHash is a bcrypt
// hash and never leaves the auth layer.
type APIKey struct {
	ID         string
	Name       string
	KeyPrefix  string
	SecretHash string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// Create inserts a new API key record.
func (r *APIKeyRepository) Create(ctx context.Context, key *APIKey) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_prefix, secret_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		key.ID,
		key.Name,
		key.KeyPrefix,
		key.SecretHash,
		key.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create api key", err)
	}
	return nil
}

// FindByPrefix returns the non-revoked key matching the visible prefix.
// The prefix narrows the candidate set to one row; the caller still
// verifies the full secret against SecretHash with bcrypt.
func (r *APIKeyRepository) FindByPrefix(ctx context.Context, prefix string) (*APIKey, error) {
	var (
		key        APIKey
		lastUsedAt *time.Time
		revokedAt  *time.Time
	)

	err := r.db.QueryRow(ctx,
		`SELECT id, name, key_prefix, secret_hash, created_at, last_used_at, revoked_at
		 FROM api_keys
		 WHERE key_prefix = $1 AND revoked_at IS NULL`,
		prefix,
	).Scan(&key.ID, &key.Name, &key.KeyPrefix, &key.SecretHash,
		&key.CreatedAt, &lastUsedAt, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAPIKey, "api key not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to find api key", err)
	}

	key.LastUsedAt = lastUsedAt
	key.RevokedAt = revokedAt
	return &key, nil
}

// TouchLastUsed records key usage. Best-effort bookkeeping: callers log
// but do not fail the request when this errors.
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, keyID string, now time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE api_keys SET last_used_at = $2 WHERE id = $1`,
		keyID,
		now,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to touch api key", err)
	}
	return nil
}
