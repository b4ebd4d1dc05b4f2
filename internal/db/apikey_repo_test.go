package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"puretrack/internal/types"
)

func TestAPIKeyRepository_Create_Success(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewAPIKeyRepository(dbx)
	ctx := context.Background()

	key := &APIKey{
		ID:         "key-1",
		Name:       "gateway-east",
		KeyPrefix:  "ptk_abcd1234",
		SecretHash: "$2a$12$hashedvaluehere",
		CreatedAt:  time.Now().UTC(),
	}

	dbx.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Create(ctx, key)
	require.NoError(t, err)
	dbx.AssertExpectations(t)
}

func TestAPIKeyRepository_Create_DBError(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewAPIKeyRepository(dbx)
	ctx := context.Background()

	dbx.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Create(ctx, &APIKey{ID: "key-1", Name: "gw", KeyPrefix: "ptk_x", SecretHash: "h"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestAPIKeyRepository_FindByPrefix_Success(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewAPIKeyRepository(dbx)
	ctx := context.Background()

	now := time.Now().UTC()
	lastUsed := now.Add(-time.Hour)

	var capturedArgs []any
	dbx.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			capturedArgs = args.Get(2).([]any)
		}).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*string) = "key-1"
			*dest[1].(*string) = "gateway-east"
			*dest[2].(*string) = "ptk_abcd1234"
			*dest[3].(*string) = "$2a$12$hash"
			*dest[4].(*time.Time) = now
			*dest[5].(**time.Time) = &lastUsed
			*dest[6].(**time.Time) = nil
			return nil
		}})

	key, err := repo.FindByPrefix(ctx, "ptk_abcd1234")
	require.NoError(t, err)
	assert.Equal(t, "key-1", key.ID)
	assert.Equal(t, "gateway-east", key.Name)
	assert.Equal(t, "$2a$12$hash", key.SecretHash)
	require.NotNil(t, key.LastUsedAt)
	assert.Nil(t, key.RevokedAt)

	require.Len(t, capturedArgs, 1)
	assert.Equal(t, "ptk_abcd1234", capturedArgs[0])
}

func TestAPIKeyRepository_FindByPrefix_NotFound(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewAPIKeyRepository(dbx)
	ctx := context.Background()

	dbx.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.FindByPrefix(ctx, "ptk_unknown1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundAPIKey, appErr.Code)
}

func TestAPIKeyRepository_TouchLastUsed(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewAPIKeyRepository(dbx)
	ctx := context.Background()

	now := time.Now().UTC()

	var capturedArgs []any
	dbx.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			capturedArgs = args.Get(2).([]any)
		}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.TouchLastUsed(ctx, "key-1", now)
	require.NoError(t, err)

	require.Len(t, capturedArgs, 2)
	assert.Equal(t, "key-1", capturedArgs[0])
	assert.Equal(t, now, capturedArgs[1])
}
