package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"puretrack/internal/types"
)

// AckStore is the persistence seam the acknowledgment service needs.
// Satisfied by *db.DigestRepository.
type AckStore interface {
	GetByID(ctx context.Context, digestID string) (*types.AlertDigest, error)
	// Acknowledge performs the first-wins terminal transition; returns
	// ErrCodeAckAlreadyDone when the digest was already acknowledged and
	// ErrCodeNotFoundDigest when it does not exist.
	Acknowledge(ctx context.Context, digestID string, actorUID string, now time.Time) error
}

// AckService validates acknowledgment tokens and applies the terminal
// transition. This is the only path that can end a digest's active send
// lifecycle short of the attempt ceiling.
type AckService struct {
	store  AckStore
	clock  types.Clock
	logger types.Logger
}

// NewAckService creates an AckService.
func NewAckService(store AckStore, clock types.Clock, logger types.Logger) *AckService {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = types.NewSlogLogger(nil)
	}
	return &AckService{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// Acknowledge validates the presented token and marks the digest
// acknowledged exactly once.
//
// Error contract (typed via AppError codes):
//   - ErrCodeNotFoundDigest: no digest matches digestID. No state change.
//   - ErrCodeAckInvalidToken: token mismatch. No state change, not even
//     bookkeeping fields move on a bad token.
//   - ErrCodeAckAlreadyDone: digest was already acknowledged. Benign;
//     the HTTP layer renders this as success so repeated clicks on the
//     same email link never error. acknowledged_by/acknowledged_at keep
//     their values from the first acknowledgment.
//
// On first success the store also resets send_attempts to 0 on this now-
// terminal digest. The reset is bookkeeping hygiene only: future digests
// for the same category are separate keyed records that start at 0 anyway.
func (s *AckService) Acknowledge(ctx context.Context, digestID, token, actorUID string) error {
	if token == "" {
		return types.NewAppError(types.ErrCodeAckInvalidToken, "acknowledgment token missing", nil)
	}

	d, err := s.store.GetByID(ctx, digestID)
	if err != nil {
		return err // not-found or store failure, already typed
	}

	// The token is checked before the acknowledged flag so that a wrong
	// token on an already-acknowledged digest is still rejected as
	// invalid, never leaked as "already acknowledged".
	if !TokensEqual(token, d.AckToken) {
		s.logger.Warn("acknowledgment rejected: token mismatch", "digest_id", digestID)
		return types.NewAppError(types.ErrCodeAckInvalidToken, "invalid acknowledgment token", nil)
	}

	if err := s.store.Acknowledge(ctx, digestID, actorUID, s.clock.Now()); err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeAckAlreadyDone {
			s.logger.Info("digest already acknowledged", "digest_id", digestID)
			return err
		}
		return fmt.Errorf("acknowledging digest %s: %w", digestID, err)
	}

	s.logger.Info("digest acknowledged",
		"digest_id", digestID,
		"actor_uid", actorUID,
	)

	return nil
}
