package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"puretrack/internal/types"
)

// DigestRepository provides data access for the alert_digests table.
//
// Schema (managed by migrations, reproduced here for reference):
//
//	CREATE TABLE alert_digests (
//	    id              TEXT PRIMARY KEY,  -- {recipient_uid}_{category}_{YYYY-MM-DD}
//	    recipient_uid   TEXT        NOT NULL,
//	    recipient_email TEXT        NOT NULL,
//	    category        TEXT        NOT NULL,
//	    day             TEXT        NOT NULL,
//	    items           JSONB       NOT NULL DEFAULT '[]',
//	    created_at      TIMESTAMPTZ NOT NULL,
//	    last_updated_at TIMESTAMPTZ NOT NULL,
//	    last_sent_at    TIMESTAMPTZ,
//	    cooldown_until  TIMESTAMPTZ NOT NULL,
//	    send_attempts   INT         NOT NULL DEFAULT 0,
//	    is_acknowledged BOOLEAN     NOT NULL DEFAULT FALSE,
//	    acknowledged_by TEXT,
//	    acknowledged_at TIMESTAMPTZ,
//	    ack_token       TEXT        NOT NULL,
//	    UNIQUE (recipient_uid, category, day)
//	);
//	CREATE INDEX idx_digest_sweep ON alert_digests (id)
//	    WHERE NOT is_acknowledged AND send_attempts < 3;
//
// All mutations are single-statement and therefore atomic per row: Postgres
// serializes concurrent INSERT ... ON CONFLICT and conditional UPDATEs on
// the same primary key, which gives the per-key linearizability the engine
// relies on without explicit locking or optimistic retry loops.
type DigestRepository struct {
	db DBTX
}

// NewDigestRepository creates a DigestRepository backed by the given
// database connection (pool or transaction).
func NewDigestRepository(db DBTX) *DigestRepository {
	return &DigestRepository{db: db}
}

// digestColumns is the canonical column list scanned by scanDigest.
const digestColumns = `id, recipient_uid, recipient_email, category, day, items,
       created_at, last_updated_at, last_sent_at, cooldown_until,
       send_attempts, is_acknowledged, acknowledged_by, acknowledged_at, ack_token`

// MergeAlert atomically folds one alert item into the digest addressed by
// key, creating the digest if it does not exist yet.
//
// On creation: created_at = last_updated_at = cooldown_until = now (the
// digest is immediately eligible), send_attempts = 0, and ackToken becomes
// the digest's permanent acknowledgment credential. recipient_email is
// resolved once here and never refreshed by later merges.
//
// On conflict: the item is appended to items; if the list already holds
// types.MaxDigestItems entries the oldest is evicted first ('items - 0'
// deletes the element at index 0). Only items and last_updated_at change;
// send bookkeeping, acknowledgment state, email, and ack_token are never
// touched by a merge, so late items on an acknowledged digest accumulate as
// audit history without resurrecting sends.
//
// Two merges racing on a brand-new key both succeed: one wins the INSERT,
// the other takes the ON CONFLICT path against the committed row. Neither
// item is lost.
func (r *DigestRepository) MergeAlert(ctx context.Context, key types.DigestKey, email string, item types.DigestAlertItem, ackToken string, now time.Time) (*types.AlertDigest, error) {
	itemJSON, err := json.Marshal(item)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal digest item", err)
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO alert_digests
		 (id, recipient_uid, recipient_email, category, day, items,
		  created_at, last_updated_at, cooldown_until, send_attempts,
		  is_acknowledged, ack_token)
		 VALUES ($1, $2, $3, $4, $5, jsonb_build_array($6::jsonb),
		         $7, $7, $7, 0, FALSE, $8)
		 ON CONFLICT (id) DO UPDATE SET
		     items = CASE
		         WHEN jsonb_array_length(alert_digests.items) >= $9
		             THEN (alert_digests.items - 0) || $6::jsonb
		         ELSE alert_digests.items || $6::jsonb
		     END,
		     last_updated_at = $7
		 RETURNING `+digestColumns,
		key.DocID(),
		key.RecipientUID,
		email,
		key.Category,
		key.Day,
		itemJSON,
		now,
		ackToken,
		types.MaxDigestItems,
	)

	d, err := scanDigest(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to merge alert into digest", err)
	}
	return d, nil
}

// GetByID fetches a single digest. Returns ErrCodeNotFoundDigest when no
// row matches.
func (r *DigestRepository) GetByID(ctx context.Context, digestID string) (*types.AlertDigest, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+digestColumns+` FROM alert_digests WHERE id = $1`,
		digestID,
	)

	d, err := scanDigest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundDigest, "digest not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get digest", err)
	}
	return d, nil
}

// ListEligible returns one page of digests eligible for sending at the
// given instant, in id order, strictly after afterID. The scan is
// restartable: callers page with the last id of the previous batch, so a
// sweep interrupted mid-way resumes without re-reading earlier pages.
//
// Eligibility here is advisory: a digest returned by the scan may lose
// eligibility before the send happens. The authoritative, exactly-once
// decision is ClaimSendAttempt.
func (r *DigestRepository) ListEligible(ctx context.Context, now time.Time, afterID string, limit int) ([]*types.AlertDigest, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+digestColumns+`
		 FROM alert_digests
		 WHERE is_acknowledged = FALSE
		   AND send_attempts < $1
		   AND cooldown_until <= $2
		   AND jsonb_array_length(items) > 0
		   AND id > $3
		 ORDER BY id
		 LIMIT $4`,
		types.MaxSendAttempts,
		now,
		afterID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list eligible digests", err)
	}
	defer rows.Close()

	var results []*types.AlertDigest
	for rows.Next() {
		d, scanErr := scanDigest(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan digest row", scanErr)
		}
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating digest rows", err)
	}

	return results, nil
}

// ClaimSendAttempt atomically increments send_attempts for a digest that is
// still eligible at claim time, returning the digest state as of the claim.
// The returned Items slice is the authoritative content snapshot for the
// send. Items merged after the claim belong to the next digest cycle.
//
// If the digest is no longer eligible (acknowledged, attempts exhausted,
// cooldown extended), the statement matches zero rows and
// ErrCodeConflictClaimed is returned. Each claim is individually atomic,
// but two sweeps overlapping before either send succeeds can both pass the
// guard (attempts 0->1, then 1->2) and both dispatch; sweeps are expected
// to run far apart relative to their duration, and the attempt counter
// caps how many sends such an overlap can ever produce. Once a send
// succeeds, the advanced cooldown_until excludes every later claim for
// the full cooldown period.
func (r *DigestRepository) ClaimSendAttempt(ctx context.Context, digestID string, now time.Time) (*types.AlertDigest, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE alert_digests SET
		     send_attempts = send_attempts + 1
		 WHERE id = $1
		   AND is_acknowledged = FALSE
		   AND send_attempts < $2
		   AND cooldown_until <= $3
		   AND jsonb_array_length(items) > 0
		 RETURNING `+digestColumns,
		digestID,
		types.MaxSendAttempts,
		now,
	)

	d, err := scanDigest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeConflictClaimed, "digest not eligible or already claimed", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to claim send attempt", err)
	}
	return d, nil
}

// RecordSendSuccess updates the send bookkeeping after a successful
// transport call: last_sent_at = sentAt and cooldown_until = sentAt + 24h.
// GREATEST keeps cooldown_until monotonically non-decreasing even if a
// slow worker reports success after a later event already advanced it.
//
// Transport failures deliberately have no counterpart here: the attempt
// was already claimed, and cooldown_until must stay unchanged so the next
// sweep can retry without a fresh 24h wait.
func (r *DigestRepository) RecordSendSuccess(ctx context.Context, digestID string, sentAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE alert_digests SET
		     last_sent_at = $2,
		     cooldown_until = GREATEST(cooldown_until, $2 + make_interval(secs => $3))
		 WHERE id = $1`,
		digestID,
		sentAt,
		types.SendCooldown.Seconds(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record send success", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundDigest, "digest not found", nil)
	}
	return nil
}

// Acknowledge performs the terminal transition for a digest: sets
// is_acknowledged, records who and when, and resets send_attempts to 0.
// The WHERE guard makes the transition first-wins: a second acknowledgment
// matches zero rows and returns ErrCodeAckAlreadyDone, leaving the original
// acknowledged_by/acknowledged_at untouched.
//
// Token validation is NOT done here: the acknowledgment service compares
// the presented token against ack_token in constant time before calling
// this method. The SQL guard only covers the acknowledged flag so the
// already-acknowledged case is distinguishable from not-found.
func (r *DigestRepository) Acknowledge(ctx context.Context, digestID string, actorUID string, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE alert_digests SET
		     is_acknowledged = TRUE,
		     acknowledged_by = $2,
		     acknowledged_at = $3,
		     send_attempts = 0
		 WHERE id = $1 AND is_acknowledged = FALSE`,
		digestID,
		actorUID,
		now,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to acknowledge digest", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing row from already-acknowledged.
		var exists bool
		checkErr := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM alert_digests WHERE id = $1)`,
			digestID,
		).Scan(&exists)
		if checkErr != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to check digest existence", checkErr)
		}
		if !exists {
			return types.NewAppError(types.ErrCodeNotFoundDigest, "digest not found", nil)
		}
		return types.NewAppError(types.ErrCodeAckAlreadyDone, "digest already acknowledged", nil)
	}
	return nil
}

// scanDigest scans one alert_digests row (digestColumns order) from either
// a pgx.Row or pgx.Rows. Nullable columns use pointer locals.
func scanDigest(row pgx.Row) (*types.AlertDigest, error) {
	var (
		d              types.AlertDigest
		itemsJSON      []byte
		lastSentAt     *time.Time
		acknowledgedBy *string
		acknowledgedAt *time.Time
	)

	err := row.Scan(
		&d.ID,
		&d.RecipientUID,
		&d.RecipientEmail,
		&d.Category,
		&d.Day,
		&itemsJSON,
		&d.CreatedAt,
		&d.LastUpdatedAt,
		&lastSentAt,
		&d.CooldownUntil,
		&d.SendAttempts,
		&d.IsAcknowledged,
		&acknowledgedBy,
		&acknowledgedAt,
		&d.AckToken,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &d.Items); err != nil {
		return nil, err
	}
	d.LastSentAt = lastSentAt
	d.AcknowledgedAt = acknowledgedAt
	if acknowledgedBy != nil {
		d.AcknowledgedBy = *acknowledgedBy
	}

	return &d, nil
}
