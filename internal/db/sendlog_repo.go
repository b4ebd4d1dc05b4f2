package db

import (
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"puretrack/internal/types"
)

// SendLogRepository provides append-only data access for the
// digest_send_log table, the audit trail of every send attempt the engine
// makes.
//
// Schema:
//
//	CREATE TABLE digest_send_log (
//	    id                  TEXT PRIMARY KEY,
//	    digest_id           TEXT        NOT NULL REFERENCES alert_digests(id),
//	    attempt             INT         NOT NULL,
//	    outcome             TEXT        NOT NULL, -- 'sent' | 'failed'
//	    failure_reason      TEXT,
//	    provider_message_id TEXT,
//	    item_count          INT         NOT NULL,
//	    body_zstd           BYTEA,
//	    created_at          TIMESTAMPTZ NOT NULL
//	);
//
// The rendered email body is stored zstd-compressed so operators can answer
// "what exactly did we send" months later without the table dominating
// storage. The log is append-only; retention is external housekeeping.
type SendLogRepository struct {
	db DBTX
}

// NewSendLogRepository creates a SendLogRepository backed by the given
// database connection.
func NewSendLogRepository(db DBTX) *SendLogRepository {
	return &SendLogRepository{db: db}
}

// SendLogEntry is one row of the send audit trail.
type SendLogEntry struct {
	ID            string
	DigestID      string
	Attempt       int
	Outcome       string // "sent" or "failed"
	FailureReason string
	ProviderMsgID string
	ItemCount     int
	BodyHTML      string // plaintext in memory; compressed at rest
	CreatedAt     time.Time
}

// bodyEncoder is a shared zstd encoder. EncodeAll is safe for concurrent
// use, so one encoder serves all workers.
var bodyEncoder *zstd.Encoder

// bodyDecoder is the matching shared decoder for ReadBody.
var bodyDecoder *zstd.Decoder

func init() {
	var err error
	bodyEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
	}
	bodyDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
	}
}

// Append inserts one audit row, compressing the rendered body. A nil/empty
// body (e.g. a failure before rendering) is stored as NULL.
func (r *SendLogRepository) Append(ctx context.Context, entry SendLogEntry) error {
	var compressed []byte
	if entry.BodyHTML != "" {
		compressed = bodyEncoder.EncodeAll([]byte(entry.BodyHTML), nil)
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO digest_send_log
		 (id, digest_id, attempt, outcome, failure_reason,
		  provider_message_id, item_count, body_zstd, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID,
		entry.DigestID,
		entry.Attempt,
		entry.Outcome,
		nilIfEmpty(entry.FailureReason),
		nilIfEmpty(entry.ProviderMsgID),
		entry.ItemCount,
		compressed,
		entry.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append send log entry", err)
	}
	return nil
}

// ReadBody fetches and decompresses the stored email body for one log
// entry. Returns "" when no body was recorded.
func (r *SendLogRepository) ReadBody(ctx context.Context, entryID string) (string, error) {
	var compressed []byte
	err := r.db.QueryRow(ctx,
		`SELECT body_zstd FROM digest_send_log WHERE id = $1`,
		entryID,
	).Scan(&compressed)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to read send log body", err)
	}
	if len(compressed) == 0 {
		return "", nil
	}

	body, err := bodyDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decompress send log body", err)
	}
	return string(body), nil
}

// nilIfEmpty maps "" to nil so empty strings are stored as NULL.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
