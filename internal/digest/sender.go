package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"puretrack/internal/db"
	"puretrack/internal/types"
)

// SenderStore is the persistence seam the send coordinator needs.
// Satisfied by *db.DigestRepository.
type SenderStore interface {
	// ClaimSendAttempt atomically increments send_attempts while the
	// digest is still eligible, returning the content snapshot for this
	// send; ErrCodeConflictClaimed when the claim is lost.
	ClaimSendAttempt(ctx context.Context, digestID string, now time.Time) (*types.AlertDigest, error)

	// RecordSendSuccess advances last_sent_at and cooldown_until after a
	// successful transport call.
	RecordSendSuccess(ctx context.Context, digestID string, sentAt time.Time) error
}

// SendAudit records every attempt outcome. Satisfied by
// *db.SendLogRepository.
type SendAudit interface {
	Append(ctx context.Context, entry db.SendLogEntry) error
}

// EmailTransport is the outbound delivery seam. Satisfied by the external
// package's providers (SES or the circuit-breaking HTTP client).
type EmailTransport interface {
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}

// DigestRenderer produces the complete, ready-to-send email for a digest
// snapshot, including the acknowledgment link.
type DigestRenderer interface {
	Render(d *types.AlertDigest) (types.SendInput, error)
}

// SendMetrics receives delivery telemetry. Implemented by the metrics
// package over CloudWatch; tests use a no-op.
type SendMetrics interface {
	RecordDelivery(ctx context.Context, result string)
	RecordLatency(ctx context.Context, d time.Duration)
}

// Delivery metric result values.
const (
	MetricSent    = "sent"
	MetricFailed  = "failed"
	MetricSkipped = "skipped"
)

// ErrClaimLost is returned by AttemptSend when the digest was no longer
// eligible at claim time. Schedulers treat it as a benign skip: another
// sweep sent first, the digest was acknowledged, or the attempt ceiling
// was reached between scan and claim.
var ErrClaimLost = errors.New("send claim lost")

// Sender coordinates one digest send: claim the attempt, render, call the
// transport under a bounded timeout, and record the outcome.
//
// Ordering is the whole point. The attempt is claimed in the store BEFORE
// the transport is invoked, so a transport timeout or a crashed worker can
// cost an attempt but can never cause a duplicate email within the same
// cooldown period. The claim and the dispatch form one unit of work from
// the scheduler's perspective; the email content is exactly the items
// snapshot returned by the claim.
type Sender struct {
	store       SenderStore
	audit       SendAudit
	renderer    DigestRenderer
	transport   EmailTransport
	metrics     SendMetrics
	clock       types.Clock
	logger      types.Logger
	sendTimeout time.Duration
}

// SenderConfig holds the dependencies needed to create a Sender.
type SenderConfig struct {
	Store       SenderStore
	Audit       SendAudit
	Renderer    DigestRenderer
	Transport   EmailTransport
	Metrics     SendMetrics
	Clock       types.Clock
	Logger      types.Logger
	SendTimeout time.Duration
}

// defaultSendTimeout bounds the transport call when no timeout is
// configured. A timeout is a Failed outcome, never an ambiguous one.
const defaultSendTimeout = 10 * time.Second

// NewSender creates a Sender.
func NewSender(cfg SenderConfig) *Sender {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = types.NewSlogLogger(nil)
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &Sender{
		store:       cfg.Store,
		audit:       cfg.Audit,
		renderer:    cfg.Renderer,
		transport:   cfg.Transport,
		metrics:     cfg.Metrics,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		sendTimeout: cfg.SendTimeout,
	}
}

// AttemptSend runs the full send pipeline for one digest.
//
// Returns:
//   - (outcome with Sent=true, nil) on transport success.
//   - (outcome with Sent=false, nil) on transport failure. The failure is
//     recorded (the claimed attempt stands, cooldown unchanged) and the
//     next sweep may retry until the ceiling.
//   - (zero outcome, ErrClaimLost) when the claim was lost.
//   - (zero outcome, err) on store unavailability.
func (s *Sender) AttemptSend(ctx context.Context, digestID string) (types.SendOutcome, error) {
	now := s.clock.Now()

	claimed, err := s.store.ClaimSendAttempt(ctx, digestID, now)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictClaimed {
			s.logger.Info("send claim lost", "digest_id", digestID)
			s.metrics.RecordDelivery(ctx, MetricSkipped)
			return types.SendOutcome{}, ErrClaimLost
		}
		return types.SendOutcome{}, fmt.Errorf("claiming send attempt for %s: %w", digestID, err)
	}

	input, err := s.renderer.Render(claimed)
	if err != nil {
		// Rendering is deterministic; a failure here is a bug, not a
		// transient condition. The attempt is spent (fail-closed) and
		// the failure is logged for the audit trail.
		s.recordFailure(ctx, claimed, "", fmt.Sprintf("render: %v", err))
		return types.SendOutcome{Sent: false, FailureReason: err.Error()}, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	start := s.clock.Now()
	msgID, sendErr := s.transport.Send(sendCtx, input)
	s.metrics.RecordLatency(ctx, s.clock.Now().Sub(start))

	if sendErr != nil {
		s.logger.Warn("digest send failed",
			"digest_id", claimed.ID,
			"attempt", claimed.SendAttempts,
			"error", sendErr.Error(),
		)
		s.recordFailure(ctx, claimed, input.BodyHTML, sendErr.Error())
		return types.SendOutcome{Sent: false, FailureReason: sendErr.Error()}, nil
	}

	sentAt := s.clock.Now()
	if err := s.store.RecordSendSuccess(ctx, claimed.ID, sentAt); err != nil {
		// The email went out but bookkeeping failed. Surface the error;
		// the claimed attempt still protects against an immediate
		// duplicate, and the next sweep will settle state.
		return types.SendOutcome{Sent: true, ProviderMsgID: msgID},
			fmt.Errorf("recording send success for %s: %w", claimed.ID, err)
	}

	s.appendAudit(ctx, claimed, db.SendLogEntry{
		Outcome:       "sent",
		ProviderMsgID: msgID,
		BodyHTML:      input.BodyHTML,
	})
	s.metrics.RecordDelivery(ctx, MetricSent)

	s.logger.Info("digest sent",
		"digest_id", claimed.ID,
		"attempt", claimed.SendAttempts,
		"item_count", len(claimed.Items),
		"provider_message_id", msgID,
	)

	return types.SendOutcome{Sent: true, ProviderMsgID: msgID}, nil
}

// recordFailure appends a failed-attempt audit row and emits metrics.
func (s *Sender) recordFailure(ctx context.Context, d *types.AlertDigest, bodyHTML, reason string) {
	s.appendAudit(ctx, d, db.SendLogEntry{
		Outcome:       "failed",
		FailureReason: reason,
		BodyHTML:      bodyHTML,
	})
	s.metrics.RecordDelivery(ctx, MetricFailed)
}

// appendAudit fills the common entry fields and writes the audit row.
// Audit failures are logged, never propagated; a broken audit table must
// not block notifications.
func (s *Sender) appendAudit(ctx context.Context, d *types.AlertDigest, entry db.SendLogEntry) {
	entry.ID = uuid.New().String()
	entry.DigestID = d.ID
	entry.Attempt = d.SendAttempts
	entry.ItemCount = len(d.Items)
	entry.CreatedAt = s.clock.Now()

	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append send log entry",
			"digest_id", d.ID,
			"error", err.Error(),
		)
	}
}
