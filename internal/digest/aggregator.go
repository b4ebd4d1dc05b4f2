package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"puretrack/internal/types"
)

// DigestStore is the persistence seam the Aggregator needs. Satisfied by
// *db.DigestRepository.
type DigestStore interface {
	// MergeAlert atomically folds one item into the digest addressed by
	// key, creating it (with the supplied email and ack token) if absent.
	MergeAlert(ctx context.Context, key types.DigestKey, email string, item types.DigestAlertItem, ackToken string, now time.Time) (*types.AlertDigest, error)
}

// Aggregator turns raw alert events into digest merges. It owns
// categorization and item construction; all concurrency control lives in
// the store's atomic merge, so the Aggregator itself is stateless and safe
// for any number of concurrent callers.
type Aggregator struct {
	store  DigestStore
	clock  types.Clock
	logger types.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(store DigestStore, clock types.Clock, logger types.Logger) *Aggregator {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = types.NewSlogLogger(nil)
	}
	return &Aggregator{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// MergeAlert categorizes the event and merges it into the addressed digest.
//
// The day bucket comes from the event's fire time (falling back to arrival
// time when the gateway omitted a timestamp), so replayed or delayed events
// land in the digest of the day they actually happened.
//
// If the store is unavailable the merge fails and the event should be
// treated as not-yet-aggregated by the caller; retry responsibility lives
// in the queue's redrive policy, not here.
func (a *Aggregator) MergeAlert(ctx context.Context, event types.RawAlertEvent) (*types.AlertDigest, error) {
	now := a.clock.Now()

	firedAt := event.Timestamp
	if firedAt.IsZero() {
		firedAt = now
	}

	category := Categorize(event.Parameter, event.Value, event.Thresholds)
	key := types.DigestKey{
		RecipientUID: event.RecipientUID,
		Category:     category,
		Day:          types.DayOf(firedAt),
	}

	item := types.DigestAlertItem{
		EventID:    event.EventID,
		Summary:    summarize(event),
		Timestamp:  firedAt,
		Value:      event.Value,
		Severity:   event.Severity,
		DeviceName: event.DeviceName,
		Parameter:  event.Parameter,
	}

	// A token is generated per merge but only consumed when this merge
	// creates the digest; on the conflict path the store keeps the
	// original token untouched.
	token, err := NewAckToken()
	if err != nil {
		return nil, fmt.Errorf("generating ack token: %w", err)
	}

	d, err := a.store.MergeAlert(ctx, key, event.RecipientEmail, item, token, now)
	if err != nil {
		return nil, fmt.Errorf("merging alert %s into digest %s: %w", event.EventID, key.DocID(), err)
	}

	a.logger.Info("alert merged into digest",
		"digest_id", d.ID,
		"event_id", event.EventID,
		"category", category,
		"item_count", len(d.Items),
		"acknowledged", d.IsAcknowledged,
	)

	return d, nil
}

// summarize builds the short human-readable line shown per item in the
// digest email, e.g. "Critical: pH 9.40 out of range on Tank A inlet".
func summarize(event types.RawAlertEvent) string {
	var b strings.Builder
	b.WriteString(string(event.Severity))
	b.WriteString(": ")
	b.WriteString(event.Parameter)
	if event.Value != nil {
		fmt.Fprintf(&b, " %.2f", *event.Value)
	}
	b.WriteString(" out of range on ")
	b.WriteString(event.DeviceName)
	return b.String()
}
