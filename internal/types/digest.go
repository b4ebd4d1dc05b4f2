// Package types defines the shared domain model for the PureTrack alert
// digest engine: digest records, alert items, inbound event shapes, typed
// errors, and small cross-cutting interfaces (Clock, Logger).
package types

import (
	"fmt"
	"time"
)

// MaxDigestItems is the hard cap on the number of alert items retained in a
// single digest. When a merge would exceed the cap, the oldest item is
// evicted (FIFO) so the digest always holds the most recent alerts.
const MaxDigestItems = 10

// MaxSendAttempts is the ceiling on send attempts per digest. Once reached,
// the digest is permanently ineligible for sending until a human
// acknowledges it. Fail-closed: a misbehaving transport must never produce
// a notification storm.
const MaxSendAttempts = 3

// SendCooldown is the minimum gap between successful digest emails for the
// same digest record.
const SendCooldown = 24 * time.Hour

// Severity classifies the urgency of a raw alert event. Severity is decided
// upstream by the alert evaluation pipeline; the digest engine only carries
// it through to the email body.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityWarning  Severity = "Warning"
	SeverityAdvisory Severity = "Advisory"
)

// DigestAlertItem is a single raw alert folded into a digest. Items are
// value objects embedded in the digest's JSONB items column; they are not
// independently addressable.
type DigestAlertItem struct {
	EventID    string    `json:"event_id"`
	Summary    string    `json:"summary"`
	Timestamp  time.Time `json:"timestamp"`
	Value      *float64  `json:"value,omitempty"`
	Severity   Severity  `json:"severity"`
	DeviceName string    `json:"device_name"`
	Parameter  string    `json:"parameter"`
}

// AlertDigest is the aggregate root of the notification-cooldown engine.
// Exactly one digest exists per (recipient UID, category, UTC calendar day);
// the triple is flattened into the ID used as the primary key.
//
// Invariants maintained by the digest repository:
//   - Items is ordered oldest-to-newest and never exceeds MaxDigestItems.
//   - SendAttempts never exceeds MaxSendAttempts while un-acknowledged.
//   - CooldownUntil is monotonically non-decreasing across successful sends.
//   - Once IsAcknowledged flips true the digest is terminal: no further
//     sends, though late items may still be appended for audit history.
type AlertDigest struct {
	ID             string            `json:"id"`
	RecipientUID   string            `json:"recipient_uid"`
	RecipientEmail string            `json:"recipient_email"`
	Category       string            `json:"category"`
	Day            string            `json:"day"` // YYYY-MM-DD, UTC
	Items          []DigestAlertItem `json:"items"`
	CreatedAt      time.Time         `json:"created_at"`
	LastUpdatedAt  time.Time         `json:"last_updated_at"`
	LastSentAt     *time.Time        `json:"last_sent_at,omitempty"`
	CooldownUntil  time.Time         `json:"cooldown_until"`
	SendAttempts   int               `json:"send_attempts"`
	IsAcknowledged bool              `json:"is_acknowledged"`
	AcknowledgedBy string            `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at,omitempty"`

	// AckToken is the sole credential accepted by the acknowledgment
	// endpoint for this digest. Generated once at creation (32 random
	// bytes, hex-encoded), never rotated. Excluded from JSON so it cannot
	// leak through API responses or structured logs.
	AckToken string `json:"-"`
}

// DigestKey addresses a single digest record.
type DigestKey struct {
	RecipientUID string
	Category     string
	Day          string // YYYY-MM-DD, UTC
}

// DocID flattens the key into the digest's primary key.
// Layout: {recipientUid}_{category}_{YYYY-MM-DD}.
func (k DigestKey) DocID() string {
	return fmt.Sprintf("%s_%s_%s", k.RecipientUID, k.Category, k.Day)
}

// DayOf returns the UTC calendar-day bucket for a timestamp, formatted as
// YYYY-MM-DD. All digest keys use UTC days so a recipient's bucket boundary
// does not drift with server timezone configuration.
func DayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Eligible reports whether the digest qualifies for a send attempt at the
// given instant. This mirrors the SQL predicate used by the scheduler scan;
// it exists so the sender can re-check after claiming and so tests can
// assert the predicate directly.
func (d *AlertDigest) Eligible(now time.Time) bool {
	return !d.IsAcknowledged &&
		len(d.Items) > 0 &&
		d.SendAttempts < MaxSendAttempts &&
		!d.CooldownUntil.After(now)
}
