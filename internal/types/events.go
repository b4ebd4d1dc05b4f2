package types

import "time"

// RawAlertEvent is the inbound shape consumed from the alert evaluation
// pipeline. The engine trusts it as already-decided: severity and threshold
// crossing are evaluated upstream, never re-checked here.
type RawAlertEvent struct {
	EventID        string    `json:"event_id" validate:"required"`
	Parameter      string    `json:"parameter" validate:"required"`
	Value          *float64  `json:"value,omitempty"`
	Severity       Severity  `json:"severity" validate:"required,oneof=Critical Warning Advisory"`
	DeviceName     string    `json:"device_name" validate:"required"`
	Timestamp      time.Time `json:"timestamp" validate:"required"`
	RecipientUID   string    `json:"recipient_uid" validate:"required"`
	RecipientEmail string    `json:"recipient_email" validate:"required,email"`

	// Thresholds carries the limits the upstream pipeline evaluated against.
	// Used only by the categorizer to derive a stable category string.
	Thresholds ParameterThresholds `json:"thresholds"`
}

// ParameterThresholds are the bounds a sensor reading was evaluated against.
// Either bound may be nil when the parameter has no limit on that side.
type ParameterThresholds struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// AlertEventMessage is the SQS envelope carrying a RawAlertEvent from the
// ingest API to the aggregation worker. TraceID correlates the event across
// the ingest log, the worker log, and the digest send log.
type AlertEventMessage struct {
	TraceID    string        `json:"trace_id"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
	Event      RawAlertEvent `json:"event"`
}

// SendOutcome records the result of one digest send attempt.
type SendOutcome struct {
	Sent          bool
	FailureReason string
	ProviderMsgID string
}

// SendInput is the pre-rendered email content handed to an EmailProvider.
// Rendering happens in the engine; providers only transmit.
type SendInput struct {
	To       string
	From     EmailAddress
	Subject  string
	BodyHTML string
	BodyText string
	// DigestID correlates the outbound message with its digest in
	// provider-side logs.
	DigestID string
}

// EmailAddress is a sender identity (display name plus address).
type EmailAddress struct {
	Name    string
	Address string
}
