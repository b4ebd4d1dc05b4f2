// Package external provides the anti-corruption layer between the digest
// engine and third-party delivery APIs. Outbound HTTP calls are routed
// through the BaseClient, which enforces consistent resilience patterns:
// circuit breaking, retries with exponential backoff, and error mapping.
package external

import (
	"context"

	"puretrack/internal/types"
)

// EmailProvider abstracts the email delivery service. Implementations
// transmit pre-rendered content (Subject, BodyHTML, BodyText); no
// server-side templating.
//
// Transport-level retries (a 5xx that succeeds on the HTTP client's second
// try) are the provider's concern. The engine only counts the final binary
// outcome against the digest's 3-attempt ceiling.
type EmailProvider interface {
	// Send transmits an email with pre-rendered content.
	// Returns the provider's message ID for tracking and correlation.
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}
