package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"puretrack/internal/types"
)

// HTTPMailConfig holds the configuration for creating an HTTPMailClient.
type HTTPMailConfig struct {
	// Endpoint is the base URL of the mail gateway, e.g.
	// "https://mail.internal.puretrack.io".
	Endpoint string
	APIKey   string
	Logger   *slog.Logger
}

// HTTPMailClient implements EmailProvider against a generic JSON mail
// gateway through BaseClient, so every request gets the platform's circuit
// breaker, retries, and error mapping. Used for on-prem deployments where
// SES is not reachable.
type HTTPMailClient struct {
	base     *BaseClient
	apiKey   string
	endpoint string
	logger   *slog.Logger
}

// NewHTTPMailClient creates a new HTTPMailClient. The httpClient timeout
// bounds a single attempt; retries are governed by the BaseClient policy.
func NewHTTPMailClient(httpClient *http.Client, cfg HTTPMailConfig) *HTTPMailClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"httpmail",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"PureTrack/1.0",
	)

	return &HTTPMailClient{
		base:     base,
		apiKey:   cfg.APIKey,
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		logger:   logger,
	}
}

// NewHTTPMailClientWithBase creates an HTTPMailClient with a pre-configured
// BaseClient. Useful in tests to disable retries or inject a sleep func.
func NewHTTPMailClientWithBase(base *BaseClient, cfg HTTPMailConfig) *HTTPMailClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPMailClient{
		base:     base,
		apiKey:   cfg.APIKey,
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		logger:   logger,
	}
}

// mailPayload is the JSON body accepted by the gateway's send endpoint.
// Bodies are pre-rendered; the gateway does no templating.
type mailPayload struct {
	To       mailAddress       `json:"to"`
	From     mailAddress       `json:"from"`
	Subject  string            `json:"subject"`
	HTMLBody string            `json:"html_body,omitempty"`
	TextBody string            `json:"text_body,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type mailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// mailSendResponse is the success body returned by the gateway.
type mailSendResponse struct {
	MessageID string `json:"message_id"`
}

// mailErrorResponse is the error body returned by the gateway.
type mailErrorResponse struct {
	Error string `json:"error"`
}

// Send posts the rendered digest email to the gateway and returns the
// provider message ID on success.
//
// Error mapping:
//   - 403 Forbidden: ErrCodeEmailBlocked (recipient suppressed)
//   - 429 / 5xx: handled by BaseClient (retry, then rate-limited or
//     unavailable)
//   - Other 4xx: ErrCodeUpstreamEmailProvider
func (c *HTTPMailClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	payload := mailPayload{
		To:       mailAddress{Email: input.To},
		From:     mailAddress{Email: input.From.Address, Name: input.From.Name},
		Subject:  input.Subject,
		HTMLBody: input.BodyHTML,
		TextBody: input.BodyText,
	}
	if input.DigestID != "" {
		payload.Metadata = map[string]string{"digest_id": input.DigestID}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal mail gateway payload",
			err,
		)
	}

	reqURL := c.endpoint + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create mail gateway request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.base.Do(req)
	if err != nil {
		// BaseClient already returns typed upstream errors.
		if _, ok := err.(*types.AppError); ok {
			return "", err
		}
		return "", types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("mail gateway request failed: %v", err),
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted {
		var okBody mailSendResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&okBody); decErr != nil {
			// Accepted but no parseable ID; treat as sent.
			return "", nil
		}
		return okBody.MessageID, nil
	}

	return "", c.handleErrorResponse(resp)
}

// handleErrorResponse reads the gateway's error body and maps the status
// code to a domain error.
func (c *HTTPMailClient) handleErrorResponse(resp *http.Response) error {
	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("mail gateway returned status %d and the response body was unreadable", resp.StatusCode),
			readErr,
		)
	}

	msg := string(raw)
	var gwErr mailErrorResponse
	if jsonErr := json.Unmarshal(raw, &gwErr); jsonErr == nil && gwErr.Error != "" {
		msg = gwErr.Error
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return types.NewAppError(
			types.ErrCodeEmailBlocked,
			fmt.Sprintf("mail gateway blocked delivery: %s", msg),
			nil,
		)
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			"mail gateway rate limit exceeded",
			nil,
		)
	case resp.StatusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("mail gateway server error: %s", msg),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("mail gateway error (%d): %s", resp.StatusCode, msg),
			nil,
		)
	}
}

// Compile-time assertion that HTTPMailClient satisfies EmailProvider.
var _ EmailProvider = (*HTTPMailClient)(nil)
