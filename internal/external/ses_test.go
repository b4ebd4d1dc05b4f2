package external

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"puretrack/internal/types"
)

// mockSESAPI implements SESAPI for testing.
type mockSESAPI struct {
	sendEmailFunc func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

func (m *mockSESAPI) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	return m.sendEmailFunc(ctx, params, optFns...)
}

func sampleSendInput() types.SendInput {
	return types.SendInput{
		To: "ops@plant.example",
		From: types.EmailAddress{
			Name:    "PureTrack Alerts",
			Address: "alerts@puretrack.io",
		},
		Subject:  "[PureTrack] High pH Alert Digest: 2 alert(s) on 2026-03-14",
		BodyHTML: "<h1>Digest</h1>",
		BodyText: "Digest",
		DigestID: "user-1_ph_high_2026-03-14",
	}
}

// ---------------------------------------------------------------------------
// Send Tests - Success Path
// ---------------------------------------------------------------------------

func TestSESSend_Success(t *testing.T) {
	var capturedInput *sesv2.SendEmailInput

	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			capturedInput = params
			return &sesv2.SendEmailOutput{
				MessageId: aws.String("ses-msg-abc123"),
			}, nil
		},
	}

	client := NewSESClientWithAPI(mock, SESClientConfig{
		ConfigSetName: "puretrack-digests",
	})

	msgID, err := client.Send(context.Background(), sampleSendInput())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if msgID != "ses-msg-abc123" {
		t.Errorf("expected message ID ses-msg-abc123, got %q", msgID)
	}

	if capturedInput == nil {
		t.Fatal("expected SendEmail to be called")
	}
	if got := aws.ToString(capturedInput.FromEmailAddress); got != "PureTrack Alerts <alerts@puretrack.io>" {
		t.Errorf("unexpected from address: %q", got)
	}
	if len(capturedInput.Destination.ToAddresses) != 1 || capturedInput.Destination.ToAddresses[0] != "ops@plant.example" {
		t.Errorf("unexpected destination: %v", capturedInput.Destination.ToAddresses)
	}
	if got := aws.ToString(capturedInput.ConfigurationSetName); got != "puretrack-digests" {
		t.Errorf("expected configuration set to be applied, got %q", got)
	}

	simple := capturedInput.Content.Simple
	if got := aws.ToString(simple.Subject.Data); got != "[PureTrack] High pH Alert Digest: 2 alert(s) on 2026-03-14" {
		t.Errorf("unexpected subject: %q", got)
	}
	if got := aws.ToString(simple.Body.Html.Data); got != "<h1>Digest</h1>" {
		t.Errorf("unexpected HTML body: %q", got)
	}
	if got := aws.ToString(simple.Body.Text.Data); got != "Digest" {
		t.Errorf("unexpected text body: %q", got)
	}

	if len(capturedInput.EmailTags) != 1 {
		t.Fatalf("expected 1 email tag, got %d", len(capturedInput.EmailTags))
	}
	tag := capturedInput.EmailTags[0]
	if aws.ToString(tag.Name) != "DigestID" || aws.ToString(tag.Value) != "user-1_ph_high_2026-03-14" {
		t.Errorf("unexpected email tag: %s=%s", aws.ToString(tag.Name), aws.ToString(tag.Value))
	}
}

func TestSESSend_NoDisplayName(t *testing.T) {
	var capturedInput *sesv2.SendEmailInput

	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			capturedInput = params
			return &sesv2.SendEmailOutput{MessageId: aws.String("id")}, nil
		},
	}

	client := NewSESClientWithAPI(mock, SESClientConfig{})

	input := sampleSendInput()
	input.From.Name = ""
	if _, err := client.Send(context.Background(), input); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if got := aws.ToString(capturedInput.FromEmailAddress); got != "alerts@puretrack.io" {
		t.Errorf("expected bare address without display name, got %q", got)
	}
	if capturedInput.ConfigurationSetName != nil {
		t.Error("expected no configuration set when unconfigured")
	}
}

func TestSESSend_TextOnlyBody(t *testing.T) {
	var capturedInput *sesv2.SendEmailInput

	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			capturedInput = params
			return &sesv2.SendEmailOutput{MessageId: aws.String("id")}, nil
		},
	}

	client := NewSESClientWithAPI(mock, SESClientConfig{})

	input := sampleSendInput()
	input.BodyHTML = ""
	if _, err := client.Send(context.Background(), input); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	body := capturedInput.Content.Simple.Body
	if body.Html != nil {
		t.Error("expected no HTML part")
	}
	if body.Text == nil || aws.ToString(body.Text.Data) != "Digest" {
		t.Error("expected text part to be present")
	}
}

// ---------------------------------------------------------------------------
// Send Tests - Error Mapping
// ---------------------------------------------------------------------------

func TestSESSend_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		sesErr   error
		wantCode types.ErrorCode
	}{
		{
			name:     "message rejected maps to email blocked",
			sesErr:   &sestypes.MessageRejected{Message: aws.String("Email address is suppressed")},
			wantCode: types.ErrCodeEmailBlocked,
		},
		{
			name:     "throttling maps to rate limited",
			sesErr:   &sestypes.TooManyRequestsException{Message: aws.String("Rate exceeded")},
			wantCode: types.ErrCodeUpstreamRateLimited,
		},
		{
			name:     "sending paused maps to unavailable",
			sesErr:   &sestypes.SendingPausedException{Message: aws.String("Account sending disabled")},
			wantCode: types.ErrCodeUpstreamUnavailable,
		},
		{
			name:     "unknown error maps to provider error",
			sesErr:   errors.New("connection reset"),
			wantCode: types.ErrCodeUpstreamEmailProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockSESAPI{
				sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
					return nil, tt.sesErr
				},
			}

			client := NewSESClientWithAPI(mock, SESClientConfig{})

			_, err := client.Send(context.Background(), sampleSendInput())
			if err == nil {
				t.Fatal("expected error")
			}

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %T", err)
			}
			if appErr.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, appErr.Code)
			}
		})
	}
}
