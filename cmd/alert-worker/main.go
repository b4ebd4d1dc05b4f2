// Package main is the entrypoint for the Alert Worker Lambda function.
//
// The Alert Worker consumes raw alert events from the alert event SQS queue
// and folds each one into its recipient's daily digest through the
// aggregator. Each invocation receives a batch of SQS messages; messages
// that fail to merge are reported as partial batch failures so SQS retries
// only those.
//
// Cold Start (main):
//  1. Initialize structured logger.
//  2. Load process configuration and AWS SDK configuration.
//  3. Connect the Postgres pool and build the digest repository.
//  4. Build the aggregator and register the handler with lambda.Start.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"

	"puretrack/internal/config"
	"puretrack/internal/db"
	"puretrack/internal/digest"
	"puretrack/internal/types"
)

// Handler holds the dependencies for the alert worker Lambda handler.
type Handler struct {
	aggregator *digest.Aggregator
	validate   *validator.Validate
	logger     types.Logger
}

// NewHandler creates a Handler.
func NewHandler(aggregator *digest.Aggregator, logger types.Logger) *Handler {
	if logger == nil {
		logger = types.NewSlogLogger(nil)
	}
	return &Handler{
		aggregator: aggregator,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger,
	}
}

// Handle processes an SQS event containing one or more alert event messages.
// Lambda SQS integration uses partial batch responses: messages that fail
// processing are returned in batchItemFailures so SQS can retry them.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			// Report partial failure so SQS retries only this message.
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage merges a single queued alert event into its digest.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var msg types.AlertEventMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("failed to unmarshal alert event message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		// Permanent parse failure - do not retry (return nil to ACK).
		return nil
	}

	logger := h.logger.With(
		"trace_id", msg.TraceID,
		"event_id", msg.Event.EventID,
		"recipient_uid", msg.Event.RecipientUID,
	)

	// Malformed events can never merge, so retrying them only churns the
	// queue. ACK and let the trace log tell the story.
	if err := h.validate.Struct(msg.Event); err != nil {
		logger.Error("dropping invalid alert event", "error", err.Error())
		return nil
	}

	d, err := h.aggregator.MergeAlert(ctx, msg.Event)
	if err != nil {
		return err
	}

	logger.Info("alert event merged",
		"digest_id", d.ID,
		"category", d.Category,
		"item_count", len(d.Items),
	)
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("Alert Worker Lambda initializing (cold start)")

	typedLogger := types.NewSlogLogger(logger)

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}

	digestRepo := db.NewDigestRepository(pool)
	aggregator := digest.NewAggregator(digestRepo, types.RealClock{}, typedLogger)
	handler := NewHandler(aggregator, typedLogger)

	logger.Info("Alert Worker Lambda initialized",
		"alert_queue", cfg.AWS.AlertEventQueue,
		"environment", cfg.Environment,
	)

	// Local mode: read JSON SQS event from stdin instead of starting the
	// Lambda runtime. This enables local integration testing without the
	// AWS Lambda RIE.
	// Usage: echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | go run cmd/alert-worker/main.go
	if os.Getenv("APP_ENV") == "local" {
		logger.Info("APP_ENV=local: reading SQS event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("failed to read stdin", "error", err)
			os.Exit(1)
		}
		if len(payload) == 0 {
			logger.Error("no input received on stdin")
			os.Exit(1)
		}
		var sqsEvent events.SQSEvent
		if err := json.Unmarshal(payload, &sqsEvent); err != nil {
			logger.Error("failed to parse stdin as SQS event", "error", err)
			os.Exit(1)
		}
		response, err := handler.Handle(ctx, sqsEvent)
		if err != nil {
			logger.Error("handler execution failed", "error", err)
			os.Exit(1)
		}
		if len(response.BatchItemFailures) > 0 {
			respJSON, _ := json.MarshalIndent(response, "", "  ")
			fmt.Fprintln(os.Stderr, string(respJSON))
		}
		logger.Info("handler execution completed",
			"records_processed", len(sqsEvent.Records),
			"failures", len(response.BatchItemFailures),
		)
		return
	}

	lambda.Start(handler.Handle)
}
