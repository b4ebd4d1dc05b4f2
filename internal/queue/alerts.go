// Package queue provides the SQS-based producer that dispatches raw alert
// events from the ingest API to the aggregation worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"puretrack/internal/config"
	"puretrack/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// AlertPublisher wraps a validated RawAlertEvent in an AlertEventMessage
// envelope and enqueues it for the aggregation worker. The API never writes
// digests directly; all aggregation flows through the queue so that burst
// ingest cannot stall request handling.
type AlertPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewAlertPublisher creates an AlertPublisher targeting the alert event
// queue configured in AWSConfig.
func NewAlertPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *AlertPublisher {
	return &AlertPublisher{
		client:   client,
		queueURL: awsCfg.AlertEventQueue,
		logger:   logger,
	}
}

// Publish enqueues a single alert event. The assigned trace ID is returned
// so the ingest handler can echo it to the caller for correlation. If the
// request context already carries a request ID, that ID becomes the trace
// ID; otherwise a fresh UUID is generated.
func (p *AlertPublisher) Publish(ctx context.Context, event types.RawAlertEvent) (string, error) {
	traceID := types.GetRequestID(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
	}

	msg := types.AlertEventMessage{
		TraceID:    traceID,
		EnqueuedAt: time.Now().UTC(),
		Event:      event,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("queue: failed to marshal AlertEventMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"severity": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Severity)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return "", fmt.Errorf("queue: failed to send alert event to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "alert event enqueued",
		"queue_url", p.queueURL,
		"trace_id", traceID,
		"event_id", event.EventID,
		"recipient_uid", event.RecipientUID,
		"parameter", event.Parameter,
		"severity", string(event.Severity),
	)

	return traceID, nil
}
