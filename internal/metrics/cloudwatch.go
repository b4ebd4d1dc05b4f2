// Package metrics emits digest delivery telemetry to AWS CloudWatch.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"puretrack/internal/types"
)

// Namespace is the CloudWatch namespace for all digest engine metrics.
const Namespace = "PureTrack/Digests"

// Metric and dimension names.
const (
	metricDeliveryAttempt = "DigestDeliveryAttempt"
	metricDeliveryLatency = "DigestDeliveryLatency"
	dimResult             = "Result"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchSendMetrics publishes digest send telemetry to CloudWatch.
// Publish failures are logged and swallowed; metrics never block delivery.
//
// Metrics emitted:
//   - DigestDeliveryAttempt: Dims {Result: sent|failed|skipped}
//   - DigestDeliveryLatency: no dims, milliseconds per attempt
type CloudWatchSendMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchSendMetrics creates a CloudWatchSendMetrics publishing to the
// default namespace.
func NewCloudWatchSendMetrics(client CloudWatchClient, logger types.Logger) *CloudWatchSendMetrics {
	return &CloudWatchSendMetrics{
		client:    client,
		namespace: Namespace,
		logger:    logger,
	}
}

// RecordDelivery emits a DigestDeliveryAttempt count with the Result
// dimension.
func (m *CloudWatchSendMetrics) RecordDelivery(ctx context.Context, result string) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDeliveryAttempt),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(dimResult),
						Value: aws.String(result),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record delivery metric",
			"error", err.Error(),
			"result", result,
		)
	}
}

// RecordLatency emits the wall time of one delivery attempt in
// milliseconds.
func (m *CloudWatchSendMetrics) RecordLatency(ctx context.Context, d time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDeliveryLatency),
				Value:      aws.Float64(float64(d.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record latency metric",
			"error", err.Error(),
			"latency_ms", d.Milliseconds(),
		)
	}
}

// NoopSendMetrics discards all telemetry. Used when metrics are disabled
// and in tests.
type NoopSendMetrics struct{}

func (NoopSendMetrics) RecordDelivery(ctx context.Context, result string) {}

func (NoopSendMetrics) RecordLatency(ctx context.Context, d time.Duration) {}
