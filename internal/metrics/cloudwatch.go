// Package metrics emits operational metrics for the payment API to AWS
// CloudWatch.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"cprtrainer/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metric and dimension names.
const (
	MetricRequestCount   = "RequestCount"
	MetricRequestLatency = "RequestLatency"
	MetricWebhookEvent   = "WebhookEvent"

	DimMethod   = "Method"
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"
	DimEvent    = "Event"
	DimResult   = "Result"
)

// CloudWatchCollector publishes request and webhook metrics to CloudWatch.
// It satisfies the core server's MetricsCollector interface.
//
// Metrics emitted:
//   - RequestCount: Dims {Method, Endpoint, Status} -- on every request
//   - RequestLatency: Dims {Method, Endpoint} -- request duration in ms
//   - WebhookEvent: Dims {Event, Result} -- on every webhook dispatch
type CloudWatchCollector struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchCollector creates a collector that publishes to the specified
// CloudWatch namespace.
func NewCloudWatchCollector(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchCollector {
	return &CloudWatchCollector{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRequest emits a count and latency datum for one handled HTTP request.
// Publish failures are logged and swallowed; metrics never fail a request.
func (m *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricRequestCount),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(DimMethod), Value: aws.String(method)},
					{Name: aws.String(DimEndpoint), Value: aws.String(endpoint)},
					{Name: aws.String(DimStatus), Value: aws.String(status)},
				},
			},
			{
				MetricName: aws.String(MetricRequestLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(DimMethod), Value: aws.String(method)},
					{Name: aws.String(DimEndpoint), Value: aws.String(endpoint)},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(context.Background(), input); err != nil {
		m.logger.Error("failed to record request metrics",
			"error", err.Error(),
			"method", method,
			"endpoint", endpoint,
			"status", status,
		)
	}
}

// RecordWebhookEvent emits a count datum for one dispatched webhook event.
func (m *CloudWatchCollector) RecordWebhookEvent(ctx context.Context, eventType string, result string) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricWebhookEvent),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(DimEvent), Value: aws.String(eventType)},
					{Name: aws.String(DimResult), Value: aws.String(result)},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record webhook metric",
			"error", err.Error(),
			"event_type", eventType,
			"result", result,
		)
	}
}

// NoopCollector discards all metrics. Used when ENABLE_METRICS is false or
// in local development.
type NoopCollector struct{}

func (NoopCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {}

func (NoopCollector) RecordWebhookEvent(ctx context.Context, eventType string, result string) {}
