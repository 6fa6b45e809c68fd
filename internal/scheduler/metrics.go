package scheduler

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"backburner/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertion that CloudWatchRunMetrics satisfies RunMetrics.
var _ RunMetrics = (*CloudWatchRunMetrics)(nil)

// CloudWatchRunMetrics exports run reports as CloudWatch metrics so
// dashboards and alarms can track run health without parsing logs.
type CloudWatchRunMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchRunMetrics creates a publisher targeting the given namespace.
func NewCloudWatchRunMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRunMetrics {
	return &CloudWatchRunMetrics{client: client, namespace: namespace, logger: logger}
}

// PublishRunReport emits one datum per report counter in a single call.
func (m *CloudWatchRunMetrics) PublishRunReport(ctx context.Context, report types.RunReport) error {
	counters := []struct {
		name  string
		value int
	}{
		{"TotalUsers", report.TotalUsers},
		{"ProcessedUsers", report.ProcessedUsers},
		{"CandidatesSelected", report.TotalCandidates},
		{"EventsCreated", report.EventsCreated},
		{"SkippedRecentlyResurfaced", report.SkippedRecent},
		{"NotificationsAttempted", report.NotificationsAttempted},
		{"NotificationsDelivered", report.NotificationsDelivered},
		{"NotificationsFailed", report.NotificationsFailed},
	}

	data := make([]cwtypes.MetricDatum, 0, len(counters))
	for _, c := range counters {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(c.name),
			Value:      aws.Float64(float64(c.value)),
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  aws.Time(report.CompletedAt),
		})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.Error("failed to publish run metrics", "error", err)
		return err
	}

	return nil
}
