package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names published to CloudWatch.
const (
	MetricPoints          = "Points"
	MetricCacheHits       = "CacheHits"
	MetricFetched         = "Fetched"
	MetricFetchFailures   = "FetchFailures"
	MetricErrorRows       = "ErrorRows"
	MetricGoodPercent     = "GoodPercent"
	MetricMarginalPercent = "MarginalPercent"
	MetricBadPercent      = "BadPercent"
	MetricRunDuration     = "RunDuration"

	DimNetwork = "Network"
)

// RunSummary is the end-of-run totals shared by the Prometheus and
// CloudWatch sinks.
type RunSummary struct {
	Network         string
	Points          int
	Towers          int
	CacheHits       int
	Fetched         int
	FetchFailures   int
	ErrorRows       int
	GoodPercent     float64
	MarginalPercent float64
	BadPercent      float64
	Duration        time.Duration
	FinishedAt      time.Time
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchPublisher emits a run summary as one PutMetricData call with a
// Network dimension on every datum.
type CloudWatchPublisher struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchPublisher creates a publisher for the given namespace.
func NewCloudWatchPublisher(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchPublisher{client: client, namespace: namespace, logger: logger}
}

// NewCloudWatchPublisherFromEnv loads the default AWS credential chain for
// region and returns a publisher backed by a real CloudWatch client.
func NewCloudWatchPublisherFromEnv(ctx context.Context, region, namespace string, logger *slog.Logger) (*CloudWatchPublisher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewCloudWatchPublisher(cloudwatch.NewFromConfig(cfg), namespace, logger), nil
}

// Publish sends the summary. Failures are logged, never returned.
func (p *CloudWatchPublisher) Publish(ctx context.Context, s RunSummary) {
	dims := []cwtypes.Dimension{{
		Name:  aws.String(DimNetwork),
		Value: aws.String(s.Network),
	}}
	stamp := s.FinishedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}

	datum := func(name string, v float64, unit cwtypes.StandardUnit) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(v),
			Unit:       unit,
			Timestamp:  aws.Time(stamp),
			Dimensions: dims,
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{
			datum(MetricPoints, float64(s.Points), cwtypes.StandardUnitCount),
			datum(MetricCacheHits, float64(s.CacheHits), cwtypes.StandardUnitCount),
			datum(MetricFetched, float64(s.Fetched), cwtypes.StandardUnitCount),
			datum(MetricFetchFailures, float64(s.FetchFailures), cwtypes.StandardUnitCount),
			datum(MetricErrorRows, float64(s.ErrorRows), cwtypes.StandardUnitCount),
			datum(MetricGoodPercent, s.GoodPercent, cwtypes.StandardUnitPercent),
			datum(MetricMarginalPercent, s.MarginalPercent, cwtypes.StandardUnitPercent),
			datum(MetricBadPercent, s.BadPercent, cwtypes.StandardUnitPercent),
			datum(MetricRunDuration, s.Duration.Seconds(), cwtypes.StandardUnitSeconds),
		},
	}

	if _, err := p.client.PutMetricData(ctx, input); err != nil {
		p.logger.Error("failed to publish run metrics",
			"error", err.Error(),
			"network", s.Network,
		)
	}
}
