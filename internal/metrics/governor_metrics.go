package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("governor-metrics")

// GovernorMetrics provides metrics collection for publication governance
type GovernorMetrics struct {
	experimentsStartedCounter   metric.Int64Counter
	experimentsCompletedCounter metric.Int64Counter
	experimentsFailedCounter    metric.Int64Counter
	experimentDurationHistogram metric.Float64Histogram
	experimentsRunningGauge     metric.Int64UpDownCounter
	variantPostsCounter         metric.Int64Counter
	safetyChecksCounter         metric.Int64Counter
	gateBlocksCounter           metric.Int64Counter
}

// NewGovernorMetrics creates a new governor metrics collector
func NewGovernorMetrics() (*GovernorMetrics, error) {
	experimentsStartedCounter, err := meter.Int64Counter(
		"publication_governor.experiments.started",
		metric.WithDescription("Total number of experiments started"),
		metric.WithUnit("{experiment}"),
	)
	if err != nil {
		return nil, err
	}

	experimentsCompletedCounter, err := meter.Int64Counter(
		"publication_governor.experiments.completed",
		metric.WithDescription("Total number of experiments completed with a winner"),
		metric.WithUnit("{experiment}"),
	)
	if err != nil {
		return nil, err
	}

	experimentsFailedCounter, err := meter.Int64Counter(
		"publication_governor.experiments.failed",
		metric.WithDescription("Total number of experiments that failed or were cancelled"),
		metric.WithUnit("{experiment}"),
	)
	if err != nil {
		return nil, err
	}

	experimentDurationHistogram, err := meter.Float64Histogram(
		"publication_governor.experiment.duration",
		metric.WithDescription("Duration of experiment runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	experimentsRunningGauge, err := meter.Int64UpDownCounter(
		"publication_governor.experiments.running",
		metric.WithDescription("Number of currently running experiments"),
		metric.WithUnit("{experiment}"),
	)
	if err != nil {
		return nil, err
	}

	variantPostsCounter, err := meter.Int64Counter(
		"publication_governor.variants.posts",
		metric.WithDescription("Total number of variant post attempts"),
		metric.WithUnit("{post}"),
	)
	if err != nil {
		return nil, err
	}

	safetyChecksCounter, err := meter.Int64Counter(
		"publication_governor.safety.checks",
		metric.WithDescription("Total number of safety filter checks"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	gateBlocksCounter, err := meter.Int64Counter(
		"publication_governor.gate.blocks",
		metric.WithDescription("Total number of posts blocked by the pause gate"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return nil, err
	}

	return &GovernorMetrics{
		experimentsStartedCounter:   experimentsStartedCounter,
		experimentsCompletedCounter: experimentsCompletedCounter,
		experimentsFailedCounter:    experimentsFailedCounter,
		experimentDurationHistogram: experimentDurationHistogram,
		experimentsRunningGauge:     experimentsRunningGauge,
		variantPostsCounter:         variantPostsCounter,
		safetyChecksCounter:         safetyChecksCounter,
		gateBlocksCounter:           gateBlocksCounter,
	}, nil
}

// RecordExperimentStarted records a new experiment launch
func (gm *GovernorMetrics) RecordExperimentStarted(ctx context.Context, campaignID string) {
	gm.experimentsStartedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("campaign.id", campaignID),
		),
	)
	gm.experimentsRunningGauge.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("campaign.id", campaignID),
		),
	)
}

// RecordExperimentCompleted records an experiment finishing with a winner
func (gm *GovernorMetrics) RecordExperimentCompleted(ctx context.Context, campaignID string, duration time.Duration) {
	gm.experimentsCompletedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("campaign.id", campaignID),
			attribute.String("status", "completed"),
		),
	)
	gm.experimentDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("campaign.id", campaignID),
			attribute.String("status", "completed"),
		),
	)
	gm.experimentsRunningGauge.Add(ctx, -1,
		metric.WithAttributes(
			attribute.String("campaign.id", campaignID),
		),
	)
}

// RecordExperimentFailed records a failed or cancelled experiment
func (gm *GovernorMetrics) RecordExperimentFailed(ctx context.Context, campaignID string, duration time.Duration) {
	gm.experimentsFailedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("campaign.id", campaignID),
			attribute.String("status", "failed"),
		),
	)
	gm.experimentDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("campaign.id", campaignID),
			attribute.String("status", "failed"),
		),
	)
	gm.experimentsRunningGauge.Add(ctx, -1,
		metric.WithAttributes(
			attribute.String("campaign.id", campaignID),
		),
	)
}

// RecordVariantPost records one variant post attempt
func (gm *GovernorMetrics) RecordVariantPost(ctx context.Context, campaignID string, posted bool) {
	outcome := "posted"
	if !posted {
		outcome = "skipped"
	}
	gm.variantPostsCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("campaign.id", campaignID),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordSafetyCheck records a safety filter decision
func (gm *GovernorMetrics) RecordSafetyCheck(ctx context.Context, action string) {
	gm.safetyChecksCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
		),
	)
}

// RecordGateBlock records a post blocked by a paused agent flag
func (gm *GovernorMetrics) RecordGateBlock(ctx context.Context, agentName string) {
	gm.gateBlocksCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("agent.name", agentName),
		),
	)
}
