package experiment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brandworks/social-automation/publication-governor/internal/publisher"
	"github.com/brandworks/social-automation/publication-governor/internal/safety"
)

// PublishGate is the pause check consulted before each variant post.
type PublishGate interface {
	RequireActive(ctx context.Context, agentName string) error
}

// ContentFilter is the brand-safety check applied to each variant.
type ContentFilter interface {
	CheckSafety(ctx context.Context, text, campaignID string) safety.SafetyResult
}

// MetricsRecorder receives experiment telemetry. Optional.
type MetricsRecorder interface {
	RecordExperimentStarted(ctx context.Context, campaignID string)
	RecordExperimentCompleted(ctx context.Context, campaignID string, duration time.Duration)
	RecordExperimentFailed(ctx context.Context, campaignID string, duration time.Duration)
	RecordVariantPost(ctx context.Context, campaignID string, posted bool)
	RecordGateBlock(ctx context.Context, agentName string)
}

// Config tunes experiment runs.
type Config struct {
	AgentName           string
	MaxVariants         int
	PostSpacing         time.Duration
	EvaluationWindow    time.Duration
	EngagementThreshold float64 // reserved: accepted but not consulted in winner selection
}

// Orchestrator runs multi-variant content experiments: it posts
// variants with a configured spacing, waits out an evaluation window,
// scores each posted variant, and declares a winner.
type Orchestrator struct {
	store   Store
	gate    PublishGate
	filter  ContentFilter
	pub     publisher.Publisher
	perf    publisher.PerformanceFetcher
	cfg     Config
	logger  *logrus.Logger
	metrics MetricsRecorder
	bus     *eventBus

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewOrchestrator creates an experiment orchestrator.
func NewOrchestrator(store Store, g PublishGate, f ContentFilter, pub publisher.Publisher, perf publisher.PerformanceFetcher, cfg Config, logger *logrus.Logger) *Orchestrator {
	if cfg.AgentName == "" {
		cfg.AgentName = "TwitterAgent"
	}
	if cfg.MaxVariants <= 0 {
		cfg.MaxVariants = 3
	}
	return &Orchestrator{
		store:   store,
		gate:    g,
		filter:  f,
		pub:     pub,
		perf:    perf,
		cfg:     cfg,
		logger:  logger,
		bus:     newEventBus(),
		cancels: make(map[string]context.CancelFunc),
	}
}

// SetMetrics attaches a telemetry recorder.
func (o *Orchestrator) SetMetrics(m MetricsRecorder) {
	o.metrics = m
}

// Subscribe streams lifecycle events for one experiment. The returned
// func must be called to release the subscription.
func (o *Orchestrator) Subscribe(experimentID string) (<-chan Event, func()) {
	return o.bus.subscribe(experimentID)
}

// RunExperiment posts the given content variants for a campaign,
// evaluates them, and returns the winning content. A failed experiment
// never surfaces as an error: the caller always gets usable content
// back, degrading to the first original variant. Only validation and
// creation problems raise, and only before any posting begins.
func (o *Orchestrator) RunExperiment(ctx context.Context, contents []string, campaignID string) (string, error) {
	exp, fallback, err := o.begin(ctx, contents, campaignID)
	if err != nil {
		return "", err
	}
	return o.execute(ctx, exp, fallback), nil
}

// Start begins an experiment asynchronously and returns its ID. The
// run continues in the background; progress is observable through
// Subscribe and the query surface.
func (o *Orchestrator) Start(ctx context.Context, contents []string, campaignID string) (string, error) {
	exp, fallback, err := o.begin(ctx, contents, campaignID)
	if err != nil {
		return "", err
	}
	go o.execute(context.Background(), exp, fallback)
	return exp.ID, nil
}

// begin validates input and creates the experiment record in the
// running state.
func (o *Orchestrator) begin(ctx context.Context, contents []string, campaignID string) (*Experiment, string, error) {
	if len(contents) == 0 {
		return nil, "", errors.New("at least one content variant is required")
	}
	if campaignID == "" {
		return nil, "", errors.New("campaign id is required")
	}
	if len(contents) > o.cfg.MaxVariants {
		o.logger.WithFields(logrus.Fields{
			"campaign": campaignID,
			"supplied": len(contents),
			"cap":      o.cfg.MaxVariants,
		}).Warn("Variant count exceeds cap, truncating")
		contents = contents[:o.cfg.MaxVariants]
	}
	fallback := contents[0]

	exp := &Experiment{
		ID:         uuid.New().String(),
		CampaignID: campaignID,
		Status:     StatusRunning,
		StartedAt:  time.Now().UTC(),
		Metrics:    make(map[string]publisher.PerformanceMetrics),
		Scores:     make(map[string]float64),
	}
	for i, content := range contents {
		exp.Variants = append(exp.Variants, Variant{
			ID:          uuid.New().String(),
			Content:     content,
			SuffixLabel: variantLabel(i),
		})
	}

	if err := o.store.Create(ctx, exp); err != nil {
		return nil, "", fmt.Errorf("failed to create experiment: %w", err)
	}
	if o.metrics != nil {
		o.metrics.RecordExperimentStarted(ctx, campaignID)
	}
	o.logger.WithFields(logrus.Fields{
		"experiment": exp.ID,
		"campaign":   campaignID,
		"variants":   len(exp.Variants),
	}).Info("Experiment started")

	return exp, fallback, nil
}

// execute drives a created experiment to a terminal state and returns
// the winning content, or the fallback on any failure.
func (o *Orchestrator) execute(ctx context.Context, exp *Experiment, fallback string) string {
	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancels[exp.ID] = cancel
	o.mu.Unlock()
	defer func() {
		cancel()
		o.mu.Lock()
		delete(o.cancels, exp.ID)
		o.mu.Unlock()
	}()

	winner, err := o.run(runCtx, exp)
	if err != nil {
		o.fail(exp, err.Error())
		return fallback
	}
	if winner == nil {
		o.fail(exp, "no variants were successfully posted")
		return fallback
	}

	o.complete(exp, winner)
	return winner.Content
}

// Get fetches a single experiment's full record.
func (o *Orchestrator) Get(ctx context.Context, id string) (*Experiment, error) {
	return o.store.Get(ctx, id)
}

// ListByCampaign returns a campaign's experiments, newest first.
func (o *Orchestrator) ListByCampaign(ctx context.Context, campaignID string) ([]*Experiment, error) {
	return o.store.ListByCampaign(ctx, campaignID)
}

// ListRunning returns all currently running experiments.
func (o *Orchestrator) ListRunning(ctx context.Context) ([]*Experiment, error) {
	return o.store.ListRunning(ctx)
}

// Cancel aborts a running experiment. A no-op when the experiment is
// already terminal.
func (o *Orchestrator) Cancel(ctx context.Context, experimentID string) error {
	exp, err := o.store.Get(ctx, experimentID)
	if err != nil {
		return err
	}
	if exp.Terminal() {
		return nil
	}

	o.mu.Lock()
	cancel := o.cancels[experimentID]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	now := time.Now().UTC()
	exp.Status = StatusFailed
	exp.CompletedAt = &now
	if err := o.store.Update(ctx, exp); err != nil {
		return fmt.Errorf("failed to mark experiment cancelled: %w", err)
	}

	o.bus.publish(Event{ExperimentID: experimentID, Type: EventFailed, Detail: "cancelled", Timestamp: now})
	o.logger.WithField("experiment", experimentID).Warn("Experiment cancelled")
	return nil
}

// run executes the posting and evaluation phases. It returns the
// winning variant, nil when nothing was posted, or an error on
// cancellation or unrecoverable failure.
func (o *Orchestrator) run(ctx context.Context, exp *Experiment) (*Variant, error) {
	// Posting phase: strictly in supplied order, spaced, with the gate
	// and safety filter re-checked per variant. One variant failing to
	// post never aborts the experiment.
	for i := range exp.Variants {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("experiment interrupted: %w", err)
		}

		v := &exp.Variants[i]
		o.postVariant(ctx, exp, v)
		o.persist(ctx, exp)

		if i < len(exp.Variants)-1 {
			if err := o.wait(ctx, o.cfg.PostSpacing); err != nil {
				return nil, fmt.Errorf("experiment interrupted: %w", err)
			}
		}
	}

	o.bus.publish(Event{ExperimentID: exp.ID, Type: EventEvaluationStarted, Timestamp: time.Now().UTC()})
	if err := o.wait(ctx, o.cfg.EvaluationWindow); err != nil {
		return nil, fmt.Errorf("experiment interrupted: %w", err)
	}

	// Evaluation phase: only variants that completed posting are scored.
	for _, v := range exp.Variants {
		if !v.Posted {
			continue
		}
		m, err := o.perf.FetchPerformance(ctx, v.ExternalPostID, exp.CampaignID)
		if err != nil {
			if errors.Is(err, publisher.ErrMetricsNotReady) {
				o.logger.WithField("variant", v.ID).Debug("Metrics not yet available, scoring as zero")
			} else {
				o.logger.WithError(err).WithField("variant", v.ID).Warn("Failed to fetch metrics, scoring as zero")
			}
			m = &publisher.PerformanceMetrics{}
		}
		exp.Metrics[v.ID] = *m
		exp.Scores[v.ID] = EngagementScore(*m)
	}

	ranked := rankVariants(exp.Variants, exp.Metrics)
	if len(ranked) == 0 {
		return nil, nil
	}
	winner := ranked[0].variant
	return &winner, nil
}

// postVariant runs the per-variant gate and safety checks, then posts.
func (o *Orchestrator) postVariant(ctx context.Context, exp *Experiment, v *Variant) {
	if err := o.gate.RequireActive(ctx, o.cfg.AgentName); err != nil {
		if o.metrics != nil {
			o.metrics.RecordGateBlock(ctx, o.cfg.AgentName)
		}
		o.skipVariant(ctx, exp, v, fmt.Sprintf("gate blocked post: %v", err))
		return
	}

	text := v.Content
	result := o.filter.CheckSafety(ctx, text, exp.CampaignID)
	if !result.IsSafe {
		if result.Revision == "" {
			rejection := &safety.UnsafeContentError{FlaggedTerms: result.FlaggedTerms}
			o.skipVariant(ctx, exp, v, rejection.Error())
			return
		}
		text = result.Revision
	}

	post, err := o.pub.Publish(ctx, labeledText(text, v.SuffixLabel))
	if err != nil {
		o.skipVariant(ctx, exp, v, fmt.Sprintf("post failed: %v", err))
		return
	}

	v.Posted = true
	v.ExternalPostID = post.ExternalPostID
	postedAt := post.PostedAt
	v.PostedAt = &postedAt

	if o.metrics != nil {
		o.metrics.RecordVariantPost(ctx, exp.CampaignID, true)
	}
	o.bus.publish(Event{ExperimentID: exp.ID, Type: EventVariantPosted, VariantID: v.ID, Timestamp: time.Now().UTC()})
	o.logger.WithFields(logrus.Fields{
		"experiment": exp.ID,
		"variant":    v.ID,
		"label":      v.SuffixLabel,
		"post_id":    post.ExternalPostID,
	}).Info("Variant posted")
}

func (o *Orchestrator) skipVariant(ctx context.Context, exp *Experiment, v *Variant, reason string) {
	v.Posted = false
	if o.metrics != nil {
		o.metrics.RecordVariantPost(ctx, exp.CampaignID, false)
	}
	o.bus.publish(Event{ExperimentID: exp.ID, Type: EventVariantSkipped, VariantID: v.ID, Detail: reason, Timestamp: time.Now().UTC()})
	o.logger.WithFields(logrus.Fields{
		"experiment": exp.ID,
		"variant":    v.ID,
		"reason":     reason,
	}).Warn("Variant not posted")
}

// wait blocks for d or until the run is cancelled. Long experiment
// delays must stay interruptible, so this is a timer select rather
// than a sleep.
func (o *Orchestrator) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// persist best-effort updates the stored record mid-run.
func (o *Orchestrator) persist(ctx context.Context, exp *Experiment) {
	if err := o.store.Update(ctx, exp); err != nil {
		o.logger.WithError(err).WithField("experiment", exp.ID).Error("Failed to persist experiment progress")
	}
}

func (o *Orchestrator) complete(exp *Experiment, winner *Variant) {
	ctx := context.Background()
	if cur, err := o.store.Get(ctx, exp.ID); err == nil && cur.Terminal() {
		// Cancelled while the last evaluation step was finishing;
		// terminal states are final.
		return
	}

	now := time.Now().UTC()
	exp.Winner = winner
	exp.Status = StatusCompleted
	exp.CompletedAt = &now
	o.persist(ctx, exp)

	if o.metrics != nil {
		o.metrics.RecordExperimentCompleted(ctx, exp.CampaignID, now.Sub(exp.StartedAt))
	}
	o.bus.publish(Event{ExperimentID: exp.ID, Type: EventWinnerSelected, VariantID: winner.ID, Timestamp: now})
	o.bus.publish(Event{ExperimentID: exp.ID, Type: EventCompleted, Timestamp: now})
	o.logger.WithFields(logrus.Fields{
		"experiment": exp.ID,
		"winner":     winner.ID,
		"score":      exp.Scores[winner.ID],
	}).Info("Experiment completed")
}

func (o *Orchestrator) fail(exp *Experiment, reason string) {
	ctx := context.Background()
	if cur, err := o.store.Get(ctx, exp.ID); err == nil && cur.Terminal() {
		return
	}

	now := time.Now().UTC()
	exp.Status = StatusFailed
	exp.CompletedAt = &now
	o.persist(ctx, exp)

	if o.metrics != nil {
		o.metrics.RecordExperimentFailed(ctx, exp.CampaignID, now.Sub(exp.StartedAt))
	}
	o.bus.publish(Event{ExperimentID: exp.ID, Type: EventFailed, Detail: reason, Timestamp: now})
	o.logger.WithFields(logrus.Fields{
		"experiment": exp.ID,
		"reason":     reason,
	}).Error("Experiment failed")
}

// variantLabel returns the display suffix for the i-th variant,
// falling back to letters beyond the predefined set and to numbered
// labels past Z.
func variantLabel(i int) string {
	if i < 26 {
		return fmt.Sprintf("(%c)", 'A'+i)
	}
	return fmt.Sprintf("(V%d)", i+1)
}

// labeledText appends the variant label, truncating the base text if
// needed so the combined text stays under the platform limit. The cut
// lands on a rune boundary so multi-byte text stays valid UTF-8.
func labeledText(text, label string) string {
	suffix := " " + label
	limit := publisher.MaxPostLength - len(suffix)
	if len(text) > limit {
		for limit > 0 && !utf8.RuneStart(text[limit]) {
			limit--
		}
		text = strings.TrimRight(text[:limit], " ")
	}
	return text + suffix
}
