package experiment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandworks/social-automation/publication-governor/internal/publisher"
	"github.com/brandworks/social-automation/publication-governor/internal/safety"
)

type fakeGate struct {
	err error
}

func (g *fakeGate) RequireActive(ctx context.Context, agentName string) error {
	return g.err
}

type fakeFilter struct {
	unsafeTerm string
	revision   string
}

func (f *fakeFilter) CheckSafety(ctx context.Context, text, campaignID string) safety.SafetyResult {
	if f.unsafeTerm != "" && strings.Contains(strings.ToLower(text), f.unsafeTerm) {
		return safety.SafetyResult{
			IsSafe:       false,
			FlaggedTerms: []string{f.unsafeTerm},
			Confidence:   0.8,
			Revision:     f.revision,
		}
	}
	return safety.SafetyResult{IsSafe: true, Confidence: 1.0}
}

type fakePublisher struct {
	mu       sync.Mutex
	posts    []string
	failWhen func(content string) error
}

func (p *fakePublisher) Publish(ctx context.Context, content string) (*publisher.PostResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWhen != nil {
		if err := p.failWhen(content); err != nil {
			return nil, err
		}
	}
	p.posts = append(p.posts, content)
	return &publisher.PostResult{
		ExternalPostID: fmt.Sprintf("post-%d", len(p.posts)),
		PostedAt:       time.Now().UTC(),
	}, nil
}

func (p *fakePublisher) posted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.posts...)
}

type fakePerf struct {
	metrics map[string]publisher.PerformanceMetrics
	err     error
}

func (f *fakePerf) FetchPerformance(ctx context.Context, postID, campaignID string) (*publisher.PerformanceMetrics, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.metrics[postID]
	if !ok {
		return nil, publisher.ErrMetricsNotReady
	}
	return &m, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestOrchestrator(cfg Config, pub *fakePublisher, perf *fakePerf) (*Orchestrator, *MemoryStore) {
	store := NewMemoryStore()
	o := NewOrchestrator(store, &fakeGate{}, &fakeFilter{}, pub, perf, cfg, testLogger())
	return o, store
}

func immediateConfig() Config {
	return Config{AgentName: "TwitterAgent", MaxVariants: 3}
}

func TestRunExperiment_PicksHighestScoringVariant(t *testing.T) {
	// Reference scenario: metrics rank C > A > B.
	pub := &fakePublisher{}
	perf := &fakePerf{metrics: map[string]publisher.PerformanceMetrics{
		"post-1": {Likes: 10, Retweets: 2, Replies: 1, Impressions: 100, EngagementRate: 0.02},
		"post-2": {Likes: 5, Retweets: 1, Replies: 0, Impressions: 50, EngagementRate: 0.01},
		"post-3": {Likes: 20, Retweets: 5, Replies: 3, Impressions: 500, EngagementRate: 0.05},
	}}
	o, store := newTestOrchestrator(immediateConfig(), pub, perf)

	winner, err := o.RunExperiment(context.Background(), []string{"variant A", "variant B", "variant C"}, "campaign-1")
	require.NoError(t, err)
	assert.Equal(t, "variant C", winner)

	// All three were posted, in order, with their labels.
	posts := pub.posted()
	require.Len(t, posts, 3)
	assert.Equal(t, "variant A (A)", posts[0])
	assert.Equal(t, "variant B (B)", posts[1])
	assert.Equal(t, "variant C (C)", posts[2])

	exps, err := store.ListByCampaign(context.Background(), "campaign-1")
	require.NoError(t, err)
	require.Len(t, exps, 1)
	exp := exps[0]
	assert.Equal(t, StatusCompleted, exp.Status)
	require.NotNil(t, exp.Winner)
	assert.Equal(t, "variant C", exp.Winner.Content)
	assert.NotNil(t, exp.CompletedAt)
	assert.Len(t, exp.Scores, 3)
}

func TestRunExperiment_PartialPostResilience(t *testing.T) {
	// Variant 2 of 3 fails to post; 1 and 3 are still evaluated.
	pub := &fakePublisher{failWhen: func(content string) error {
		if strings.Contains(content, "variant B") {
			return &publisher.RejectedError{StatusCode: 403, Detail: "duplicate"}
		}
		return nil
	}}
	perf := &fakePerf{metrics: map[string]publisher.PerformanceMetrics{
		"post-1": {Likes: 3, Retweets: 0, Replies: 0, Impressions: 200, EngagementRate: 0.01},
		"post-2": {Likes: 50, Retweets: 10, Replies: 5, Impressions: 900, EngagementRate: 0.08},
	}}
	o, store := newTestOrchestrator(immediateConfig(), pub, perf)

	winner, err := o.RunExperiment(context.Background(), []string{"variant A", "variant B", "variant C"}, "campaign-1")
	require.NoError(t, err)
	assert.Equal(t, "variant C", winner)

	exps, _ := store.ListByCampaign(context.Background(), "campaign-1")
	exp := exps[0]
	assert.Equal(t, StatusCompleted, exp.Status)
	assert.False(t, exp.Variants[1].Posted)
	// Unposted variants are excluded from scoring entirely.
	_, scored := exp.Scores[exp.Variants[1].ID]
	assert.False(t, scored)
}

func TestRunExperiment_AllPostsFailFallsBackToFirstVariant(t *testing.T) {
	pub := &fakePublisher{failWhen: func(string) error { return errors.New("platform down") }}
	o, store := newTestOrchestrator(immediateConfig(), pub, &fakePerf{})

	winner, err := o.RunExperiment(context.Background(), []string{"variant A", "variant B"}, "campaign-1")
	require.NoError(t, err)
	assert.Equal(t, "variant A", winner)

	exps, _ := store.ListByCampaign(context.Background(), "campaign-1")
	exp := exps[0]
	assert.Equal(t, StatusFailed, exp.Status)
	assert.Nil(t, exp.Winner)
	assert.NotNil(t, exp.CompletedAt)
}

func TestRunExperiment_ValidatesInput(t *testing.T) {
	o, _ := newTestOrchestrator(immediateConfig(), &fakePublisher{}, &fakePerf{})

	_, err := o.RunExperiment(context.Background(), nil, "campaign-1")
	assert.Error(t, err)

	_, err = o.RunExperiment(context.Background(), []string{"a"}, "")
	assert.Error(t, err)
}

func TestRunExperiment_TruncatesToMaxVariants(t *testing.T) {
	pub := &fakePublisher{}
	cfg := immediateConfig()
	cfg.MaxVariants = 2
	o, _ := newTestOrchestrator(cfg, pub, &fakePerf{})

	_, err := o.RunExperiment(context.Background(), []string{"a", "b", "c", "d"}, "campaign-1")
	require.NoError(t, err)
	assert.Len(t, pub.posted(), 2)
}

func TestRunExperiment_GateBlocksVariants(t *testing.T) {
	pub := &fakePublisher{}
	store := NewMemoryStore()
	blocked := &fakeGate{err: errors.New("agent paused: maintenance")}
	o := NewOrchestrator(store, blocked, &fakeFilter{}, pub, &fakePerf{}, immediateConfig(), testLogger())

	winner, err := o.RunExperiment(context.Background(), []string{"variant A", "variant B"}, "campaign-1")
	require.NoError(t, err)
	// Nothing posted, graceful degradation to the first candidate.
	assert.Equal(t, "variant A", winner)
	assert.Empty(t, pub.posted())
}

func TestRunExperiment_SafetyFilterPerVariant(t *testing.T) {
	t.Run("rejection without revision skips the variant", func(t *testing.T) {
		pub := &fakePublisher{}
		store := NewMemoryStore()
		filter := &fakeFilter{unsafeTerm: "shit"}
		perf := &fakePerf{metrics: map[string]publisher.PerformanceMetrics{
			"post-1": {Likes: 1, Impressions: 100},
		}}
		o := NewOrchestrator(store, &fakeGate{}, filter, pub, perf, immediateConfig(), testLogger())

		winner, err := o.RunExperiment(context.Background(), []string{"clean variant", "this is shit"}, "campaign-1")
		require.NoError(t, err)
		assert.Equal(t, "clean variant", winner)
		require.Len(t, pub.posted(), 1)
	})

	t.Run("revision is posted in place of unsafe text", func(t *testing.T) {
		pub := &fakePublisher{}
		store := NewMemoryStore()
		filter := &fakeFilter{unsafeTerm: "shit", revision: "this is disappointing"}
		o := NewOrchestrator(store, &fakeGate{}, filter, pub, &fakePerf{}, immediateConfig(), testLogger())

		_, err := o.RunExperiment(context.Background(), []string{"this is shit"}, "campaign-1")
		require.NoError(t, err)
		require.Len(t, pub.posted(), 1)
		assert.Equal(t, "this is disappointing (A)", pub.posted()[0])
	})
}

func TestRunExperiment_MetricsNotReadyScoresZero(t *testing.T) {
	pub := &fakePublisher{}
	o, store := newTestOrchestrator(immediateConfig(), pub, &fakePerf{})

	winner, err := o.RunExperiment(context.Background(), []string{"variant A", "variant B"}, "campaign-1")
	require.NoError(t, err)
	// All scores are zero; the stable sort keeps the first-posted variant on top.
	assert.Equal(t, "variant A", winner)

	exps, _ := store.ListByCampaign(context.Background(), "campaign-1")
	exp := exps[0]
	assert.Equal(t, StatusCompleted, exp.Status)
	for _, score := range exp.Scores {
		assert.Zero(t, score)
	}
}

func TestCancel_InterruptsWaitingExperiment(t *testing.T) {
	pub := &fakePublisher{}
	cfg := immediateConfig()
	cfg.PostSpacing = time.Hour
	o, store := newTestOrchestrator(cfg, pub, &fakePerf{})

	id, err := o.Start(context.Background(), []string{"variant A", "variant B"}, "campaign-1")
	require.NoError(t, err)

	// Wait until the first variant is posted and the run is inside its
	// spacing wait.
	require.Eventually(t, func() bool {
		return len(pub.posted()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, o.Cancel(context.Background(), id))

	require.Eventually(t, func() bool {
		exp, err := store.Get(context.Background(), id)
		return err == nil && exp.Status == StatusFailed && exp.CompletedAt != nil
	}, 2*time.Second, 10*time.Millisecond)

	// The second variant never posts after cancellation.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, pub.posted(), 1)
}

func TestCancel_NoOpOnTerminalExperiment(t *testing.T) {
	pub := &fakePublisher{}
	o, store := newTestOrchestrator(immediateConfig(), pub, &fakePerf{})

	winner, err := o.RunExperiment(context.Background(), []string{"variant A"}, "campaign-1")
	require.NoError(t, err)
	assert.Equal(t, "variant A", winner)

	exps, _ := store.ListByCampaign(context.Background(), "campaign-1")
	exp := exps[0]
	require.True(t, exp.Terminal())
	completedAt := *exp.CompletedAt

	require.NoError(t, o.Cancel(context.Background(), exp.ID))
	after, _ := store.Get(context.Background(), exp.ID)
	assert.Equal(t, exp.Status, after.Status)
	assert.Equal(t, completedAt, *after.CompletedAt)
}

func TestCancel_UnknownExperiment(t *testing.T) {
	o, _ := newTestOrchestrator(immediateConfig(), &fakePublisher{}, &fakePerf{})
	err := o.Cancel(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrExperimentNotFound)
}

func TestSubscribe_StreamsLifecycleEvents(t *testing.T) {
	pub := &fakePublisher{}
	perf := &fakePerf{metrics: map[string]publisher.PerformanceMetrics{
		"post-1": {Likes: 1, Impressions: 100},
	}}
	cfg := immediateConfig()
	o, _ := newTestOrchestrator(cfg, pub, perf)

	id, err := o.Start(context.Background(), []string{"variant A"}, "campaign-1")
	require.NoError(t, err)

	events, unsubscribe := o.Subscribe(id)
	defer unsubscribe()

	seen := make(map[EventType]bool)
	deadline := time.After(2 * time.Second)
	for !seen[EventCompleted] {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("event channel closed before completion")
			}
			seen[ev.Type] = true
		case <-deadline:
			// The run may have finished before we subscribed; verify
			// terminal state instead of failing outright.
			exp, err := o.Get(context.Background(), id)
			require.NoError(t, err)
			require.True(t, exp.Terminal())
			return
		}
	}
	assert.True(t, seen[EventCompleted])
}

func TestListRunningAndGet(t *testing.T) {
	pub := &fakePublisher{}
	cfg := immediateConfig()
	cfg.PostSpacing = time.Hour
	o, _ := newTestOrchestrator(cfg, pub, &fakePerf{})

	id, err := o.Start(context.Background(), []string{"variant A", "variant B"}, "campaign-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		running, err := o.ListRunning(context.Background())
		return err == nil && len(running) == 1
	}, 2*time.Second, 10*time.Millisecond)

	exp, err := o.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, exp.Status)
	assert.Len(t, exp.Variants, 2)
	assert.Equal(t, "(A)", exp.Variants[0].SuffixLabel)
	assert.Equal(t, "(B)", exp.Variants[1].SuffixLabel)

	require.NoError(t, o.Cancel(context.Background(), id))
}

func TestVariantLabel(t *testing.T) {
	assert.Equal(t, "(A)", variantLabel(0))
	assert.Equal(t, "(B)", variantLabel(1))
	assert.Equal(t, "(Z)", variantLabel(25))
	assert.Equal(t, "(V27)", variantLabel(26))
}

func TestLabeledText_TruncatesBaseNotLabel(t *testing.T) {
	long := strings.Repeat("x", publisher.MaxPostLength)
	labeled := labeledText(long, "(A)")
	assert.LessOrEqual(t, len(labeled), publisher.MaxPostLength)
	assert.True(t, strings.HasSuffix(labeled, " (A)"))
}

func TestLabeledText_MultiByteSafeTruncation(t *testing.T) {
	long := strings.Repeat("限定販売", 100)
	labeled := labeledText(long, "(A)")
	assert.True(t, utf8.ValidString(labeled))
	assert.LessOrEqual(t, len(labeled), publisher.MaxPostLength)
	assert.True(t, strings.HasSuffix(labeled, " (A)"))
}

type fakeMetrics struct {
	mu         sync.Mutex
	gateBlocks []string
	posted     int
	skipped    int
}

func (m *fakeMetrics) RecordExperimentStarted(ctx context.Context, campaignID string) {}

func (m *fakeMetrics) RecordExperimentCompleted(ctx context.Context, campaignID string, d time.Duration) {
}

func (m *fakeMetrics) RecordExperimentFailed(ctx context.Context, campaignID string, d time.Duration) {
}

func (m *fakeMetrics) RecordVariantPost(ctx context.Context, campaignID string, posted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if posted {
		m.posted++
	} else {
		m.skipped++
	}
}

func (m *fakeMetrics) RecordGateBlock(ctx context.Context, agentName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gateBlocks = append(m.gateBlocks, agentName)
}

func TestPausedGate_RecordsGateBlocks(t *testing.T) {
	store := NewMemoryStore()
	pub := &fakePublisher{}
	perf := &fakePerf{}
	blocked := &fakeGate{err: errors.New("agent is paused: incident")}
	o := NewOrchestrator(store, blocked, &fakeFilter{}, pub, perf, immediateConfig(), testLogger())
	rec := &fakeMetrics{}
	o.SetMetrics(rec)

	winner, err := o.RunExperiment(context.Background(), []string{"variant A", "variant B"}, "campaign-1")
	require.NoError(t, err)
	assert.Equal(t, "variant A", winner)

	assert.Equal(t, []string{"TwitterAgent", "TwitterAgent"}, rec.gateBlocks)
	assert.Equal(t, 0, rec.posted)
	assert.Equal(t, 2, rec.skipped)
}

func TestSafetyRejection_SkipDetailNamesFlaggedTerms(t *testing.T) {
	pub := &fakePublisher{}
	perf := &fakePerf{}
	filter := &fakeFilter{unsafeTerm: "shit"}
	o := NewOrchestrator(NewMemoryStore(), &fakeGate{}, filter, pub, perf, immediateConfig(), testLogger())

	ctx := context.Background()
	exp, _, err := o.begin(ctx, []string{"this is shit"}, "campaign-1")
	require.NoError(t, err)

	events, unsubscribe := o.Subscribe(exp.ID)
	defer unsubscribe()

	o.postVariant(ctx, exp, &exp.Variants[0])

	select {
	case ev := <-events:
		assert.Equal(t, EventVariantSkipped, ev.Type)
		assert.Contains(t, ev.Detail, "content flagged for brand safety")
		assert.Contains(t, ev.Detail, "shit")
	case <-time.After(time.Second):
		t.Fatal("expected a variant skip event")
	}
}
