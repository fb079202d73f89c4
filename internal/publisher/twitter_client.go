package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TwitterClient talks to the posting platform's HTTP API. It implements
// both Publisher and PerformanceFetcher.
type TwitterClient struct {
	baseURL    string
	bearer     string
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// TwitterConfig configures the posting client.
type TwitterConfig struct {
	BaseURL     string
	BearerToken string
	Timeout     time.Duration
}

// NewTwitterClient creates a posting client with a circuit breaker so a
// flapping platform API cannot stall experiment runs.
func NewTwitterClient(cfg TwitterConfig, logger *logrus.Logger) *TwitterClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "twitter-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &TwitterClient{
		baseURL:    cfg.BaseURL,
		bearer:     cfg.BearerToken,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tracer:     otel.Tracer("twitter-client"),
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}
}

// SetBaseURL sets the base URL for testing purposes
func (c *TwitterClient) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

type publishRequest struct {
	Text string `json:"text"`
}

type publishResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Publish posts content and returns the platform post ID. Rate limits
// and permanent rejections surface as distinct error types.
func (c *TwitterClient) Publish(ctx context.Context, content string) (*PostResult, error) {
	ctx, span := c.tracer.Start(ctx, "twitter.publish")
	defer span.End()

	span.SetAttributes(attribute.Int("content.length", len(content)))

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.publishInternal(ctx, content)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	post := result.(*PostResult)
	span.SetAttributes(attribute.String("post.id", post.ExternalPostID))
	return post, nil
}

func (c *TwitterClient) publishInternal(ctx context.Context, content string) (*PostResult, error) {
	payload, err := json.Marshal(publishRequest{Text: content})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal publish request: %w", err)
	}

	url := fmt.Sprintf("%s/2/tweets", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		body, _ := io.ReadAll(resp.Body)
		return nil, &RejectedError{StatusCode: resp.StatusCode, Detail: string(body)}
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("platform returned status %d: %s", resp.StatusCode, string(body))
	}

	var pubResp publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&pubResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	postedAt := pubResp.CreatedAt
	if postedAt.IsZero() {
		postedAt = time.Now().UTC()
	}
	return &PostResult{ExternalPostID: pubResp.ID, PostedAt: postedAt}, nil
}

type metricsResponse struct {
	Likes          int     `json:"likes"`
	Retweets       int     `json:"retweets"`
	Replies        int     `json:"replies"`
	Impressions    int     `json:"impressions"`
	EngagementRate float64 `json:"engagement_rate"`
	Ready          bool    `json:"ready"`
}

// FetchPerformance retrieves the engagement snapshot for a post.
func (c *TwitterClient) FetchPerformance(ctx context.Context, postID, campaignID string) (*PerformanceMetrics, error) {
	ctx, span := c.tracer.Start(ctx, "twitter.fetch_performance")
	defer span.End()

	span.SetAttributes(
		attribute.String("post.id", postID),
		attribute.String("campaign.id", campaignID),
	)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchPerformanceInternal(ctx, postID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result.(*PerformanceMetrics), nil
}

func (c *TwitterClient) fetchPerformanceInternal(ctx context.Context, postID string) (*PerformanceMetrics, error) {
	url := fmt.Sprintf("%s/2/tweets/%s/metrics", c.baseURL, postID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNotFound:
		return nil, ErrMetricsNotReady
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("platform returned status %d: %s", resp.StatusCode, string(body))
	}

	var mResp metricsResponse
	if err := json.NewDecoder(resp.Body).Decode(&mResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !mResp.Ready {
		return nil, ErrMetricsNotReady
	}

	return &PerformanceMetrics{
		Likes:          mResp.Likes,
		Retweets:       mResp.Retweets,
		Replies:        mResp.Replies,
		Impressions:    mResp.Impressions,
		EngagementRate: mResp.EngagementRate,
	}, nil
}

// IsHealthy checks breaker state and the platform health endpoint.
func (c *TwitterClient) IsHealthy(ctx context.Context) bool {
	if c.breaker.State() == gobreaker.StateOpen {
		return false
	}

	url := fmt.Sprintf("%s/health", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func retryAfter(resp *http.Response) time.Duration {
	if raw := resp.Header.Get("Retry-After"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Minute
}
