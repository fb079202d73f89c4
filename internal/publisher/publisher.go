package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxPostLength is the platform hard limit on post text.
const MaxPostLength = 280

// PostResult is the outcome of a successful publish.
type PostResult struct {
	ExternalPostID string    `json:"external_post_id"`
	PostedAt       time.Time `json:"posted_at"`
}

// PerformanceMetrics is the engagement snapshot for one published post.
type PerformanceMetrics struct {
	Likes          int     `json:"likes"`
	Retweets       int     `json:"retweets"`
	Replies        int     `json:"replies"`
	Impressions    int     `json:"impressions"`
	EngagementRate float64 `json:"engagement_rate"`
}

// Publisher posts content to the network.
type Publisher interface {
	Publish(ctx context.Context, content string) (*PostResult, error)
}

// PerformanceFetcher retrieves engagement metrics for a published post.
// ErrMetricsNotReady is returned while the platform has not yet
// aggregated metrics for the post.
type PerformanceFetcher interface {
	FetchPerformance(ctx context.Context, postID, campaignID string) (*PerformanceMetrics, error)
}

// Rewriter produces text from a prompt. Implementations must honor the
// context deadline so a slow model can never block a publish decision.
type Rewriter interface {
	Rewrite(ctx context.Context, prompt string) (string, error)
}

// ErrMetricsNotReady signals that metrics exist but are not yet
// aggregated; callers should treat the post as having zero engagement
// so far rather than failing.
var ErrMetricsNotReady = errors.New("performance metrics not yet available")

// RateLimitError signals a transient platform rate limit. The caller
// may retry after the indicated delay.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("platform rate limit hit, retry after %s", e.RetryAfter)
}

// RejectedError signals a permanent rejection (duplicate content,
// policy violation). Retrying the same content will not succeed.
type RejectedError struct {
	StatusCode int
	Detail     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("platform rejected post (status %d): %s", e.StatusCode, e.Detail)
}
