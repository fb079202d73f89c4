package experiment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brandworks/social-automation/publication-governor/internal/publisher"
)

func TestEngagementScore(t *testing.T) {
	t.Run("zero metrics score zero", func(t *testing.T) {
		assert.Zero(t, EngagementScore(publisher.PerformanceMetrics{}))
	})

	t.Run("replies outweigh retweets outweigh likes", func(t *testing.T) {
		base := publisher.PerformanceMetrics{Impressions: 1000}

		likes := base
		likes.Likes = 10
		retweets := base
		retweets.Retweets = 10
		replies := base
		replies.Replies = 10

		assert.Greater(t, EngagementScore(replies), EngagementScore(retweets))
		assert.Greater(t, EngagementScore(retweets), EngagementScore(likes))
	})

	t.Run("monotonic in every metric", func(t *testing.T) {
		base := publisher.PerformanceMetrics{Likes: 5, Retweets: 2, Replies: 1, Impressions: 400, EngagementRate: 0.02}
		baseScore := EngagementScore(base)

		bumps := []publisher.PerformanceMetrics{
			{Likes: 6, Retweets: 2, Replies: 1, Impressions: 400, EngagementRate: 0.02},
			{Likes: 5, Retweets: 3, Replies: 1, Impressions: 400, EngagementRate: 0.02},
			{Likes: 5, Retweets: 2, Replies: 2, Impressions: 400, EngagementRate: 0.02},
			{Likes: 5, Retweets: 2, Replies: 1, Impressions: 800, EngagementRate: 0.02},
			{Likes: 5, Retweets: 2, Replies: 1, Impressions: 400, EngagementRate: 0.04},
		}
		for _, m := range bumps {
			assert.Greater(t, EngagementScore(m), baseScore)
		}
	})

	t.Run("reach factor crosses one at a thousand impressions", func(t *testing.T) {
		m := publisher.PerformanceMetrics{Likes: 10, Impressions: 999}
		score := EngagementScore(m)
		assert.InDelta(t, 10.0, score, 0.01)
	})
}

func TestRankVariants(t *testing.T) {
	variants := []Variant{
		{ID: "a", Posted: true},
		{ID: "b", Posted: false},
		{ID: "c", Posted: true},
	}
	metrics := map[string]publisher.PerformanceMetrics{
		"a": {Likes: 1, Impressions: 100},
		"c": {Likes: 50, Impressions: 100},
	}

	ranked := rankVariants(variants, metrics)
	assert.Len(t, ranked, 2)
	assert.Equal(t, "c", ranked[0].variant.ID)
	assert.Equal(t, "a", ranked[1].variant.ID)

	t.Run("ties keep posting order", func(t *testing.T) {
		tied := rankVariants(variants, map[string]publisher.PerformanceMetrics{})
		assert.Equal(t, "a", tied[0].variant.ID)
		assert.Equal(t, "c", tied[1].variant.ID)
	})
}
