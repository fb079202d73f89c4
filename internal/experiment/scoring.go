package experiment

import (
	"math"
	"sort"

	"github.com/brandworks/social-automation/publication-governor/internal/publisher"
)

// EngagementScore ranks a variant by weighted interactions dampened by
// logarithmic reach. Replies weigh most (they cost the audience the
// most effort), then retweets, then likes. Impressions at 1000 give a
// reach factor of 1.0; below ~3 impressions the factor is near zero.
func EngagementScore(m publisher.PerformanceMetrics) float64 {
	interactions := float64(m.Likes) + 2*float64(m.Retweets) + 3*float64(m.Replies)
	reachFactor := math.Log(float64(m.Impressions)+1) / math.Log(1000)
	return interactions*reachFactor + m.EngagementRate*100
}

type scoredVariant struct {
	variant Variant
	score   float64
}

// rankVariants orders posted variants by score, descending. The sort is
// stable so ties resolve to whichever variant was posted first.
func rankVariants(variants []Variant, metrics map[string]publisher.PerformanceMetrics) []scoredVariant {
	var ranked []scoredVariant
	for _, v := range variants {
		if !v.Posted {
			continue
		}
		ranked = append(ranked, scoredVariant{
			variant: v,
			score:   EngagementScore(metrics[v.ID]),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	return ranked
}
