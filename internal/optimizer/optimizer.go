package optimizer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/brandworks/social-automation/publication-governor/internal/publisher"
)

// ErrNoPriorContent is returned when optimize is invoked with nothing
// to optimize; that is a caller bug, not a degraded path.
var ErrNoPriorContent = errors.New("no prior content supplied to optimize")

// Insights is externally computed, historical-performance-derived data
// used to steer the rewrite. Read-only to the optimizer.
type Insights struct {
	TopPerformers       []string `json:"top_performers"`
	CommonPatterns      []string `json:"common_patterns"`
	RecommendedHashtags []string `json:"recommended_hashtags"`
	OptimalLength       int      `json:"optimal_length"`
	BestPostingTimes    []string `json:"best_posting_times"`
}

// Result is the outcome of one optimization pass. Every applied rule
// contributes exactly one rationale clause and one improvement entry.
type Result struct {
	Optimized           string   `json:"optimized"`
	Rationale           string   `json:"rationale"`
	Improvements        []string `json:"improvements"`
	Confidence          float64  `json:"confidence"`
	EstimatedEngagement float64  `json:"estimated_engagement"`
}

const (
	exclusivityPrefix  = "Exclusive: "
	urgencySuffix      = " Limited time only!"
	engagementQuestion = " What do you think?"
)

var hashtagPattern = regexp.MustCompile(`#\w+`)

// Optimizer rewrites a draft using patterns mined from past high
// performers.
type Optimizer struct {
	logger *logrus.Logger
}

// New creates an optimizer.
func New(logger *logrus.Logger) *Optimizer {
	return &Optimizer{logger: logger}
}

// Optimize applies the insight-driven rewrite rules to the original
// content. Rules are applied in a fixed order and each is conditional
// on its effect being absent already, so re-optimizing optimized
// content never duplicates an effect.
func (o *Optimizer) Optimize(original string, insights Insights) (*Result, error) {
	if strings.TrimSpace(original) == "" {
		return nil, ErrNoPriorContent
	}

	text := original
	var improvements []string
	var rationale []string

	apply := func(improvement, reason string) {
		improvements = append(improvements, improvement)
		rationale = append(rationale, reason)
	}

	lowerPatterns := strings.ToLower(strings.Join(insights.CommonPatterns, " | "))

	if strings.Contains(lowerPatterns, "exclusive") && !strings.Contains(strings.ToLower(text), "exclusive") {
		text = exclusivityPrefix + text
		apply("added exclusivity cue", "high performers lead with exclusivity")
	}

	if strings.Contains(lowerPatterns, "limited time") && !strings.Contains(strings.ToLower(text), "limited time") {
		text += urgencySuffix
		apply("added urgency cue", "limited-time framing drives engagement in past posts")
	}

	if strings.Contains(lowerPatterns, "questions") && !strings.Contains(text, "?") {
		text += engagementQuestion
		apply("added engagement question", "questions invite replies in top performers")
	}

	if emoji := signatureEmoji(insights.CommonPatterns); emoji != "" && !strings.Contains(text, emoji) {
		text += " " + emoji
		apply("added signature emoji "+emoji, "signature emoji recurs in high-performing posts")
	}

	text, added := unionHashtags(text, insights.RecommendedHashtags)
	if added > 0 {
		apply(fmt.Sprintf("added %d recommended hashtags", added), "recommended hashtags extend reach")
	}

	if insights.OptimalLength > 0 && len(text) > insights.OptimalLength {
		text = truncateAtWord(text, insights.OptimalLength)
		apply(fmt.Sprintf("trimmed to optimal length %d", insights.OptimalLength), "posts near the optimal length outperform longer ones")
	}

	if len(text) > publisher.MaxPostLength {
		text = truncateAtWord(text, publisher.MaxPostLength)
		apply("capped at platform limit", "platform rejects posts over the hard limit")
	}

	result := &Result{
		Optimized:           text,
		Rationale:           buildRationale(rationale),
		Improvements:        improvements,
		Confidence:          confidence(insights),
		EstimatedEngagement: estimateEngagement(insights, len(improvements)),
	}

	o.logger.WithFields(logrus.Fields{
		"improvements": len(improvements),
		"confidence":   result.Confidence,
	}).Info("Content optimized")

	return result, nil
}

// signatureEmoji returns the first emoji rune found in any pattern.
func signatureEmoji(patterns []string) string {
	for _, p := range patterns {
		for _, r := range p {
			if r >= 0x1F300 && r <= 0x1FAFF {
				return string(r)
			}
		}
	}
	return ""
}

// unionHashtags appends recommended hashtags missing from the text,
// preserving order of first appearance, and reports how many were added.
func unionHashtags(text string, recommended []string) (string, int) {
	existing := make(map[string]bool)
	for _, tag := range hashtagPattern.FindAllString(text, -1) {
		existing[strings.ToLower(tag)] = true
	}

	added := 0
	for _, tag := range recommended {
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		key := strings.ToLower(tag)
		if existing[key] {
			continue
		}
		existing[key] = true
		text = strings.TrimRight(text, " ") + " " + tag
		added++
	}
	return text, added
}

// truncateAtWord cuts text at the last whole-word boundary at or below
// limit, hard-cutting only when no boundary fits. A hard cut lands on
// a rune boundary so multi-byte text stays valid UTF-8.
func truncateAtWord(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	cut := text[:limit]
	if idx := strings.LastIndexAny(cut, " \t\n"); idx > 0 {
		return strings.TrimRight(cut[:idx], " \t\n")
	}
	return cut
}

func buildRationale(clauses []string) string {
	if len(clauses) == 0 {
		return "content already matches the mined high-performer patterns"
	}
	return strings.Join(clauses, "; ")
}

// confidence is a weighted heuristic over how much signal informed the
// insights, capped at 1.0.
func confidence(insights Insights) float64 {
	c := 0.5
	if len(insights.TopPerformers) >= 5 {
		c += 0.2
	}
	if len(insights.CommonPatterns) >= 3 {
		c += 0.15
	}
	if len(insights.RecommendedHashtags) >= 2 {
		c += 0.1
	}
	if insights.OptimalLength > 0 {
		c += 0.05
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}

// estimateEngagement projects an engagement figure from the insight
// depth and how many rules fired. A coarse planning number, not a
// prediction.
func estimateEngagement(insights Insights, applied int) float64 {
	base := 50.0 + 10.0*float64(len(insights.TopPerformers))
	return base * confidence(insights) * (1.0 + 0.1*float64(applied))
}
