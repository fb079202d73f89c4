package safety

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brandworks/social-automation/publication-governor/internal/publisher"
)

// UnsafeContentError signals a rejection with no revision path; the
// content needs a human rewrite before it can be published.
type UnsafeContentError struct {
	FlaggedTerms []string
}

func (e *UnsafeContentError) Error() string {
	return fmt.Sprintf("content flagged for brand safety: %s", strings.Join(e.FlaggedTerms, ", "))
}

// SafetyResult is the immutable outcome of one safety check.
type SafetyResult struct {
	IsSafe       bool       `json:"is_safe"`
	FlaggedTerms []string   `json:"flagged_terms"`
	Confidence   float64    `json:"confidence"`
	Revision     string     `json:"revision,omitempty"`
	Audit        AuditEntry `json:"audit"`
}

// Config tunes the filter.
type Config struct {
	StrictMode         bool
	EnableAutoRevision bool
	BrandTone          string
	CustomTerms        []string
	RewriteTimeout     time.Duration
}

// MetricsRecorder receives one count per safety decision. Optional.
type MetricsRecorder interface {
	RecordSafetyCheck(ctx context.Context, action string)
}

// Filter scans candidate text against the weighted term blacklist and
// either approves it, auto-revises it, or rejects it.
type Filter struct {
	global  []compiledEntry
	custom  []compiledEntry
	cfg     Config
	rewrite publisher.Rewriter
	audit   AuditStore
	logger  *logrus.Logger
	metrics MetricsRecorder

	mu       sync.RWMutex
	campaign map[string][]compiledEntry
}

// synonyms is the deterministic fallback substitution table used when
// the LLM rewrite is unavailable. Terms without a synonym are masked.
var synonyms = map[string]string{
	"shit": "stuff",
	"damn": "darn",
	"crap": "junk",
	"hell": "heck",
	"wtf":  "what",
	"af":   "really",
}

// NewFilter creates a safety filter over the given global blacklist.
func NewFilter(global []BlacklistEntry, cfg Config, rewrite publisher.Rewriter, audit AuditStore, logger *logrus.Logger) *Filter {
	if cfg.RewriteTimeout == 0 {
		cfg.RewriteTimeout = 10 * time.Second
	}
	if cfg.BrandTone == "" {
		cfg.BrandTone = "professional yet approachable"
	}

	custom := make([]BlacklistEntry, 0, len(cfg.CustomTerms))
	for _, term := range cfg.CustomTerms {
		custom = append(custom, BlacklistEntry{Term: term, Category: CategoryCustom, Severity: SeverityMedium})
	}

	return &Filter{
		global:   compileEntries(global),
		custom:   compileEntries(custom),
		cfg:      cfg,
		rewrite:  rewrite,
		audit:    audit,
		logger:   logger,
		campaign: make(map[string][]compiledEntry),
	}
}

// SetMetrics attaches a telemetry recorder.
func (f *Filter) SetMetrics(m MetricsRecorder) {
	f.metrics = m
}

// AddCampaignTerms layers extra terms onto checks for one campaign.
// Additive only: other campaigns and the global check are unaffected.
func (f *Filter) AddCampaignTerms(campaignID string, entries []BlacklistEntry) {
	f.mu.Lock()
	f.campaign[campaignID] = append(f.campaign[campaignID], compileEntries(entries)...)
	f.mu.Unlock()
	f.logger.WithFields(logrus.Fields{
		"campaign": campaignID,
		"terms":    len(entries),
	}).Info("Campaign blacklist terms added")
}

// CheckSafety scans text against the applicable blacklist and records
// the decision in the audit trail. The check itself is a pure function
// of text and configuration; only the audit append has side effects.
func (f *Filter) CheckSafety(ctx context.Context, text, campaignID string) SafetyResult {
	flagged := f.scan(text, campaignID)

	result := SafetyResult{
		IsSafe:       len(flagged) == 0,
		FlaggedTerms: flagged,
		Confidence:   f.confidence(len(flagged)),
	}

	entry := AuditEntry{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		OriginalText: text,
		CampaignID:   campaignID,
		FlaggedTerms: flagged,
	}

	switch {
	case result.IsSafe:
		entry.Action = ActionApproved
	case f.cfg.EnableAutoRevision:
		result.Revision = f.revise(ctx, text, flagged)
		entry.Action = ActionRevised
		entry.Reason = fmt.Sprintf("flagged terms: %s", strings.Join(flagged, ", "))
	default:
		entry.Action = ActionRejected
		entry.Reason = fmt.Sprintf("flagged terms: %s", strings.Join(flagged, ", "))
	}
	result.Audit = entry

	if err := f.audit.Append(ctx, entry); err != nil {
		f.logger.WithError(err).Error("Failed to append safety audit entry")
	}
	if f.metrics != nil {
		f.metrics.RecordSafetyCheck(ctx, string(entry.Action))
	}

	f.logger.WithFields(logrus.Fields{
		"campaign":   campaignID,
		"action":     string(entry.Action),
		"flagged":    len(flagged),
		"confidence": result.Confidence,
	}).Info("Safety check completed")

	return result
}

// scan collects matched terms as a deduplicated, insertion-ordered list.
func (f *Filter) scan(text, campaignID string) []string {
	lower := strings.ToLower(text)

	f.mu.RLock()
	campaignEntries := f.campaign[campaignID]
	f.mu.RUnlock()

	var flagged []string
	seen := make(map[string]bool)
	for _, group := range [][]compiledEntry{f.global, f.custom, campaignEntries} {
		for _, ce := range group {
			term := strings.ToLower(ce.entry.Term)
			if seen[term] {
				continue
			}
			if ce.pattern.MatchString(lower) || (f.cfg.StrictMode && strings.Contains(lower, term)) {
				seen[term] = true
				flagged = append(flagged, term)
			}
		}
	}
	return flagged
}

// confidence is a heuristic, not a probability: full confidence on a
// clean pass, degrading with each flagged term, discounted in strict
// mode where substring matches are noisier.
func (f *Filter) confidence(flaggedCount int) float64 {
	if flaggedCount == 0 {
		return 1.0
	}
	confidence := 1.0 - 0.2*float64(flaggedCount)
	if confidence < 0.1 {
		confidence = 0.1
	}
	if f.cfg.StrictMode {
		confidence *= 0.8
	}
	return confidence
}

// revise asks the LLM for a brand-safe rewrite, falling back to
// deterministic term substitution when the call fails. It never
// returns an empty string and never propagates an error.
func (f *Filter) revise(ctx context.Context, text string, flagged []string) string {
	if f.rewrite != nil {
		rewriteCtx, cancel := context.WithTimeout(ctx, f.cfg.RewriteTimeout)
		defer cancel()

		revised, err := f.rewrite.Rewrite(rewriteCtx, f.revisionPrompt(text, flagged))
		if err == nil && strings.TrimSpace(revised) != "" {
			return strings.TrimSpace(revised)
		}
		if err != nil {
			f.logger.WithError(err).Warn("LLM rewrite failed, falling back to term substitution")
		}
	}
	return f.sanitize(text, flagged)
}

func (f *Filter) revisionPrompt(text string, flagged []string) string {
	return fmt.Sprintf(
		"Rewrite this social media post to be brand-safe while keeping its meaning.\n"+
			"Brand tone: %s.\n"+
			"Rules: no slang or profanity, preserve all hashtags and @mentions, stay under %d characters.\n"+
			"Flagged terms to remove or replace: %s.\n\n"+
			"Post: %s\n\n"+
			"Reply with the rewritten post only.",
		f.cfg.BrandTone, publisher.MaxPostLength, strings.Join(flagged, ", "), text,
	)
}

// sanitize replaces flagged terms with synonyms where known, masking
// the rest. Deterministic and infallible.
func (f *Filter) sanitize(text string, flagged []string) string {
	sanitized := text
	for _, term := range flagged {
		replacement, ok := synonyms[term]
		if !ok {
			replacement = strings.Repeat("*", len(term))
		}
		sanitized = wordPattern(term).ReplaceAllString(sanitized, replacement)
	}
	return sanitized
}
