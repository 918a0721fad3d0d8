package evidence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/metrics"
	"github.com/scanforge/diligence/internal/scan"
	"github.com/scanforge/diligence/internal/scanerrors"
)

// Persister is the slice of the store the collector needs: it owns the writes
// for evidence items and the claim's supporting-evidence list.
type Persister interface {
	SaveEvidenceItems(ctx context.Context, items []scan.EvidenceItem) error
	AppendSupportingEvidence(ctx context.Context, claimID string, evidenceIDs []string) error
}

// CollectorConfig tunes the fan-out and retry behavior.
type CollectorConfig struct {
	// MaxConcurrent bounds simultaneous provider calls per claim.
	MaxConcurrent int
	// MaxAttempts caps retries for transient provider errors.
	MaxAttempts int
	// BaseBackoff is the initial retry delay, doubled per attempt.
	BaseBackoff time.Duration
	// SimilarityThreshold above which same-source items are duplicates.
	SimilarityThreshold float64
	SummaryMaxLen       int
}

// DefaultCollectorConfig returns production defaults.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		MaxConcurrent:       4,
		MaxAttempts:         3,
		BaseBackoff:         500 * time.Millisecond,
		SimilarityThreshold: 0.9,
		SummaryMaxLen:       400,
	}
}

// Collector executes claim-targeted retrieval: provider selection, bounded
// fan-out behind a barrier, scoring, deduplication, and persistence.
type Collector struct {
	registry *Registry
	cache    *RetrievalCache
	store    Persister
	cfg      CollectorConfig
	logger   *zap.Logger

	now func() time.Time
}

// NewCollector creates a collector. cache may be nil.
func NewCollector(registry *Registry, cache *RetrievalCache, store Persister, cfg CollectorConfig, logger *zap.Logger) *Collector {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.9
	}
	if cfg.SummaryMaxLen <= 0 {
		cfg.SummaryMaxLen = 400
	}
	return &Collector{
		registry: registry,
		cache:    cache,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// CollectResult is the outcome of one collection round for one claim.
type CollectResult struct {
	Items                []scan.EvidenceItem
	UnavailableProviders []string
	ProviderCalls        int
}

// Collect runs one retrieval round for a claim. Already-settled claims are a
// no-op: zero provider calls. Zero evidence is not an error; provider
// failures are absorbed after retry exhaustion.
func (c *Collector) Collect(ctx context.Context, claim scan.ResearchClaim, company scan.ScanRequest, extraQueries []string) (CollectResult, error) {
	if claim.Status.Terminal() {
		c.logger.Debug("Skipping settled claim", zap.String("claim_id", claim.ID), zap.String("status", string(claim.Status)))
		return CollectResult{}, nil
	}

	providers := c.registry.ForTypes(claim.EvidenceTypesNeeded)
	if len(providers) == 0 {
		c.logger.Warn("No providers cover claim evidence types",
			zap.String("claim_id", claim.ID),
		)
		return CollectResult{}, nil
	}

	type task struct {
		provider Provider
		req      Request
	}
	var tasks []task
	for _, p := range providers {
		for _, req := range c.requestsFor(p, claim, company, extraQueries) {
			tasks = append(tasks, task{provider: p, req: req})
		}
	}

	type outcome struct {
		provider string
		prior    float64
		results  []RawEvidence
		failed   bool
		calls    int
	}
	outcomes := make([]outcome, len(tasks))

	// Bounded fan-out; the WaitGroup is the barrier the reflection stage
	// depends on.
	sem := make(chan struct{}, c.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for i, tk := range tasks {
		wg.Add(1)
		go func(i int, tk task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results, calls, err := c.fetchWithRetry(ctx, tk.provider, tk.req)
			outcomes[i] = outcome{
				provider: tk.provider.Name(),
				prior:    tk.provider.CredibilityPrior(),
				results:  results,
				failed:   err != nil,
				calls:    calls,
			}
		}(i, tk)
	}
	wg.Wait()

	now := c.now()
	unavailable := map[string]bool{}
	var items []scan.EvidenceItem
	totalCalls := 0
	for _, o := range outcomes {
		totalCalls += o.calls
		if o.failed {
			unavailable[o.provider] = true
			continue
		}
		for _, raw := range o.results {
			items = append(items, c.buildItem(claim, raw, o.provider, o.prior, now))
		}
	}

	items = c.dedupe(items)
	metrics.EvidenceCollected.Add(float64(len(items)))

	if len(items) > 0 && c.store != nil {
		if err := c.store.SaveEvidenceItems(ctx, items); err != nil {
			return CollectResult{}, err
		}
		ids := make([]string, len(items))
		for i, it := range items {
			ids[i] = it.ID
		}
		if err := c.store.AppendSupportingEvidence(ctx, claim.ID, ids); err != nil {
			return CollectResult{}, err
		}
	}

	result := CollectResult{Items: items, ProviderCalls: totalCalls}
	for p := range unavailable {
		result.UnavailableProviders = append(result.UnavailableProviders, p)
	}

	c.logger.Info("Collection round complete",
		zap.String("claim_id", claim.ID),
		zap.Int("items", len(items)),
		zap.Int("provider_calls", totalCalls),
		zap.Int("providers_unavailable", len(result.UnavailableProviders)),
	)
	return result, nil
}

// requestsFor builds the provider-specific request list for a claim round.
// Search-style providers take the claim queries; site-targeted providers
// (fetch, fingerprint, header scan) take the company website.
func (c *Collector) requestsFor(p Provider, claim scan.ResearchClaim, company scan.ScanRequest, extraQueries []string) []Request {
	siteTargeted := false
	var hint scan.EvidenceType
	for _, t := range p.Types() {
		for _, need := range claim.EvidenceTypesNeeded {
			if t != need {
				continue
			}
			hint = t
			if t == scan.EvidenceTechFingerprint || t == scan.EvidenceSecurityScan || t == scan.EvidenceWebContent {
				siteTargeted = true
			}
		}
	}

	if siteTargeted {
		if company.Website == "" {
			return nil
		}
		return []Request{{
			URL:         company.Website,
			TypeHint:    hint,
			CompanyName: company.CompanyName,
		}}
	}

	queries := append(append([]string{}, claim.SearchQueries...), extraQueries...)
	reqs := make([]Request, 0, len(queries))
	for _, q := range queries {
		reqs = append(reqs, Request{
			Query:       q,
			TypeHint:    hint,
			CompanyName: company.CompanyName,
			MaxResults:  5,
		})
	}
	return reqs
}

// fetchWithRetry retries transient failures with exponential backoff up to
// the attempt cap, consulting the retrieval cache first. Returns the number
// of real provider calls made.
func (c *Collector) fetchWithRetry(ctx context.Context, p Provider, req Request) ([]RawEvidence, int, error) {
	if results, ok := c.cache.Get(ctx, p.Name(), req); ok {
		return results, 0, nil
	}

	var lastErr error
	calls := 0
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.cfg.BaseBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, calls, ctx.Err()
			case <-time.After(delay):
			}
		}

		calls++
		results, err := p.Fetch(ctx, req)
		if err == nil {
			metrics.ProviderCalls.WithLabelValues(p.Name(), "ok").Inc()
			c.cache.Put(ctx, p.Name(), req, results)
			return results, calls, nil
		}
		metrics.ProviderCalls.WithLabelValues(p.Name(), "error").Inc()
		lastErr = err

		if !isRetryable(err) {
			break
		}
		c.logger.Warn("Provider call failed, retrying",
			zap.String("provider", p.Name()),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	metrics.ProviderUnavailable.WithLabelValues(p.Name()).Inc()
	c.logger.Warn("Provider exhausted for claim, continuing without it",
		zap.String("provider", p.Name()),
		zap.Error(lastErr),
	)
	return nil, calls, lastErr
}

func (c *Collector) buildItem(claim scan.ResearchClaim, raw RawEvidence, provider string, prior float64, now time.Time) scan.EvidenceItem {
	processed := processContent(raw.Content)
	specificity := Specificity(claim, processed)
	recency := RecencyFactor(raw.PublishedAt, now)

	item := scan.EvidenceItem{
		ID:            uuid.NewString(),
		ScanRequestID: claim.ScanRequestID,
		ClaimID:       claim.ID,
		Type:          typeForRaw(raw, claim),
		Content: scan.EvidenceContent{
			Raw:       raw.Content,
			Processed: processed,
			Summary:   summarize(processed, c.cfg.SummaryMaxLen),
		},
		Source: scan.EvidenceSource{
			URL:       raw.URL,
			Tool:      raw.Tool,
			Timestamp: now,
		},
		ConfidenceScore: ScoreConfidence(prior, specificity, recency),
		RelevanceScore:  specificity,
	}
	if item.Source.Tool == "" && item.Source.URL == "" {
		item.Source.Tool = provider
	}
	item.DedupKey = DedupKey(item)
	return item
}

func typeForRaw(raw RawEvidence, claim scan.ResearchClaim) scan.EvidenceType {
	if len(claim.EvidenceTypesNeeded) > 0 {
		return claim.EvidenceTypesNeeded[0]
	}
	if raw.URL != "" {
		return scan.EvidenceWebContent
	}
	return scan.EvidenceWebSearch
}

// dedupe drops near-duplicates: same normalized source AND text similarity
// above the threshold. The higher-confidence item survives; the loser is
// discarded, never stored.
func (c *Collector) dedupe(items []scan.EvidenceItem) []scan.EvidenceItem {
	bySource := make(map[string][]int)
	drop := make([]bool, len(items))

	for i, item := range items {
		key := item.DedupKey
		for _, j := range bySource[key] {
			if drop[j] {
				continue
			}
			sim := TextSimilarity(items[i].Content.Processed, items[j].Content.Processed)
			if sim <= c.cfg.SimilarityThreshold {
				continue
			}
			if items[i].ConfidenceScore > items[j].ConfidenceScore {
				drop[j] = true
			} else {
				drop[i] = true
			}
		}
		bySource[key] = append(bySource[key], i)
	}

	out := items[:0]
	for i, item := range items {
		if !drop[i] {
			out = append(out, item)
		}
	}
	return out
}

func isRetryable(err error) bool {
	return scanerrors.IsTransient(err)
}
