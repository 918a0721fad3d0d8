// Package reflection evaluates claim confidence after each collection round
// and decides whether a claim is settled or needs another round with refined
// queries. Iteration is bounded; every claim terminates.
package reflection

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/evidence"
	"github.com/scanforge/diligence/internal/scan"
)

// DefaultMaxIterations bounds collection rounds per claim.
const DefaultMaxIterations = 3

// Refiner produces better search queries for a claim that has not reached
// its confidence target. Implementations may call an LLM; the engine falls
// back to heuristic refinement when the refiner is nil or fails.
type Refiner interface {
	RefineQueries(ctx context.Context, claim scan.ResearchClaim, gaps []scan.EvidenceType, usedQueries []string) ([]string, error)
}

// Config tunes the reflection engine.
type Config struct {
	MaxIterations int
	// PartialFloor is the minimum aggregate confidence for a claim to end
	// partial instead of unsupported once iterations are exhausted.
	PartialFloor float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{MaxIterations: DefaultMaxIterations, PartialFloor: 0}
}

// Engine applies the per-claim state machine:
// pending -> researching -> {supported | partial | unsupported}.
type Engine struct {
	cfg     Config
	refiner Refiner
	logger  *zap.Logger
}

// New creates an engine. refiner may be nil.
func New(cfg Config, refiner Refiner, logger *zap.Logger) *Engine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Engine{cfg: cfg, refiner: refiner, logger: logger}
}

// Decision is the outcome of evaluating one claim after a collection round.
// Claim carries the updated status, confidence, iteration, and gap reason.
type Decision struct {
	Claim          scan.ResearchClaim
	Requeue        bool
	RefinedQueries []string
}

// Evaluate runs one reflection step for a claim given all evidence gathered
// for it so far. Already-settled claims pass through unchanged.
func (e *Engine) Evaluate(ctx context.Context, claim scan.ResearchClaim, company scan.ScanRequest, items []scan.EvidenceItem) Decision {
	if claim.Status.Terminal() {
		return Decision{Claim: claim}
	}

	agg := AggregateConfidence(items)
	// Confidence never decreases across rounds.
	if agg > claim.Confidence {
		claim.Confidence = agg
	}
	claim.Iteration++

	if claim.Confidence >= claim.ConfidenceTarget {
		claim.Status = scan.ClaimSupported
		claim.GapReason = ""
		e.logger.Debug("Claim supported",
			zap.String("claim_id", claim.ID),
			zap.Float64("confidence", claim.Confidence),
			zap.Int("iteration", claim.Iteration),
		)
		return Decision{Claim: claim}
	}

	if claim.Iteration < e.cfg.MaxIterations {
		claim.Status = scan.ClaimResearching
		queries := e.refineQueries(ctx, claim, company, items)
		return Decision{Claim: claim, Requeue: true, RefinedQueries: queries}
	}

	// Iterations exhausted: settle as a knowledge gap, never an error.
	gaps := unmetTypes(claim, items)
	if claim.Confidence > e.cfg.PartialFloor {
		claim.Status = scan.ClaimPartial
	} else {
		claim.Status = scan.ClaimUnsupported
	}
	claim.GapReason = gapReason(claim, gaps)
	e.logger.Info("Claim settled as knowledge gap",
		zap.String("claim_id", claim.ID),
		zap.String("status", string(claim.Status)),
		zap.Float64("confidence", claim.Confidence),
		zap.String("reason", claim.GapReason),
	)
	return Decision{Claim: claim}
}

// AggregateConfidence combines evidence confidences with a noisy-OR and
// scales by source diversity. Monotone non-decreasing in added evidence:
// every new item can only raise the noisy-OR base and the diversity factor.
func AggregateConfidence(items []scan.EvidenceItem) float64 {
	if len(items) == 0 {
		return 0
	}
	remaining := 1.0
	sources := make(map[string]bool)
	for _, item := range items {
		c := item.ConfidenceScore
		if c < 0 {
			c = 0
		}
		if c > 1 {
			c = 1
		}
		remaining *= 1 - c
		sources[sourceKey(item)] = true
	}
	base := 1 - remaining

	// One strong source is nearly enough; independent sources close the
	// remaining gap. Capped at three distinct sources.
	diversity := 0.9 + 0.1*min1(float64(len(sources)-1)/2)
	return base * diversity
}

func sourceKey(item scan.EvidenceItem) string {
	if item.Source.URL != "" {
		return evidence.SourceDomain(item.Source.URL)
	}
	return item.Source.Tool
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

// unmetTypes returns the claim's needed evidence types with no gathered item.
func unmetTypes(claim scan.ResearchClaim, items []scan.EvidenceItem) []scan.EvidenceType {
	have := make(map[scan.EvidenceType]bool, len(items))
	for _, item := range items {
		have[item.Type] = true
	}
	var out []scan.EvidenceType
	for _, t := range claim.EvidenceTypesNeeded {
		if !have[t] {
			out = append(out, t)
		}
	}
	return out
}

func gapReason(claim scan.ResearchClaim, gaps []scan.EvidenceType) string {
	reason := fmt.Sprintf("confidence %.2f below target %.2f after %d rounds",
		claim.Confidence, claim.ConfidenceTarget, claim.Iteration)
	if len(gaps) > 0 {
		names := make([]string, len(gaps))
		for i, g := range gaps {
			names[i] = string(g)
		}
		reason += "; missing evidence types: " + strings.Join(names, ", ")
	}
	return reason
}

// refineQueries prefers the LLM refiner when configured, falling back to the
// deterministic heuristic on error or empty output.
func (e *Engine) refineQueries(ctx context.Context, claim scan.ResearchClaim, company scan.ScanRequest, items []scan.EvidenceItem) []string {
	gaps := unmetTypes(claim, items)
	if e.refiner != nil {
		refined, err := e.refiner.RefineQueries(ctx, claim, gaps, claim.SearchQueries)
		if err != nil {
			e.logger.Warn("Query refiner failed, using heuristic refinement",
				zap.String("claim_id", claim.ID),
				zap.Error(err),
			)
		} else if len(refined) > 0 {
			return refined
		}
	}
	return HeuristicQueries(claim, company, gaps)
}

// gapQuerySuffix maps an unmet evidence type to a search angle.
var gapQuerySuffix = map[scan.EvidenceType]string{
	scan.EvidenceFinancialFiling: "annual report revenue",
	scan.EvidenceWebSearch:       "news",
	scan.EvidenceWebContent:      "official site",
	scan.EvidenceTechFingerprint: "technology stack",
	scan.EvidenceSecurityScan:    "security practices",
}

var statementTermRe = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9-]{4,}`)

// HeuristicQueries builds refined queries from unmet evidence types and
// statement terms not yet used in earlier queries. Deterministic.
func HeuristicQueries(claim scan.ResearchClaim, company scan.ScanRequest, gaps []scan.EvidenceType) []string {
	used := strings.ToLower(strings.Join(claim.SearchQueries, " "))

	var fresh []string
	seen := make(map[string]bool)
	for _, m := range statementTermRe.FindAllString(claim.Statement, -1) {
		term := strings.ToLower(m)
		if seen[term] || strings.Contains(used, term) {
			continue
		}
		if strings.EqualFold(term, company.CompanyName) {
			continue
		}
		seen[term] = true
		fresh = append(fresh, term)
	}
	sort.Strings(fresh)
	if len(fresh) > 3 {
		fresh = fresh[:3]
	}

	var queries []string
	for _, g := range gaps {
		suffix, ok := gapQuerySuffix[g]
		if !ok {
			continue
		}
		queries = append(queries, strings.TrimSpace(company.CompanyName+" "+suffix))
	}
	if len(fresh) > 0 {
		queries = append(queries, strings.TrimSpace(company.CompanyName+" "+strings.Join(fresh, " ")))
	}
	if len(queries) == 0 {
		// Nothing new to ask; widen the original angle instead.
		queries = append(queries, strings.TrimSpace(company.CompanyName+" "+claim.Dimension))
	}
	return queries
}
