// Package generator synthesizes one report section per thesis dimension from
// that dimension's claims and their best evidence. Model output is held to a
// citation-marker contract and validated deterministically; a section is
// regenerated at most once before being accepted in degraded form.
package generator

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/llm"
	"github.com/scanforge/diligence/internal/metrics"
	"github.com/scanforge/diligence/internal/scan"
)

// Inference is the slice of the LLM client the generator needs.
type Inference interface {
	Generate(ctx context.Context, in llm.Request) (llm.Response, error)
}

// Config tunes section synthesis.
type Config struct {
	// TopKEvidence caps evidence items per claim in the prompt, ranked by
	// confidence.
	TopKEvidence int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{TopKEvidence: 5}
}

// Generator produces report sections.
type Generator struct {
	llm    Inference
	cfg    Config
	logger *zap.Logger
}

// New creates a generator.
func New(inference Inference, cfg Config, logger *zap.Logger) *Generator {
	if cfg.TopKEvidence <= 0 {
		cfg.TopKEvidence = 5
	}
	return &Generator{llm: inference, cfg: cfg, logger: logger}
}

// MarkerPattern matches the inline claim markers the model must emit. The
// citation injector later rewrites these to numbered citations.
var MarkerPattern = regexp.MustCompile(`\[\[claim:([0-9a-f-]+)\]\]`)

// GenerateSection synthesizes one section from its claims and evidence.
// evidenceByClaim maps claim ID to that claim's gathered evidence. A section
// that still violates the marker contract after one regeneration is kept and
// flagged rather than failed.
func (g *Generator) GenerateSection(ctx context.Context, title string, claims []scan.ResearchClaim, evidenceByClaim map[string][]scan.EvidenceItem) (scan.ReportSection, error) {
	if len(claims) == 0 {
		return scan.ReportSection{Title: title}, nil
	}

	var (
		parsed  sectionOutput
		ok      bool
		flagged bool
	)
	for attempt := 0; attempt < 2; attempt++ {
		prompt := g.sectionPrompt(title, claims, evidenceByClaim, attempt > 0)
		resp, err := g.llm.Generate(ctx, llm.Request{
			Prompt:    prompt,
			Role:      "section_generator",
			ForceJSON: true,
		})
		if err != nil {
			return scan.ReportSection{}, fmt.Errorf("section %q generation failed: %w", title, err)
		}

		parsed, ok = parseSection(resp.Text)
		if !ok {
			g.logger.Warn("Section output unparseable",
				zap.String("section", title),
				zap.Int("attempt", attempt+1),
			)
			parsed = sectionOutput{Content: llm.StripFences(resp.Text)}
			flagged = true
			continue
		}
		violations := UnmarkedQuantities(parsed.Content)
		if len(violations) == 0 {
			flagged = false
			break
		}
		g.logger.Warn("Section has unmarked quantitative assertions",
			zap.String("section", title),
			zap.Int("attempt", attempt+1),
			zap.Strings("violations", violations),
		)
		if attempt == 0 {
			metrics.SectionRegenerations.Inc()
		}
		flagged = true
	}
	if flagged {
		metrics.SectionsFlagged.Inc()
	}

	section := scan.ReportSection{
		Title:                   title,
		Content:                 parsed.Content,
		DataGaps:                parsed.DataGaps,
		LowConfidenceUnverified: flagged,
	}
	section.ClaimIDs = referencedClaims(parsed.Content, claims)
	section.Confidence = sectionConfidence(section.ClaimIDs, claims)
	appendClaimGaps(&section, claims)

	g.logger.Info("Section generated",
		zap.String("section", title),
		zap.Int("claims_referenced", len(section.ClaimIDs)),
		zap.Float64("confidence", section.Confidence),
		zap.Bool("low_confidence_unverified", section.LowConfidenceUnverified),
	)
	return section, nil
}

type sectionOutput struct {
	Content  string   `json:"content"`
	DataGaps []string `json:"data_gaps"`
}

func parseSection(text string) (sectionOutput, bool) {
	var out sectionOutput
	if err := llm.DecodeJSON(text, &out); err != nil {
		return sectionOutput{}, false
	}
	return out, strings.TrimSpace(out.Content) != ""
}

func (g *Generator) sectionPrompt(title string, claims []scan.ResearchClaim, evidenceByClaim map[string][]scan.EvidenceItem, strict bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You write the %q section of an investment due-diligence report.\n\n", title)
	b.WriteString("Research claims and their evidence:\n")
	for _, claim := range claims {
		fmt.Fprintf(&b, "\nClaim %s (%s, confidence %.2f): %s\n", claim.ID, claim.Status, claim.Confidence, claim.Statement)
		if claim.GapReason != "" {
			fmt.Fprintf(&b, "  Knowledge gap: %s\n", claim.GapReason)
		}
		for _, item := range topEvidence(evidenceByClaim[claim.ID], g.cfg.TopKEvidence) {
			summary := item.Content.Summary
			if summary == "" {
				summary = item.Content.Processed
			}
			fmt.Fprintf(&b, "  - [%s, confidence %.2f] %s\n", sourceLabel(item), item.ConfidenceScore, summary)
		}
	}
	b.WriteString(`
Rules:
- Every factual or quantitative assertion MUST carry an inline marker of the form [[claim:<id>]] using the claim IDs above.
- Any assertion you cannot support from the evidence MUST be phrased as an explicit data gap, never stated as fact.
- Do not invent numbers absent from the evidence.
`)
	if strict {
		b.WriteString(`- STRICT MODE: your previous draft contained figures without markers. Every sentence containing a currency amount, percentage, or large number MUST include a [[claim:<id>]] marker, or the figure must be removed.
`)
	}
	b.WriteString(`
Output JSON ONLY:
{"content": "prose with [[claim:<id>]] markers", "data_gaps": ["...", "..."]}`)
	return b.String()
}

func topEvidence(items []scan.EvidenceItem, k int) []scan.EvidenceItem {
	ranked := append([]scan.EvidenceItem{}, items...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ConfidenceScore > ranked[j].ConfidenceScore
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

func sourceLabel(item scan.EvidenceItem) string {
	if item.Source.URL != "" {
		return item.Source.URL
	}
	return item.Source.Tool
}

var (
	currencyRe = regexp.MustCompile(`[$€£]\s?\d[\d,]*(?:\.\d+)?\s?(?:[KMBkmb]|million|billion|thousand)?`)
	percentRe  = regexp.MustCompile(`\d+(?:\.\d+)?\s?%`)
	bigNumRe   = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+\b|\b\d+(?:\.\d+)?\s(?:million|billion|thousand)\b`)
)

// UnmarkedQuantities returns the sentences that contain a quantitative token
// (currency, percent, large number) but no claim marker. Empty means the
// marker contract holds.
func UnmarkedQuantities(content string) []string {
	var violations []string
	for _, sentence := range SplitSentences(content) {
		if MarkerPattern.MatchString(sentence) {
			continue
		}
		if currencyRe.MatchString(sentence) || percentRe.MatchString(sentence) || bigNumRe.MatchString(sentence) {
			violations = append(violations, strings.TrimSpace(sentence))
		}
	}
	return violations
}

var sentenceSplitRe = regexp.MustCompile(`[^.!?]*(?:\[\[claim:[0-9a-f-]+\]\]|[.!?])+`)

// SplitSentences cuts prose into sentences, keeping trailing markers with the
// sentence they follow.
func SplitSentences(content string) []string {
	matches := sentenceSplitRe.FindAllString(content, -1)
	var out []string
	consumed := 0
	for _, m := range matches {
		consumed += len(m)
		if strings.TrimSpace(m) != "" {
			out = append(out, m)
		}
	}
	if rest := strings.TrimSpace(content[min(consumed, len(content)):]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// referencedClaims lists the claim IDs whose markers appear in the content,
// in order of first appearance, restricted to the section's own claims.
func referencedClaims(content string, claims []scan.ResearchClaim) []string {
	known := make(map[string]bool, len(claims))
	for _, c := range claims {
		known[c.ID] = true
	}
	seen := make(map[string]bool)
	var out []string
	for _, m := range MarkerPattern.FindAllStringSubmatch(content, -1) {
		id := m[1]
		if !known[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// sectionConfidence is the priority-weighted average confidence over the
// claims actually referenced; falls back to all section claims when the
// content references none.
func sectionConfidence(referenced []string, claims []scan.ResearchClaim) float64 {
	byID := make(map[string]scan.ResearchClaim, len(claims))
	for _, c := range claims {
		byID[c.ID] = c
	}
	pool := claims
	if len(referenced) > 0 {
		pool = pool[:0:0]
		for _, id := range referenced {
			pool = append(pool, byID[id])
		}
	}
	var sum, weights float64
	for _, c := range pool {
		w := c.Priority.Weight()
		sum += c.Confidence * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

// appendClaimGaps ensures settled knowledge gaps surface in the section even
// when the model omits them.
func appendClaimGaps(section *scan.ReportSection, claims []scan.ResearchClaim) {
	have := make(map[string]bool, len(section.DataGaps))
	for _, g := range section.DataGaps {
		have[strings.ToLower(g)] = true
	}
	for _, c := range claims {
		if c.Status != scan.ClaimUnsupported {
			continue
		}
		gap := c.Statement
		if c.GapReason != "" {
			gap = fmt.Sprintf("%s (%s)", c.Statement, c.GapReason)
		}
		if !have[strings.ToLower(gap)] {
			section.DataGaps = append(section.DataGaps, gap)
		}
	}
}
