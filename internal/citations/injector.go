// Package citations turns inline claim markers into numbered citations and
// guarantees every supported or partial claim referenced in report prose ends
// up with exactly one traceable citation record. Injection is a pure function
// of (report id, sections, claims, evidence): same inputs, same markers, same
// numbering, every run.
package citations

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/scanforge/diligence/internal/scan"
)

// FallbackThreshold is the minimum sentence term-overlap ratio for the
// unmarked-prose path to attach a citation.
const FallbackThreshold = 0.4

var (
	markerRe      = regexp.MustCompile(`\s?\[\[claim:([0-9a-f-]+)\]\]`)
	citationNumRe = regexp.MustCompile(`\[\d+\]`)
	termRe        = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9-]*`)
)

// Result holds the rewritten sections and the citation records backing them.
type Result struct {
	Sections  []scan.ReportSection
	Citations []scan.Citation
}

// Inject rewrites claim markers to citation numbers assigned by first
// appearance, and falls back to term-overlap matching for sections whose
// prose carries no markers. Citation numbers are unique within the report and
// never reused. Claims that are neither supported nor partial are stripped,
// not cited.
func Inject(reportID string, sections []scan.ReportSection, claims []scan.ResearchClaim, evidenceByClaim map[string][]scan.EvidenceItem) Result {
	citable := make(map[string]scan.ResearchClaim, len(claims))
	for _, c := range claims {
		if c.Status == scan.ClaimSupported || c.Status == scan.ClaimPartial {
			citable[c.ID] = c
		}
	}

	numbers := make(map[string]int)
	firstSection := make(map[string]string)
	next := 1
	assign := func(claimID, sectionTitle string) int {
		if n, ok := numbers[claimID]; ok {
			return n
		}
		numbers[claimID] = next
		firstSection[claimID] = sectionTitle
		next++
		return numbers[claimID]
	}

	out := make([]scan.ReportSection, len(sections))
	refs := make([]map[string]bool, len(sections))
	for i, section := range sections {
		refs[i] = make(map[string]bool)
		content := markerRe.ReplaceAllStringFunc(section.Content, func(m string) string {
			sub := markerRe.FindStringSubmatch(m)
			id := sub[1]
			if _, ok := citable[id]; !ok {
				return ""
			}
			refs[i][id] = true
			return fmt.Sprintf(" [%d]", assign(id, section.Title))
		})

		if !citationNumRe.MatchString(content) {
			content = injectByTermOverlap(content, section.Title, claims, citable, refs[i], assign)
		}

		section.Content = strings.TrimSpace(content)
		out[i] = section
	}

	var records []scan.Citation
	for _, claim := range claims {
		n, ok := numbers[claim.ID]
		if !ok {
			continue
		}
		best := bestEvidence(evidenceByClaim[claim.ID])
		records = append(records, scan.Citation{
			ID:              citationID(reportID, claim.ID),
			ReportID:        reportID,
			ClaimID:         claim.ID,
			EvidenceItemID:  best.ID,
			Number:          n,
			QuotedText:      quotedText(best),
			Confidence:      claim.Confidence,
			SectionLocation: firstSection[claim.ID],
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Number < records[j].Number })

	for i := range out {
		out[i].ClaimIDs = citedClaims(claims, numbers, refs[i])
	}
	return Result{Sections: out, Citations: records}
}

// injectByTermOverlap handles generator output that carries no markers: each
// citable claim is matched to its best-overlapping sentence and a citation
// number is inserted before the terminal punctuation.
func injectByTermOverlap(content, sectionTitle string, claims []scan.ResearchClaim, citable map[string]scan.ResearchClaim, refs map[string]bool, assign func(string, string) int) string {
	sentences := SplitSentences(content)
	if len(sentences) == 0 {
		return content
	}

	type insertion struct {
		sentence int
		claimID  string
	}
	var inserts []insertion
	taken := make(map[int]bool)
	for _, claim := range claims {
		if _, ok := citable[claim.ID]; !ok {
			continue
		}
		terms := KeyTerms(claim.Statement)
		if len(terms) == 0 {
			continue
		}
		bestIdx, bestScore := -1, 0.0
		for i, s := range sentences {
			if taken[i] || citationNumRe.MatchString(s) {
				continue
			}
			if score := OverlapRatio(terms, s); score > bestScore {
				bestIdx, bestScore = i, score
			}
		}
		if bestIdx >= 0 && bestScore >= FallbackThreshold {
			taken[bestIdx] = true
			inserts = append(inserts, insertion{sentence: bestIdx, claimID: claim.ID})
		}
	}

	for _, ins := range inserts {
		refs[ins.claimID] = true
		n := assign(ins.claimID, sectionTitle)
		sentences[ins.sentence] = insertNumber(sentences[ins.sentence], n)
	}
	return strings.Join(sentences, " ")
}

// KeyTerms extracts the claim statement's distinguishing terms: words longer
// than four characters, first five in statement order, lowercased.
func KeyTerms(statement string) []string {
	var terms []string
	seen := make(map[string]bool)
	for _, m := range termRe.FindAllString(statement, -1) {
		if len(m) <= 4 {
			continue
		}
		t := strings.ToLower(m)
		if seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
		if len(terms) == 5 {
			break
		}
	}
	return terms
}

// OverlapRatio is the fraction of terms present in the sentence.
func OverlapRatio(terms []string, sentence string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(sentence)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

var terminalRe = regexp.MustCompile(`[.!?]+\s*$`)

// insertNumber places [n] before the sentence's terminal punctuation.
func insertNumber(sentence string, n int) string {
	loc := terminalRe.FindStringIndex(sentence)
	if loc == nil {
		return sentence + fmt.Sprintf(" [%d]", n)
	}
	return sentence[:loc[0]] + fmt.Sprintf(" [%d]", n) + sentence[loc[0]:]
}

// SplitSentences cuts prose on terminal punctuation, keeping the punctuation
// with its sentence.
func SplitSentences(content string) []string {
	var out []string
	start := 0
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '.', '!', '?':
			for i+1 < len(content) && (content[i+1] == '.' || content[i+1] == '!' || content[i+1] == '?') {
				i++
			}
			if s := strings.TrimSpace(content[start : i+1]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(content[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func bestEvidence(items []scan.EvidenceItem) scan.EvidenceItem {
	var best scan.EvidenceItem
	for _, item := range items {
		if item.ConfidenceScore > best.ConfidenceScore {
			best = item
		}
	}
	return best
}

func quotedText(item scan.EvidenceItem) string {
	if item.Content.Summary != "" {
		return item.Content.Summary
	}
	return item.Content.Processed
}

// citationID is content-addressed so citation records are stable across
// idempotent re-runs.
func citationID(reportID, claimID string) string {
	sum := sha256.Sum256([]byte(reportID + "|" + claimID))
	return hex.EncodeToString(sum[:])[:16]
}

// citedClaims lists one section's cited claim IDs in citation-number order.
func citedClaims(claims []scan.ResearchClaim, numbers map[string]int, refs map[string]bool) []string {
	type entry struct {
		id string
		n  int
	}
	var entries []entry
	for _, c := range claims {
		n, ok := numbers[c.ID]
		if !ok || !refs[c.ID] {
			continue
		}
		entries = append(entries, entry{id: c.ID, n: n})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].n < entries[j].n })
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids
}
