package citations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/diligence/internal/scan"
)

func claimSet() []scan.ResearchClaim {
	return []scan.ResearchClaim{
		{ID: "aaa111", Statement: "Acme revenue exceeds fifty million dollars annually",
			Status: scan.ClaimSupported, Confidence: 0.9},
		{ID: "bbb222", Statement: "Acme platform handles large transaction volumes reliably",
			Status: scan.ClaimPartial, Confidence: 0.5},
		{ID: "ccc333", Statement: "Customer churn stays below industry averages",
			Status: scan.ClaimUnsupported},
	}
}

func evidenceSet() map[string][]scan.EvidenceItem {
	return map[string][]scan.EvidenceItem{
		"aaa111": {
			{ID: "ev-low", ConfidenceScore: 0.4, Content: scan.EvidenceContent{Summary: "blog summary"}},
			{ID: "ev-high", ConfidenceScore: 0.9, Content: scan.EvidenceContent{Summary: "filing shows revenue of 52 million"}},
		},
		"bbb222": {
			{ID: "ev-mid", ConfidenceScore: 0.6, Content: scan.EvidenceContent{Summary: "uptime report"}},
		},
	}
}

func TestNativeMarkersNumberedByFirstAppearance(t *testing.T) {
	sections := []scan.ReportSection{
		{Title: "Technical", Content: "The platform is reliable [[claim:bbb222]]. Revenue backs this [[claim:aaa111]]."},
		{Title: "Financial", Content: "Revenue is strong [[claim:aaa111]]."},
	}

	res := Inject("report-1", sections, claimSet(), evidenceSet())
	assert.Equal(t, "The platform is reliable [1]. Revenue backs this [2].", res.Sections[0].Content)
	assert.Equal(t, "Revenue is strong [2].", res.Sections[1].Content)

	require.Len(t, res.Citations, 2)
	assert.Equal(t, 1, res.Citations[0].Number)
	assert.Equal(t, "bbb222", res.Citations[0].ClaimID)
	assert.Equal(t, "Technical", res.Citations[0].SectionLocation)
	assert.Equal(t, 2, res.Citations[1].Number)
	assert.Equal(t, "aaa111", res.Citations[1].ClaimID)
	assert.Equal(t, "ev-high", res.Citations[1].EvidenceItemID)
	assert.Equal(t, "filing shows revenue of 52 million", res.Citations[1].QuotedText)
}

func TestUnsupportedClaimMarkersStrippedWithoutCitation(t *testing.T) {
	sections := []scan.ReportSection{
		{Title: "Market", Content: "Churn is low [[claim:ccc333]]. Revenue is strong [[claim:aaa111]]."},
	}

	res := Inject("report-1", sections, claimSet(), evidenceSet())
	assert.Equal(t, "Churn is low. Revenue is strong [1].", res.Sections[0].Content)
	require.Len(t, res.Citations, 1)
	assert.Equal(t, "aaa111", res.Citations[0].ClaimID)
}

func TestFallbackInsertsBeforeTerminalPunctuation(t *testing.T) {
	sections := []scan.ReportSection{
		{Title: "Financial", Content: "Acme revenue clearly exceeds fifty million dollars. The team is small."},
	}

	res := Inject("report-1", sections, claimSet(), evidenceSet())
	assert.Equal(t, "Acme revenue clearly exceeds fifty million dollars [1]. The team is small.", res.Sections[0].Content)
	require.Len(t, res.Citations, 1)
	assert.Equal(t, "aaa111", res.Citations[0].ClaimID)
	assert.Equal(t, []string{"aaa111"}, res.Sections[0].ClaimIDs)
}

func TestFallbackBelowThresholdAddsNothing(t *testing.T) {
	sections := []scan.ReportSection{
		{Title: "Team", Content: "The founders previously built developer tooling."},
	}

	res := Inject("report-1", sections, claimSet(), evidenceSet())
	assert.Equal(t, "The founders previously built developer tooling.", res.Sections[0].Content)
	assert.Empty(t, res.Citations)
}

func TestInjectionIsIdempotent(t *testing.T) {
	sections := []scan.ReportSection{
		{Title: "Technical", Content: "The platform is reliable [[claim:bbb222]]."},
		{Title: "Financial", Content: "Acme revenue clearly exceeds fifty million dollars."},
	}
	claims := claimSet()
	evidence := evidenceSet()

	first := Inject("report-1", sections, claims, evidence)
	second := Inject("report-1", sections, claims, evidence)
	assert.Equal(t, first, second)
}

func TestCitationNumbersNeverReused(t *testing.T) {
	sections := []scan.ReportSection{
		{Title: "Technical", Content: "Reliable [[claim:bbb222]]."},
		{Title: "Financial", Content: "Strong revenue [[claim:aaa111]]."},
	}

	res := Inject("report-1", sections, claimSet(), evidenceSet())
	seen := map[int]bool{}
	for _, c := range res.Citations {
		assert.False(t, seen[c.Number], "number %d reused", c.Number)
		seen[c.Number] = true
	}
}

func TestCitationIDsStableAcrossRuns(t *testing.T) {
	sections := []scan.ReportSection{
		{Title: "Financial", Content: "Strong revenue [[claim:aaa111]]."},
	}
	a := Inject("report-1", sections, claimSet(), evidenceSet())
	b := Inject("report-1", sections, claimSet(), evidenceSet())
	require.Len(t, a.Citations, 1)
	assert.Equal(t, a.Citations[0].ID, b.Citations[0].ID)

	c := Inject("report-2", sections, claimSet(), evidenceSet())
	assert.NotEqual(t, a.Citations[0].ID, c.Citations[0].ID)
}

func TestKeyTerms(t *testing.T) {
	terms := KeyTerms("Acme revenue exceeds $50M with consistent annual growth and more growth")
	assert.Equal(t, []string{"revenue", "exceeds", "consistent", "annual", "growth"}, terms)
}

func TestOverlapRatio(t *testing.T) {
	terms := []string{"revenue", "exceeds", "annual"}
	assert.InDelta(t, 2.0/3.0, OverlapRatio(terms, "Revenue exceeds expectations."), 0.001)
	assert.Zero(t, OverlapRatio(terms, "The team is great."))
	assert.Zero(t, OverlapRatio(nil, "anything"))
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("First one. Second one! Third one? Trailing fragment")
	assert.Equal(t, []string{"First one.", "Second one!", "Third one?", "Trailing fragment"}, got)
}
