// Package scoring rolls settled per-claim confidence into dimension scores,
// an overall weighted score, and a graded recommendation. Sparse evidence
// caps the recommendation no matter how high the raw score lands.
package scoring

import (
	"sort"

	"github.com/scanforge/diligence/internal/scan"
	"github.com/scanforge/diligence/internal/thesis"
)

// supportFactor discounts claim confidence by how decisively the claim
// settled.
func supportFactor(status scan.ClaimStatus) float64 {
	switch status {
	case scan.ClaimSupported:
		return 1.0
	case scan.ClaimPartial:
		return 0.6
	default:
		return 0.2
	}
}

// Grade thresholds over the 0-100 overall score.
func grade(score float64) string {
	switch {
	case score >= 85:
		return "A"
	case score >= 70:
		return "B"
	case score >= 55:
		return "C"
	case score >= 40:
		return "D"
	default:
		return "F"
	}
}

func rawRecommendation(score float64) scan.Recommendation {
	switch {
	case score >= 80:
		return scan.RecommendStrongBuy
	case score >= 65:
		return scan.RecommendBuy
	case score >= 45:
		return scan.RecommendHold
	default:
		return scan.RecommendPass
	}
}

// rank orders recommendations for confidence capping.
var rank = map[scan.Recommendation]int{
	scan.RecommendPass:      0,
	scan.RecommendHold:      1,
	scan.RecommendBuy:       2,
	scan.RecommendStrongBuy: 3,
}

// capRecommendation bounds the best achievable call by overall confidence so
// sparse evidence cannot produce a confident buy.
func capRecommendation(rec scan.Recommendation, confidence float64) scan.Recommendation {
	ceiling := scan.RecommendStrongBuy
	switch {
	case confidence < 0.3:
		ceiling = scan.RecommendPass
	case confidence < 0.5:
		ceiling = scan.RecommendHold
	}
	if rank[rec] > rank[ceiling] {
		return ceiling
	}
	return rec
}

// Compute produces the final ConfidenceScore for a scan from its settled
// claims and the thesis dimension weights. Pure and deterministic; called
// once, at pipeline end.
func Compute(scanRequestID string, tpl *thesis.Template, claims []scan.ResearchClaim) scan.ConfidenceScore {
	byDimension := make(map[string][]scan.ResearchClaim)
	for _, c := range claims {
		byDimension[c.Dimension] = append(byDimension[c.Dimension], c)
	}

	var dimensions []scan.DimensionScore
	overall := 0.0
	for _, dim := range tpl.Dimensions() {
		ds := dimensionScore(dim, byDimension[dim])
		dimensions = append(dimensions, ds)
		overall += tpl.DimensionWeights[dim] / 100 * ds.Score
	}

	quality, coverage := evidenceQualityCoverage(claims)
	missingRatio, missing := missingCritical(claims)
	confidence := quality * coverage * (1 - missingRatio)

	return scan.ConfidenceScore{
		ScanRequestID:           scanRequestID,
		Dimensions:              dimensions,
		OverallScore:            overall,
		OverallConfidence:       confidence,
		EvidenceQuality:         quality,
		EvidenceCoverage:        coverage,
		MissingCriticalRatio:    missingRatio,
		MissingCriticalEvidence: missing,
		Grade:                   grade(overall),
		Recommendation:          capRecommendation(rawRecommendation(overall), confidence),
	}
}

func dimensionScore(dimension string, claims []scan.ResearchClaim) scan.DimensionScore {
	ds := scan.DimensionScore{Dimension: dimension, ClaimCount: len(claims)}
	var weighted, confSum, weights float64
	for _, c := range claims {
		w := c.Priority.Weight()
		weighted += c.Confidence * w * supportFactor(c.Status)
		confSum += c.Confidence * w
		weights += w
	}
	if weights > 0 {
		ds.Score = weighted / weights * 100
		ds.Confidence = confSum / weights
	}
	return ds
}

// evidenceQualityCoverage: quality is the mean confidence of claims that
// gathered any evidence; coverage is the fraction of claims that did.
func evidenceQualityCoverage(claims []scan.ResearchClaim) (quality, coverage float64) {
	if len(claims) == 0 {
		return 0, 0
	}
	covered := 0
	for _, c := range claims {
		if len(c.SupportingEvidenceIDs) == 0 {
			continue
		}
		covered++
		quality += c.Confidence
	}
	if covered > 0 {
		quality /= float64(covered)
	}
	coverage = float64(covered) / float64(len(claims))
	return quality, coverage
}

// missingCritical returns the fraction of critical claims not supported and
// their statements, for the report's missing-evidence list.
func missingCritical(claims []scan.ResearchClaim) (float64, []string) {
	total := 0
	var missing []string
	for _, c := range claims {
		if c.Priority != scan.PriorityCritical {
			continue
		}
		total++
		if c.Status != scan.ClaimSupported {
			missing = append(missing, c.Statement)
		}
	}
	if total == 0 {
		return 0, nil
	}
	sort.Strings(missing)
	return float64(len(missing)) / float64(total), missing
}
