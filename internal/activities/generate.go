package activities

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/scan"
)

// GenerateSectionsInput identifies the scan to write report sections for.
type GenerateSectionsInput struct {
	ScanRequestID string `json:"scan_request_id"`
	RunID         string `json:"run_id"`
}

// GenerateSectionsResult summarizes the generated report body.
type GenerateSectionsResult struct {
	Sections int `json:"sections"`
	Flagged  int `json:"flagged"`
}

// GenerateSections writes one report section per scoring dimension, ordered
// heaviest weight first. Sections replace any previous generation for the
// scan, so a retried stage produces the same report body.
func (a *Activities) GenerateSections(ctx context.Context, in GenerateSectionsInput) (*GenerateSectionsResult, error) {
	req, err := a.store.GetScanRequest(ctx, in.ScanRequestID)
	if err != nil {
		return nil, err
	}
	tpl, err := a.library.Get(req.Thesis)
	if err != nil {
		return nil, err
	}
	claims, err := a.store.ListClaims(ctx, in.ScanRequestID)
	if err != nil {
		return nil, err
	}
	evidence, err := a.store.ListEvidenceForScan(ctx, in.ScanRequestID)
	if err != nil {
		return nil, err
	}

	byDimension := make(map[string][]scan.ResearchClaim)
	for _, c := range claims {
		byDimension[c.Dimension] = append(byDimension[c.Dimension], c)
	}

	result := &GenerateSectionsResult{}
	var sections []scan.ReportSection
	for _, dim := range tpl.Dimensions() {
		section, err := a.generator.GenerateSection(ctx, sectionTitle(dim), byDimension[dim], evidence)
		if err != nil {
			return nil, err
		}
		if section.LowConfidenceUnverified {
			result.Flagged++
		}
		sections = append(sections, section)
	}

	if err := a.store.ReplaceSections(ctx, in.ScanRequestID, sections); err != nil {
		return nil, err
	}
	result.Sections = len(sections)

	a.logger.Info("Report sections generated",
		zap.String("scan_request_id", in.ScanRequestID),
		zap.Int("sections", result.Sections),
		zap.Int("flagged", result.Flagged),
	)
	return result, nil
}

// sectionTitle turns a dimension key like "financial_performance" into a
// report heading.
func sectionTitle(dimension string) string {
	words := strings.Split(dimension, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
