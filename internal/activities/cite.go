package activities

import (
	"context"

	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/citations"
)

// InjectCitationsInput identifies the scan whose report gets citations.
type InjectCitationsInput struct {
	ScanRequestID string `json:"scan_request_id"`
	RunID         string `json:"run_id"`
}

// InjectCitationsResult counts the assigned citations.
type InjectCitationsResult struct {
	Citations int `json:"citations"`
}

// InjectCitations rewrites claim markers in the generated sections to
// numbered citations and persists the citation list. Citation IDs and
// numbers are deterministic per report, so a retried stage rewrites the
// same rows.
func (a *Activities) InjectCitations(ctx context.Context, in InjectCitationsInput) (*InjectCitationsResult, error) {
	sections, err := a.store.ListSections(ctx, in.ScanRequestID)
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

	out := citations.Inject(in.ScanRequestID, sections, claims, evidence)
	if err := a.store.ReplaceSections(ctx, in.ScanRequestID, out.Sections); err != nil {
		return nil, err
	}
	if err := a.store.ReplaceCitations(ctx, in.ScanRequestID, out.Citations); err != nil {
		return nil, err
	}

	a.logger.Info("Citations injected",
		zap.String("scan_request_id", in.ScanRequestID),
		zap.Int("citations", len(out.Citations)),
	)
	return &InjectCitationsResult{Citations: len(out.Citations)}, nil
}
