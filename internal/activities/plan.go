package activities

import (
	"context"

	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/scan"
)

// PlanClaimsInput identifies the scan to plan claims for.
type PlanClaimsInput struct {
	ScanRequestID string `json:"scan_request_id"`
}

// PlanClaimsResult summarizes the planned claim set.
type PlanClaimsResult struct {
	ClaimIDs []string `json:"claim_ids"`
	Critical int      `json:"critical"`
}

// PlanClaims expands the scan's thesis into persisted research claims. Claim
// IDs are deterministic, so replanning after a crash upserts the same set.
// An unknown thesis is a configuration failure and fails the run.
func (a *Activities) PlanClaims(ctx context.Context, in PlanClaimsInput) (*PlanClaimsResult, error) {
	req, err := a.store.GetScanRequest(ctx, in.ScanRequestID)
	if err != nil {
		return nil, err
	}
	if err := a.planner.Validate(req); err != nil {
		return nil, err
	}

	claims, err := a.planner.Plan(req)
	if err != nil {
		return nil, err
	}
	if err := a.store.SaveClaims(ctx, claims); err != nil {
		return nil, err
	}

	result := &PlanClaimsResult{ClaimIDs: make([]string, len(claims))}
	for i, c := range claims {
		result.ClaimIDs[i] = c.ID
		if c.Priority == scan.PriorityCritical {
			result.Critical++
		}
	}
	a.logger.Info("Claims planned",
		zap.String("scan_request_id", in.ScanRequestID),
		zap.Int("claims", len(claims)),
		zap.Int("critical", result.Critical),
	)
	return result, nil
}
