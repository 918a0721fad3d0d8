package activities

import (
	"context"

	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/metrics"
)

// ReflectOnClaimsInput identifies the scan whose claims should be judged.
type ReflectOnClaimsInput struct {
	ScanRequestID string `json:"scan_request_id"`
	RunID         string `json:"run_id"`
	Iteration     int    `json:"iteration"`
}

// ReflectOnClaimsResult tells the workflow whether another collection round
// is needed and which refined queries to use for it.
type ReflectOnClaimsResult struct {
	Pending        int                 `json:"pending"`
	Settled        int                 `json:"settled"`
	RefinedQueries map[string][]string `json:"refined_queries,omitempty"`
}

// ReflectOnClaims evaluates every unsettled claim against its accumulated
// evidence, persists the updated claim state, and gathers refined queries
// for claims that still need another round.
func (a *Activities) ReflectOnClaims(ctx context.Context, in ReflectOnClaimsInput) (*ReflectOnClaimsResult, error) {
	req, err := a.store.GetScanRequest(ctx, in.ScanRequestID)
	if err != nil {
		return nil, err
	}
	claims, err := a.store.ListClaims(ctx, in.ScanRequestID)
	if err != nil {
		return nil, err
	}

	result := &ReflectOnClaimsResult{RefinedQueries: make(map[string][]string)}
	for _, claim := range claims {
		if claim.Status.Terminal() {
			continue
		}

		items, err := a.store.ListEvidenceForClaim(ctx, claim.ID)
		if err != nil {
			return nil, err
		}
		decision := a.engine.Evaluate(ctx, claim, req, items)
		if err := a.store.UpdateClaimState(ctx, decision.Claim); err != nil {
			return nil, err
		}
		metrics.ReflectionIterations.Observe(1)

		if decision.Requeue {
			result.Pending++
			if len(decision.RefinedQueries) > 0 {
				result.RefinedQueries[decision.Claim.ID] = decision.RefinedQueries
			}
			continue
		}
		result.Settled++
		metrics.ClaimsSettled.WithLabelValues(string(decision.Claim.Status)).Inc()
	}

	a.logger.Info("Reflection round complete",
		zap.String("scan_request_id", in.ScanRequestID),
		zap.Int("iteration", in.Iteration),
		zap.Int("pending", result.Pending),
		zap.Int("settled", result.Settled),
	)
	return result, nil
}
