package activities

import (
	"context"

	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/db"
	"github.com/scanforge/diligence/internal/scan"
)

// CollectEvidenceInput carries the scan plus per-claim refined queries from
// the previous reflection round. The map is empty on the first round.
type CollectEvidenceInput struct {
	ScanRequestID  string              `json:"scan_request_id"`
	RunID          string              `json:"run_id"`
	Iteration      int                 `json:"iteration"`
	RefinedQueries map[string][]string `json:"refined_queries,omitempty"`
}

// CollectEvidenceResult reports what the round gathered.
type CollectEvidenceResult struct {
	ItemsCollected       int      `json:"items_collected"`
	ProviderCalls        int      `json:"provider_calls"`
	UnavailableProviders []string `json:"unavailable_providers,omitempty"`
}

// CollectEvidence runs one retrieval round over every unsettled claim.
// Evidence is persisted with its dedup key as a conflict target, so a
// retried round re-inserts nothing. Provider outages are recorded as run
// events but never fail the activity; zero evidence is a valid outcome.
func (a *Activities) CollectEvidence(ctx context.Context, in CollectEvidenceInput) (*CollectEvidenceResult, error) {
	req, err := a.store.GetScanRequest(ctx, in.ScanRequestID)
	if err != nil {
		return nil, err
	}
	claims, err := a.store.ListClaims(ctx, in.ScanRequestID)
	if err != nil {
		return nil, err
	}

	result := &CollectEvidenceResult{}
	unavailable := make(map[string]bool)
	for _, claim := range claims {
		if claim.Status.Terminal() {
			continue
		}

		round, err := a.collector.Collect(ctx, claim, req, in.RefinedQueries[claim.ID])
		if err != nil {
			return nil, err
		}
		result.ProviderCalls += round.ProviderCalls
		for _, p := range round.UnavailableProviders {
			unavailable[p] = true
		}
		if len(round.Items) == 0 {
			continue
		}

		if err := a.store.SaveEvidenceItems(ctx, round.Items); err != nil {
			return nil, err
		}
		ids := make([]string, len(round.Items))
		for i, item := range round.Items {
			ids[i] = item.ID
		}
		if err := a.store.AppendSupportingEvidence(ctx, claim.ID, ids); err != nil {
			return nil, err
		}
		result.ItemsCollected += len(round.Items)
	}

	for p := range unavailable {
		result.UnavailableProviders = append(result.UnavailableProviders, p)
		if err := a.store.SaveRunEvent(ctx, &db.RunEvent{
			RunID:   in.RunID,
			Type:    db.EventProviderOutage,
			Stage:   string(scan.StageCollecting),
			Message: "provider unavailable after retries: " + p,
		}); err != nil {
			a.logger.Warn("Failed to record provider outage event", zap.Error(err))
		}
	}

	a.logger.Info("Evidence round complete",
		zap.String("scan_request_id", in.ScanRequestID),
		zap.Int("iteration", in.Iteration),
		zap.Int("items", result.ItemsCollected),
		zap.Int("provider_calls", result.ProviderCalls),
		zap.Strings("unavailable", result.UnavailableProviders),
	)
	return result, nil
}
