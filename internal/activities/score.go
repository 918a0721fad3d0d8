package activities

import (
	"context"

	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/scoring"
)

// ComputeScoreInput identifies the scan to score.
type ComputeScoreInput struct {
	ScanRequestID string `json:"scan_request_id"`
	RunID         string `json:"run_id"`
}

// ComputeScoreResult carries the final rollup back to the workflow.
type ComputeScoreResult struct {
	OverallScore      float64 `json:"overall_score"`
	Grade             string  `json:"grade"`
	Recommendation    string  `json:"recommendation"`
	OverallConfidence float64 `json:"overall_confidence"`
}

// ComputeScore rolls settled claims up into dimension scores, the weighted
// overall score, and the capped recommendation, then persists the result.
// The computation is a pure function of claim state, so re-running it
// overwrites the row with identical values.
func (a *Activities) ComputeScore(ctx context.Context, in ComputeScoreInput) (*ComputeScoreResult, error) {
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

	score := scoring.Compute(in.ScanRequestID, &tpl, claims)
	if err := a.store.SaveScore(ctx, score); err != nil {
		return nil, err
	}

	a.logger.Info("Confidence score computed",
		zap.String("scan_request_id", in.ScanRequestID),
		zap.Float64("overall_score", score.OverallScore),
		zap.String("grade", score.Grade),
		zap.String("recommendation", string(score.Recommendation)),
		zap.Float64("overall_confidence", score.OverallConfidence),
	)
	return &ComputeScoreResult{
		OverallScore:      score.OverallScore,
		Grade:             score.Grade,
		Recommendation:    string(score.Recommendation),
		OverallConfidence: score.OverallConfidence,
	}, nil
}
