package db

import (
	"encoding/json"
	"fmt"

	"github.com/scanforge/diligence/internal/scan"
)

// The full score breakdown rides in a jsonb detail column; the scalar columns
// exist for querying and reporting.

func jsonbFromScore(score scan.ConfidenceScore) (JSONB, error) {
	raw, err := json.Marshal(score)
	if err != nil {
		return nil, fmt.Errorf("encode score: %w", err)
	}
	var out JSONB
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("encode score: %w", err)
	}
	return out, nil
}

func scoreFromJSONB(detail JSONB) (*scan.ConfidenceScore, error) {
	raw, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("decode score: %w", err)
	}
	var score scan.ConfidenceScore
	if err := json.Unmarshal(raw, &score); err != nil {
		return nil, fmt.Errorf("decode score: %w", err)
	}
	return &score, nil
}
