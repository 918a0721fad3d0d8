package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/scan"
)

// QueryRefiner asks the model for sharper search queries for a claim that
// has not reached its confidence target. Satisfies the reflection engine's
// refiner capability.
type QueryRefiner struct {
	client *Client
	logger *zap.Logger
}

// NewQueryRefiner wraps a client.
func NewQueryRefiner(client *Client, logger *zap.Logger) *QueryRefiner {
	return &QueryRefiner{client: client, logger: logger}
}

const maxRefinedQueries = 4

// RefineQueries returns new search queries targeting the claim's evidence
// gaps. Queries already tried are excluded from the output.
func (r *QueryRefiner) RefineQueries(ctx context.Context, claim scan.ResearchClaim, gaps []scan.EvidenceType, usedQueries []string) ([]string, error) {
	gapNames := make([]string, len(gaps))
	for i, g := range gaps {
		gapNames[i] = string(g)
	}

	prompt := fmt.Sprintf(`You refine web search queries for investment due diligence.

Claim under research: %s
Evidence types still missing: %s
Queries already tried (do NOT repeat them): %s

Produce up to %d new, specific search queries that would surface evidence for
this claim. Prefer queries targeting the missing evidence types. Output JSON
ONLY, no prose:
{"queries": ["...", "..."]}`,
		claim.Statement,
		strings.Join(gapNames, ", "),
		strings.Join(usedQueries, "; "),
		maxRefinedQueries,
	)

	resp, err := r.client.Generate(ctx, Request{
		Prompt:    prompt,
		Role:      "query_refiner",
		ForceJSON: true,
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Queries []string `json:"queries"`
	}
	if err := DecodeJSON(resp.Text, &out); err != nil {
		return nil, err
	}

	used := make(map[string]bool, len(usedQueries))
	for _, q := range usedQueries {
		used[strings.ToLower(strings.TrimSpace(q))] = true
	}
	var queries []string
	for _, q := range out.Queries {
		q = strings.TrimSpace(q)
		if q == "" || used[strings.ToLower(q)] {
			continue
		}
		queries = append(queries, q)
		if len(queries) == maxRefinedQueries {
			break
		}
	}
	r.logger.Debug("Refined claim queries",
		zap.String("claim_id", claim.ID),
		zap.Int("count", len(queries)),
	)
	return queries, nil
}
