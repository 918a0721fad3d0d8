package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/scan"
	"github.com/scanforge/diligence/internal/thesis"
)

// Company is the planning context for one target.
type Company struct {
	Name    string
	Website string
}

// Planner expands an investment thesis into prioritized research claims.
type Planner struct {
	library *thesis.Library
	logger  *zap.Logger
}

// New creates a planner over a template library.
func New(library *thesis.Library, logger *zap.Logger) *Planner {
	return &Planner{library: library, logger: logger}
}

// Plan returns the ordered claim list for a scan request: critical claims
// first, then by descending priority weight with template order as tiebreak.
// Claim IDs are deterministic so re-planning the same request is idempotent.
func (p *Planner) Plan(req scan.ScanRequest) ([]scan.ResearchClaim, error) {
	tpl, err := p.library.Get(req.Thesis)
	if err != nil {
		return nil, err
	}

	company := Company{Name: req.CompanyName, Website: req.Website}
	claims := make([]scan.ResearchClaim, 0, len(tpl.Claims))
	for _, ct := range tpl.Claims {
		claims = append(claims, scan.ResearchClaim{
			ID:                  ClaimID(ct.TemplateID, company),
			ScanRequestID:       req.ID,
			Dimension:           ct.Dimension,
			Statement:           substitute(ct.Statement, company),
			EvidenceTypesNeeded: ct.EvidenceTypes,
			SearchQueries:       substituteAll(ct.Queries, company),
			Priority:            ct.Priority,
			ConfidenceTarget:    ct.ConfidenceTarget,
			Status:              scan.ClaimPending,
		})
	}

	// Stable sort keeps template order within a priority band.
	sort.SliceStable(claims, func(i, j int) bool {
		return claims[i].Priority.Weight() > claims[j].Priority.Weight()
	})

	p.logger.Info("Planned research claims",
		zap.String("scan_request_id", req.ID),
		zap.String("thesis", string(req.Thesis)),
		zap.Int("claims", len(claims)),
	)
	return claims, nil
}

// ClaimID derives a deterministic claim identifier from the template and the
// company identity, so re-planning produces the same IDs.
func ClaimID(templateID string, c Company) string {
	h := sha256.Sum256([]byte(templateID + "|" + CompanyKey(c)))
	return hex.EncodeToString(h[:])[:16]
}

// CompanyKey normalizes the company identity used in claim hashing. The
// website domain wins when present; bare names fall back to lowercased text.
func CompanyKey(c Company) string {
	if c.Website != "" {
		if u, err := url.Parse(c.Website); err == nil && u.Host != "" {
			host := strings.ToLower(u.Host)
			host = strings.TrimPrefix(host, "www.")
			return host
		}
		return strings.ToLower(strings.TrimPrefix(c.Website, "www."))
	}
	return strings.ToLower(strings.TrimSpace(c.Name))
}

func substitute(s string, c Company) string {
	return strings.ReplaceAll(s, "{company}", c.Name)
}

func substituteAll(in []string, c Company) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = substitute(s, c)
	}
	return out
}

// Validate checks a request before any run starts. Unknown theses fail here,
// never inside the workflow.
func (p *Planner) Validate(req scan.ScanRequest) error {
	if req.CompanyName == "" {
		return fmt.Errorf("scan request %s has no company name", req.ID)
	}
	if !p.library.Known(req.Thesis) {
		_, err := p.library.Get(req.Thesis)
		return err
	}
	return nil
}
