package planner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/scan"
	"github.com/scanforge/diligence/internal/scanerrors"
	"github.com/scanforge/diligence/internal/thesis"
)

func newTestPlanner(t *testing.T) *Planner {
	t.Helper()
	thesis.ResetForTest()
	return New(thesis.Load(), zap.NewNop())
}

func testRequest() scan.ScanRequest {
	return scan.ScanRequest{
		ID:          "scan-1",
		CompanyName: "Acme Analytics",
		Website:     "https://www.acme-analytics.com",
		Thesis:      scan.ThesisDataInfrastructure,
	}
}

func TestPlanIsIdempotent(t *testing.T) {
	p := newTestPlanner(t)
	req := testRequest()

	first, err := p.Plan(req)
	require.NoError(t, err)
	second, err := p.Plan(req)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestPlanOrdersCriticalFirst(t *testing.T) {
	p := newTestPlanner(t)

	claims, err := p.Plan(testRequest())
	require.NoError(t, err)
	require.NotEmpty(t, claims)

	assert.Equal(t, scan.PriorityCritical, claims[0].Priority)
	for i := 1; i < len(claims); i++ {
		assert.GreaterOrEqual(t,
			claims[i-1].Priority.Weight(), claims[i].Priority.Weight(),
			"claim %d out of priority order", i)
	}
}

func TestPlanSubstitutesCompany(t *testing.T) {
	p := newTestPlanner(t)

	claims, err := p.Plan(testRequest())
	require.NoError(t, err)

	for _, c := range claims {
		assert.NotContains(t, c.Statement, "{company}")
		assert.Contains(t, c.Statement, "Acme Analytics")
		for _, q := range c.SearchQueries {
			assert.NotContains(t, q, "{company}")
		}
		assert.Equal(t, scan.ClaimPending, c.Status)
		assert.Zero(t, c.Confidence)
	}
}

func TestPlanUnknownThesisFails(t *testing.T) {
	p := newTestPlanner(t)
	req := testRequest()
	req.Thesis = scan.ThesisType("moonshot")

	_, err := p.Plan(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, scanerrors.ErrUnknownThesis))
	assert.Error(t, p.Validate(req))
}

func TestCompanyKeyPrefersDomain(t *testing.T) {
	tests := []struct {
		name    string
		company Company
		want    string
	}{
		{"domain from url", Company{Name: "Acme", Website: "https://www.acme.com/about"}, "acme.com"},
		{"bare domain", Company{Name: "Acme", Website: "www.acme.io"}, "acme.io"},
		{"name fallback", Company{Name: "  Acme Corp "}, "acme corp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompanyKey(tt.company))
		})
	}
}

func TestClaimIDChangesWithCompany(t *testing.T) {
	a := ClaimID("di-scalability", Company{Name: "Acme", Website: "https://acme.com"})
	b := ClaimID("di-scalability", Company{Name: "Umbrella", Website: "https://umbrella.io"})
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 16)
}
