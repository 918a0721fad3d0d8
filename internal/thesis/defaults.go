package thesis

import "github.com/scanforge/diligence/internal/scan"

// defaultLibrary is the embedded claim-template table used when no
// thesis_templates.yaml is available. Kept in sync with the shipped config.
func defaultLibrary() *Library {
	templates := []Template{
		{
			Thesis: scan.ThesisAccelerateGrowth,
			DimensionWeights: map[string]float64{
				"market":    25,
				"business":  20,
				"technical": 20,
				"team":      20,
				"financial": 15,
			},
			Claims: []ClaimTemplate{
				{
					TemplateID:       "ag-market-size",
					Dimension:        "market",
					Statement:        "{company} addresses a large and expanding market segment",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceWebSearch, scan.EvidenceWebContent},
					Queries:          []string{"{company} market size", "{company} total addressable market"},
					Priority:         scan.PriorityCritical,
					ConfidenceTarget: 0.75,
				},
				{
					TemplateID:       "ag-revenue-growth",
					Dimension:        "financial",
					Statement:        "{company} shows sustained year-over-year revenue growth",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceFinancialFiling, scan.EvidenceWebSearch},
					Queries:          []string{"{company} revenue growth", "{company} annual report revenue"},
					Priority:         scan.PriorityCritical,
					ConfidenceTarget: 0.8,
				},
				{
					TemplateID:       "ag-product-velocity",
					Dimension:        "technical",
					Statement:        "{company} ships product improvements at a competitive cadence",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceWebContent, scan.EvidenceTechFingerprint},
					Queries:          []string{"{company} product release notes", "{company} changelog"},
					Priority:         scan.PriorityHigh,
					ConfidenceTarget: 0.65,
				},
				{
					TemplateID:       "ag-gtm-motion",
					Dimension:        "business",
					Statement:        "{company} has a repeatable go-to-market motion with named customers",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceWebSearch, scan.EvidenceWebContent},
					Queries:          []string{"{company} customers case study", "{company} pricing plans"},
					Priority:         scan.PriorityHigh,
					ConfidenceTarget: 0.7,
				},
				{
					TemplateID:       "ag-leadership",
					Dimension:        "team",
					Statement:        "{company} leadership has relevant operating experience at scale",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceWebSearch},
					Queries:          []string{"{company} founders background", "{company} executive team"},
					Priority:         scan.PriorityMedium,
					ConfidenceTarget: 0.6,
				},
			},
		},
		{
			Thesis: scan.ThesisDataInfrastructure,
			DimensionWeights: map[string]float64{
				"technical": 30,
				"market":    20,
				"business":  20,
				"team":      15,
				"financial": 15,
			},
			Claims: []ClaimTemplate{
				{
					TemplateID:       "di-scalability",
					Dimension:        "technical",
					Statement:        "{company}'s platform demonstrates horizontal scalability under production load",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceTechFingerprint, scan.EvidenceWebContent},
					Queries:          []string{"{company} architecture scalability", "{company} engineering blog scaling"},
					Priority:         scan.PriorityCritical,
					ConfidenceTarget: 0.75,
				},
				{
					TemplateID:       "di-data-governance",
					Dimension:        "technical",
					Statement:        "{company} has credible data governance and security posture",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceSecurityScan, scan.EvidenceWebContent},
					Queries:          []string{"{company} SOC2 compliance", "{company} data security"},
					Priority:         scan.PriorityCritical,
					ConfidenceTarget: 0.7,
				},
				{
					TemplateID:       "di-dev-ecosystem",
					Dimension:        "business",
					Statement:        "{company} sustains an active developer ecosystem around its platform",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceWebSearch, scan.EvidenceWebContent},
					Queries:          []string{"{company} developer community", "{company} SDK documentation github"},
					Priority:         scan.PriorityHigh,
					ConfidenceTarget: 0.65,
				},
				{
					TemplateID:       "di-revenue-scale",
					Dimension:        "financial",
					Statement:        "{company} revenue exceeds the scale threshold for infrastructure bets",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceFinancialFiling, scan.EvidenceWebSearch},
					Queries:          []string{"{company} ARR revenue", "{company} funding revenue milestone"},
					Priority:         scan.PriorityCritical,
					ConfidenceTarget: 0.8,
				},
				{
					TemplateID:       "di-market-position",
					Dimension:        "market",
					Statement:        "{company} holds a defensible position against hyperscaler alternatives",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceWebSearch},
					Queries:          []string{"{company} vs AWS alternative", "{company} competitive analysis"},
					Priority:         scan.PriorityHigh,
					ConfidenceTarget: 0.7,
				},
				{
					TemplateID:       "di-eng-team",
					Dimension:        "team",
					Statement:        "{company} retains senior infrastructure engineering talent",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceWebSearch},
					Queries:          []string{"{company} engineering team distributed systems", "{company} CTO background"},
					Priority:         scan.PriorityMedium,
					ConfidenceTarget: 0.6,
				},
			},
		},
		{
			Thesis: scan.ThesisBuyAndScale,
			DimensionWeights: map[string]float64{
				"business":  25,
				"financial": 25,
				"market":    20,
				"technical": 15,
				"team":      15,
			},
			Claims: []ClaimTemplate{
				{
					TemplateID:       "bs-unit-economics",
					Dimension:        "financial",
					Statement:        "{company} has positive unit economics that survive scaling",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceFinancialFiling, scan.EvidenceWebSearch},
					Queries:          []string{"{company} gross margin", "{company} unit economics"},
					Priority:         scan.PriorityCritical,
					ConfidenceTarget: 0.8,
				},
				{
					TemplateID:       "bs-playbook-fit",
					Dimension:        "business",
					Statement:        "{company}'s operations fit a known scaling playbook",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceWebContent, scan.EvidenceWebSearch},
					Queries:          []string{"{company} business model", "{company} operations expansion"},
					Priority:         scan.PriorityCritical,
					ConfidenceTarget: 0.7,
				},
				{
					TemplateID:       "bs-fragmented-market",
					Dimension:        "market",
					Statement:        "{company} operates in a fragmented market with roll-up potential",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceWebSearch},
					Queries:          []string{"{company} market fragmentation competitors", "{company} industry consolidation"},
					Priority:         scan.PriorityHigh,
					ConfidenceTarget: 0.65,
				},
				{
					TemplateID:       "bs-tech-debt",
					Dimension:        "technical",
					Statement:        "{company}'s technology stack does not block integration or scaling",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceTechFingerprint, scan.EvidenceSecurityScan},
					Queries:          []string{"{company} technology stack"},
					Priority:         scan.PriorityMedium,
					ConfidenceTarget: 0.6,
				},
				{
					TemplateID:       "bs-mgmt-retention",
					Dimension:        "team",
					Statement:        "{company} management is likely to stay through a transaction",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceWebSearch},
					Queries:          []string{"{company} management tenure", "{company} founder involvement"},
					Priority:         scan.PriorityMedium,
					ConfidenceTarget: 0.55,
				},
			},
		},
		{
			Thesis: scan.ThesisMarginExpansion,
			DimensionWeights: map[string]float64{
				"financial": 30,
				"business":  25,
				"technical": 20,
				"market":    15,
				"team":      10,
			},
			Claims: []ClaimTemplate{
				{
					TemplateID:       "me-cost-structure",
					Dimension:        "financial",
					Statement:        "{company} carries identifiable cost-structure inefficiencies",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceFinancialFiling, scan.EvidenceWebSearch},
					Queries:          []string{"{company} operating expenses", "{company} cost structure"},
					Priority:         scan.PriorityCritical,
					ConfidenceTarget: 0.75,
				},
				{
					TemplateID:       "me-automation-headroom",
					Dimension:        "technical",
					Statement:        "{company} has automation headroom in core workflows",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceTechFingerprint, scan.EvidenceWebContent},
					Queries:          []string{"{company} manual processes", "{company} technology modernization"},
					Priority:         scan.PriorityHigh,
					ConfidenceTarget: 0.65,
				},
				{
					TemplateID:       "me-pricing-power",
					Dimension:        "business",
					Statement:        "{company} has unexercised pricing power with its customer base",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceWebSearch, scan.EvidenceWebContent},
					Queries:          []string{"{company} pricing history", "{company} customer retention"},
					Priority:         scan.PriorityCritical,
					ConfidenceTarget: 0.7,
				},
				{
					TemplateID:       "me-competitive-margin",
					Dimension:        "market",
					Statement:        "{company}'s margins trail comparable operators in its market",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceWebSearch, scan.EvidenceFinancialFiling},
					Queries:          []string{"{company} margin vs competitors", "{company} industry margin benchmark"},
					Priority:         scan.PriorityHigh,
					ConfidenceTarget: 0.65,
				},
				{
					TemplateID:       "me-exec-capability",
					Dimension:        "team",
					Statement:        "{company} leadership can execute an efficiency program",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceWebSearch},
					Queries:          []string{"{company} COO operational background"},
					Priority:         scan.PriorityLow,
					ConfidenceTarget: 0.5,
				},
			},
		},
		{
			Thesis: scan.ThesisTurnaround,
			DimensionWeights: map[string]float64{
				"financial": 30,
				"market":    25,
				"business":  20,
				"team":      15,
				"technical": 10,
			},
			Claims: []ClaimTemplate{
				{
					TemplateID:       "ta-core-asset",
					Dimension:        "business",
					Statement:        "{company} retains a durable core asset despite recent decline",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceWebSearch, scan.EvidenceWebContent},
					Queries:          []string{"{company} core product customers", "{company} brand strength"},
					Priority:         scan.PriorityCritical,
					ConfidenceTarget: 0.75,
				},
				{
					TemplateID:       "ta-cash-runway",
					Dimension:        "financial",
					Statement:        "{company} has cash runway to execute a restructuring",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceFinancialFiling, scan.EvidenceWebSearch},
					Queries:          []string{"{company} cash position debt", "{company} balance sheet"},
					Priority:         scan.PriorityCritical,
					ConfidenceTarget: 0.8,
				},
				{
					TemplateID:       "ta-decline-cause",
					Dimension:        "market",
					Statement:        "{company}'s decline is operational rather than secular market loss",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceWebSearch},
					Queries:          []string{"{company} revenue decline reason", "{company} market demand trend"},
					Priority:         scan.PriorityCritical,
					ConfidenceTarget: 0.7,
				},
				{
					TemplateID:       "ta-new-leadership",
					Dimension:        "team",
					Statement:        "{company} has or can attract turnaround leadership",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceWebSearch},
					Queries:          []string{"{company} new CEO restructuring"},
					Priority:         scan.PriorityMedium,
					ConfidenceTarget: 0.6,
				},
				{
					TemplateID:       "ta-platform-health",
					Dimension:        "technical",
					Statement:        "{company}'s platform remains maintainable and secure",
					EvidenceTypes:    []scan.EvidenceType{scan.EvidenceTechFingerprint, scan.EvidenceSecurityScan},
					Queries:          []string{"{company} website technology"},
					Priority:         scan.PriorityLow,
					ConfidenceTarget: 0.55,
				},
			},
		},
	}

	lib := &Library{templates: make(map[scan.ThesisType]Template, len(templates))}
	for _, t := range templates {
		lib.templates[t.Thesis] = t
	}
	return lib
}
