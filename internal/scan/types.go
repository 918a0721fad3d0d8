package scan

import (
	"time"
)

// ThesisType identifies the investment thesis a scan is evaluated against.
// The set is closed; claim templates are keyed on it.
type ThesisType string

const (
	ThesisAccelerateGrowth   ThesisType = "accelerate-growth"
	ThesisDataInfrastructure ThesisType = "data-infrastructure"
	ThesisBuyAndScale        ThesisType = "buy-and-scale"
	ThesisMarginExpansion    ThesisType = "margin-expansion"
	ThesisTurnaround         ThesisType = "turnaround"
)

// Priority ranks how load-bearing a claim is for the thesis.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Weight returns the scoring weight for a priority level.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityCritical:
		return 1.0
	case PriorityHigh:
		return 0.8
	case PriorityMedium:
		return 0.6
	case PriorityLow:
		return 0.4
	default:
		return 0.5
	}
}

// ClaimStatus is the lifecycle state of a research claim.
type ClaimStatus string

const (
	ClaimPending     ClaimStatus = "pending"
	ClaimResearching ClaimStatus = "researching"
	ClaimSupported   ClaimStatus = "supported"
	ClaimPartial     ClaimStatus = "partial"
	ClaimUnsupported ClaimStatus = "unsupported"
)

// Terminal reports whether a claim needs no further collection rounds.
func (s ClaimStatus) Terminal() bool {
	return s == ClaimSupported || s == ClaimPartial || s == ClaimUnsupported
}

// EvidenceType classifies what kind of evidence a claim needs.
type EvidenceType string

const (
	EvidenceWebContent      EvidenceType = "web_content"
	EvidenceWebSearch       EvidenceType = "web_search"
	EvidenceTechFingerprint EvidenceType = "tech_fingerprint"
	EvidenceSecurityScan    EvidenceType = "security_scan"
	EvidenceFinancialFiling EvidenceType = "financial_filing"
)

// Stage is the orchestrator state for one workflow run.
type Stage string

const (
	StagePlanning   Stage = "PLANNING"
	StageCollecting Stage = "COLLECTING"
	StageReflecting Stage = "REFLECTING"
	StageGenerating Stage = "GENERATING"
	StageCiting     Stage = "CITING"
	StageScoring    Stage = "SCORING"
	StageComplete   Stage = "COMPLETE"
	StageFailed     Stage = "FAILED"
	StageCancelled  Stage = "CANCELLED"
)

// Terminal reports whether the run has finished.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed || s == StageCancelled
}

// RequestStatus is the user-visible lifecycle of a scan request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestRunning   RequestStatus = "running"
	RequestComplete  RequestStatus = "complete"
	RequestFailed    RequestStatus = "failed"
	RequestCancelled RequestStatus = "cancelled"
)

// ScanRequest identifies one company assessment. It owns all claims,
// evidence, and the report for a single run of the pipeline.
type ScanRequest struct {
	ID          string        `json:"id"`
	CompanyName string        `json:"company_name"`
	Website     string        `json:"website"`
	Thesis      ThesisType    `json:"thesis"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ResearchClaim is a verifiable statement about the target company tied to a
// scoring dimension. Created by the planner; mutated only by the
// collect/reflect loop; immutable once the run reaches GENERATING.
type ResearchClaim struct {
	ID                    string         `json:"id"`
	ScanRequestID         string         `json:"scan_request_id"`
	Dimension             string         `json:"dimension"`
	Statement             string         `json:"statement"`
	EvidenceTypesNeeded   []EvidenceType `json:"evidence_types_needed"`
	SearchQueries         []string       `json:"search_queries"`
	Priority              Priority       `json:"priority"`
	ConfidenceTarget      float64        `json:"confidence_target"`
	Status                ClaimStatus    `json:"status"`
	Confidence            float64        `json:"confidence"`
	Iteration             int            `json:"iteration"`
	SupportingEvidenceIDs []string       `json:"supporting_evidence_ids"`
	GapReason             string         `json:"gap_reason,omitempty"`
}

// EvidenceContent carries the raw, processed, and summarized forms of one
// retrieved document.
type EvidenceContent struct {
	Raw       string `json:"raw"`
	Processed string `json:"processed"`
	Summary   string `json:"summary"`
}

// EvidenceSource attributes an evidence item to its origin.
type EvidenceSource struct {
	URL       string    `json:"url,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EvidenceItem is a single piece of source-attributed content supporting or
// refuting a claim. Append-only: never mutated after creation.
type EvidenceItem struct {
	ID              string          `json:"id"`
	ScanRequestID   string          `json:"scan_request_id"`
	ClaimID         string          `json:"claim_id"`
	Type            EvidenceType    `json:"type"`
	Content         EvidenceContent `json:"content"`
	Source          EvidenceSource  `json:"source"`
	ConfidenceScore float64         `json:"confidence_score"`
	RelevanceScore  float64         `json:"relevance_score"`
	DedupKey        string          `json:"dedup_key"`
}

// Citation is a numbered, traceable link from report text to the evidence
// backing it. Numbers are unique per report and assigned by first appearance.
type Citation struct {
	ID              string  `json:"id"`
	ReportID        string  `json:"report_id"`
	ClaimID         string  `json:"claim_id"`
	EvidenceItemID  string  `json:"evidence_item_id"`
	Number          int     `json:"number"`
	QuotedText      string  `json:"quoted_text"`
	Confidence      float64 `json:"confidence"`
	SectionLocation string  `json:"section_location"`
}

// ReportSection is one synthesized, cited section of the final report.
type ReportSection struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Confidence float64  `json:"confidence"`
	ClaimIDs   []string `json:"claim_ids"`
	DataGaps   []string `json:"data_gaps"`
	// LowConfidenceUnverified marks sections kept after a failed
	// regeneration attempt.
	LowConfidenceUnverified bool `json:"low_confidence_unverified,omitempty"`
}

// DimensionScore is one scoring dimension's rollup.
type DimensionScore struct {
	Dimension  string  `json:"dimension"`
	Score      float64 `json:"score"`      // 0-100
	Confidence float64 `json:"confidence"` // 0-1
	ClaimCount int     `json:"claim_count"`
}

// Recommendation is the final investment call.
type Recommendation string

const (
	RecommendStrongBuy Recommendation = "STRONG_BUY"
	RecommendBuy       Recommendation = "BUY"
	RecommendHold      Recommendation = "HOLD"
	RecommendPass      Recommendation = "PASS"
)

// ConfidenceScore is the aggregate result computed once at pipeline end.
type ConfidenceScore struct {
	ScanRequestID           string           `json:"scan_request_id"`
	Dimensions              []DimensionScore `json:"dimensions"`
	OverallScore            float64          `json:"overall_score"`      // 0-100
	OverallConfidence       float64          `json:"overall_confidence"` // 0-1
	EvidenceQuality         float64          `json:"evidence_quality"`
	EvidenceCoverage        float64          `json:"evidence_coverage"`
	MissingCriticalRatio    float64          `json:"missing_critical_ratio"`
	MissingCriticalEvidence []string         `json:"missing_critical_evidence"`
	Grade                   string           `json:"grade"` // A-F
	Recommendation          Recommendation   `json:"recommendation"`
}

// WorkflowRun tracks one end-to-end execution of the pipeline for a scan
// request. At most one non-terminal run may exist per request.
type WorkflowRun struct {
	ID            string     `json:"id"`
	ScanRequestID string     `json:"scan_request_id"`
	Stage         Stage      `json:"stage"`
	Iteration     int        `json:"iteration"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Errors        []string   `json:"errors,omitempty"`
}
