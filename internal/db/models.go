package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/scanforge/diligence/internal/scan"
)

// JSONB represents a PostgreSQL jsonb column.
type JSONB map[string]interface{}

// Value implements driver.Valuer.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner.
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}
	return json.Unmarshal(bytes, j)
}

// scanRequestRow maps the scan_requests table.
type scanRequestRow struct {
	ID          string    `db:"id"`
	CompanyName string    `db:"company_name"`
	Website     string    `db:"website"`
	Thesis      string    `db:"thesis"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r scanRequestRow) toDomain() scan.ScanRequest {
	return scan.ScanRequest{
		ID:          r.ID,
		CompanyName: r.CompanyName,
		Website:     r.Website,
		Thesis:      scan.ThesisType(r.Thesis),
		Status:      scan.RequestStatus(r.Status),
		CreatedAt:   r.CreatedAt,
	}
}

// claimRow maps the research_claims table.
type claimRow struct {
	ID                    string         `db:"id"`
	ScanRequestID         string         `db:"scan_request_id"`
	Dimension             string         `db:"dimension"`
	Statement             string         `db:"statement"`
	EvidenceTypesNeeded   pq.StringArray `db:"evidence_types_needed"`
	SearchQueries         pq.StringArray `db:"search_queries"`
	Priority              string         `db:"priority"`
	ConfidenceTarget      float64        `db:"confidence_target"`
	Status                string         `db:"status"`
	Confidence            float64        `db:"confidence"`
	Iteration             int            `db:"iteration"`
	SupportingEvidenceIDs pq.StringArray `db:"supporting_evidence_ids"`
	GapReason             string         `db:"gap_reason"`
	UpdatedAt             time.Time      `db:"updated_at"`
}

func claimToRow(c scan.ResearchClaim) claimRow {
	types := make(pq.StringArray, len(c.EvidenceTypesNeeded))
	for i, t := range c.EvidenceTypesNeeded {
		types[i] = string(t)
	}
	return claimRow{
		ID:                    c.ID,
		ScanRequestID:         c.ScanRequestID,
		Dimension:             c.Dimension,
		Statement:             c.Statement,
		EvidenceTypesNeeded:   types,
		SearchQueries:         pq.StringArray(c.SearchQueries),
		Priority:              string(c.Priority),
		ConfidenceTarget:      c.ConfidenceTarget,
		Status:                string(c.Status),
		Confidence:            c.Confidence,
		Iteration:             c.Iteration,
		SupportingEvidenceIDs: pq.StringArray(c.SupportingEvidenceIDs),
		GapReason:             c.GapReason,
	}
}

func (r claimRow) toDomain() scan.ResearchClaim {
	types := make([]scan.EvidenceType, len(r.EvidenceTypesNeeded))
	for i, t := range r.EvidenceTypesNeeded {
		types[i] = scan.EvidenceType(t)
	}
	return scan.ResearchClaim{
		ID:                    r.ID,
		ScanRequestID:         r.ScanRequestID,
		Dimension:             r.Dimension,
		Statement:             r.Statement,
		EvidenceTypesNeeded:   types,
		SearchQueries:         []string(r.SearchQueries),
		Priority:              scan.Priority(r.Priority),
		ConfidenceTarget:      r.ConfidenceTarget,
		Status:                scan.ClaimStatus(r.Status),
		Confidence:            r.Confidence,
		Iteration:             r.Iteration,
		SupportingEvidenceIDs: []string(r.SupportingEvidenceIDs),
		GapReason:             r.GapReason,
	}
}

// evidenceRow maps the evidence_items table. Content is jsonb; the raw text
// can run long and the three forms travel together.
type evidenceRow struct {
	ID              string    `db:"id"`
	ScanRequestID   string    `db:"scan_request_id"`
	ClaimID         string    `db:"claim_id"`
	Type            string    `db:"type"`
	Content         JSONB     `db:"content"`
	SourceURL       string    `db:"source_url"`
	SourceTool      string    `db:"source_tool"`
	SourceTimestamp time.Time `db:"source_timestamp"`
	ConfidenceScore float64   `db:"confidence_score"`
	RelevanceScore  float64   `db:"relevance_score"`
	DedupKey        string    `db:"dedup_key"`
	CreatedAt       time.Time `db:"created_at"`
}

func evidenceToRow(e scan.EvidenceItem) evidenceRow {
	return evidenceRow{
		ID:            e.ID,
		ScanRequestID: e.ScanRequestID,
		ClaimID:       e.ClaimID,
		Type:          string(e.Type),
		Content: JSONB{
			"raw":       e.Content.Raw,
			"processed": e.Content.Processed,
			"summary":   e.Content.Summary,
		},
		SourceURL:       e.Source.URL,
		SourceTool:      e.Source.Tool,
		SourceTimestamp: e.Source.Timestamp,
		ConfidenceScore: e.ConfidenceScore,
		RelevanceScore:  e.RelevanceScore,
		DedupKey:        e.DedupKey,
	}
}

func (r evidenceRow) toDomain() scan.EvidenceItem {
	content := scan.EvidenceContent{}
	if v, ok := r.Content["raw"].(string); ok {
		content.Raw = v
	}
	if v, ok := r.Content["processed"].(string); ok {
		content.Processed = v
	}
	if v, ok := r.Content["summary"].(string); ok {
		content.Summary = v
	}
	return scan.EvidenceItem{
		ID:            r.ID,
		ScanRequestID: r.ScanRequestID,
		ClaimID:       r.ClaimID,
		Type:          scan.EvidenceType(r.Type),
		Content:       content,
		Source: scan.EvidenceSource{
			URL:       r.SourceURL,
			Tool:      r.SourceTool,
			Timestamp: r.SourceTimestamp,
		},
		ConfidenceScore: r.ConfidenceScore,
		RelevanceScore:  r.RelevanceScore,
		DedupKey:        r.DedupKey,
	}
}

// sectionRow maps the report_sections table.
type sectionRow struct {
	ScanRequestID           string         `db:"scan_request_id"`
	Position                int            `db:"position"`
	Title                   string         `db:"title"`
	Content                 string         `db:"content"`
	Confidence              float64        `db:"confidence"`
	ClaimIDs                pq.StringArray `db:"claim_ids"`
	DataGaps                pq.StringArray `db:"data_gaps"`
	LowConfidenceUnverified bool           `db:"low_confidence_unverified"`
}

func (r sectionRow) toDomain() scan.ReportSection {
	return scan.ReportSection{
		Title:                   r.Title,
		Content:                 r.Content,
		Confidence:              r.Confidence,
		ClaimIDs:                []string(r.ClaimIDs),
		DataGaps:                []string(r.DataGaps),
		LowConfidenceUnverified: r.LowConfidenceUnverified,
	}
}

// citationRow maps the citations table.
type citationRow struct {
	ID              string  `db:"id"`
	ReportID        string  `db:"report_id"`
	ClaimID         string  `db:"claim_id"`
	EvidenceItemID  string  `db:"evidence_item_id"`
	Number          int     `db:"number"`
	QuotedText      string  `db:"quoted_text"`
	Confidence      float64 `db:"confidence"`
	SectionLocation string  `db:"section_location"`
}

func (r citationRow) toDomain() scan.Citation {
	return scan.Citation{
		ID:              r.ID,
		ReportID:        r.ReportID,
		ClaimID:         r.ClaimID,
		EvidenceItemID:  r.EvidenceItemID,
		Number:          r.Number,
		QuotedText:      r.QuotedText,
		Confidence:      r.Confidence,
		SectionLocation: r.SectionLocation,
	}
}

// runRow maps the workflow_runs table. A partial unique index on
// scan_request_id over non-terminal stages enforces the single-active-run
// invariant at the database, not in process memory.
type runRow struct {
	ID            string         `db:"id"`
	ScanRequestID string         `db:"scan_request_id"`
	Stage         string         `db:"stage"`
	Iteration     int            `db:"iteration"`
	StartedAt     time.Time      `db:"started_at"`
	CompletedAt   *time.Time     `db:"completed_at"`
	Errors        pq.StringArray `db:"errors"`
}

func (r runRow) toDomain() scan.WorkflowRun {
	return scan.WorkflowRun{
		ID:            r.ID,
		ScanRequestID: r.ScanRequestID,
		Stage:         scan.Stage(r.Stage),
		Iteration:     r.Iteration,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
		Errors:        []string(r.Errors),
	}
}
