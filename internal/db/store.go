package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/scan"
	"github.com/scanforge/diligence/internal/scanerrors"
)

// pqUniqueViolation is the Postgres error code for unique constraint hits.
const pqUniqueViolation = "23505"

// persistErr tags a failed write so the orchestrator treats it as fatal for
// the run, while keeping the driver error inspectable.
func persistErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(scanerrors.ErrPersistence, err))
}

// CreateScanRequest inserts a new scan request in SUBMITTED status.
func (c *Client) CreateScanRequest(ctx context.Context, req scan.ScanRequest) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO scan_requests (id, company_name, website, thesis, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, req.ID, req.CompanyName, req.Website, string(req.Thesis), string(req.Status), req.CreatedAt)
	if err != nil {
		return persistErr("create scan request", err)
	}
	return nil
}

// GetScanRequest loads one scan request by id.
func (c *Client) GetScanRequest(ctx context.Context, id string) (scan.ScanRequest, error) {
	var row scanRequestRow
	err := c.db.GetContext(ctx, &row, `
		SELECT id, company_name, website, thesis, status, created_at, updated_at
		FROM scan_requests WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return scan.ScanRequest{}, fmt.Errorf("%w: scan request %s", scanerrors.ErrNotFound, id)
	}
	if err != nil {
		return scan.ScanRequest{}, persistErr("get scan request", err)
	}
	return row.toDomain(), nil
}

// UpdateScanStatus moves a scan request through its lifecycle.
func (c *Client) UpdateScanStatus(ctx context.Context, id string, status scan.RequestStatus) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE scan_requests SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, string(status))
	if err != nil {
		return persistErr("update scan status", err)
	}
	return nil
}

// SaveClaims upserts planned claims. Claim IDs are deterministic, so
// re-planning the same scan is a no-op rather than a duplicate set.
func (c *Client) SaveClaims(ctx context.Context, claims []scan.ResearchClaim) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistErr("save claims", err)
	}
	defer tx.Rollback()

	for _, claim := range claims {
		row := claimToRow(claim)
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO research_claims (
				id, scan_request_id, dimension, statement, evidence_types_needed,
				search_queries, priority, confidence_target, status, confidence,
				iteration, supporting_evidence_ids, gap_reason, updated_at
			) VALUES (
				:id, :scan_request_id, :dimension, :statement, :evidence_types_needed,
				:search_queries, :priority, :confidence_target, :status, :confidence,
				:iteration, :supporting_evidence_ids, :gap_reason, NOW()
			)
			ON CONFLICT (id) DO NOTHING
		`, row); err != nil {
			return persistErr("save claims", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return persistErr("save claims", err)
	}
	return nil
}

// ListClaims returns a scan's claims, critical priority first.
func (c *Client) ListClaims(ctx context.Context, scanRequestID string) ([]scan.ResearchClaim, error) {
	var rows []claimRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT id, scan_request_id, dimension, statement, evidence_types_needed,
		       search_queries, priority, confidence_target, status, confidence,
		       iteration, supporting_evidence_ids, gap_reason, updated_at
		FROM research_claims
		WHERE scan_request_id = $1
		ORDER BY CASE priority
			WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3
		END, id
	`, scanRequestID)
	if err != nil {
		return nil, persistErr("list claims", err)
	}
	claims := make([]scan.ResearchClaim, len(rows))
	for i, r := range rows {
		claims[i] = r.toDomain()
	}
	return claims, nil
}

// UpdateClaimState persists the reflection outcome for one claim: status,
// confidence, iteration, refined queries, and gap reason. The reflection
// stage is the only writer of claim status.
func (c *Client) UpdateClaimState(ctx context.Context, claim scan.ResearchClaim) error {
	row := claimToRow(claim)
	_, err := c.db.NamedExecContext(ctx, `
		UPDATE research_claims SET
			status = :status,
			confidence = :confidence,
			iteration = :iteration,
			search_queries = :search_queries,
			gap_reason = :gap_reason,
			updated_at = NOW()
		WHERE id = :id
	`, row)
	if err != nil {
		return persistErr("update claim state", err)
	}
	return nil
}

// SaveEvidenceItems appends evidence. Rows are append-only; the conflict
// target on (claim_id, dedup_key) makes a retried collection round idempotent
// instead of duplicating items.
func (c *Client) SaveEvidenceItems(ctx context.Context, items []scan.EvidenceItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistErr("save evidence", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		row := evidenceToRow(item)
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO evidence_items (
				id, scan_request_id, claim_id, type, content, source_url,
				source_tool, source_timestamp, confidence_score, relevance_score,
				dedup_key, created_at
			) VALUES (
				:id, :scan_request_id, :claim_id, :type, :content, :source_url,
				:source_tool, :source_timestamp, :confidence_score, :relevance_score,
				:dedup_key, NOW()
			)
			ON CONFLICT (claim_id, dedup_key) DO NOTHING
		`, row); err != nil {
			return persistErr("save evidence", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return persistErr("save evidence", err)
	}
	return nil
}

// AppendSupportingEvidence links evidence ids onto a claim, deduplicated.
func (c *Client) AppendSupportingEvidence(ctx context.Context, claimID string, evidenceIDs []string) error {
	if len(evidenceIDs) == 0 {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `
		UPDATE research_claims
		SET supporting_evidence_ids = ARRAY(
			SELECT DISTINCT e FROM unnest(supporting_evidence_ids || $2::text[]) AS e
		), updated_at = NOW()
		WHERE id = $1
	`, claimID, pq.StringArray(evidenceIDs))
	if err != nil {
		return persistErr("append supporting evidence", err)
	}
	return nil
}

// ListEvidenceForClaim returns a claim's evidence ordered by confidence.
func (c *Client) ListEvidenceForClaim(ctx context.Context, claimID string) ([]scan.EvidenceItem, error) {
	var rows []evidenceRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT id, scan_request_id, claim_id, type, content, source_url,
		       source_tool, source_timestamp, confidence_score, relevance_score,
		       dedup_key, created_at
		FROM evidence_items WHERE claim_id = $1
		ORDER BY confidence_score DESC, id
	`, claimID)
	if err != nil {
		return nil, persistErr("list evidence for claim", err)
	}
	items := make([]scan.EvidenceItem, len(rows))
	for i, r := range rows {
		items[i] = r.toDomain()
	}
	return items, nil
}

// ListEvidenceForScan returns all of a scan's evidence keyed by claim.
func (c *Client) ListEvidenceForScan(ctx context.Context, scanRequestID string) (map[string][]scan.EvidenceItem, error) {
	var rows []evidenceRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT id, scan_request_id, claim_id, type, content, source_url,
		       source_tool, source_timestamp, confidence_score, relevance_score,
		       dedup_key, created_at
		FROM evidence_items WHERE scan_request_id = $1
		ORDER BY confidence_score DESC, id
	`, scanRequestID)
	if err != nil {
		return nil, persistErr("list evidence for scan", err)
	}
	byClaim := make(map[string][]scan.EvidenceItem)
	for _, r := range rows {
		byClaim[r.ClaimID] = append(byClaim[r.ClaimID], r.toDomain())
	}
	return byClaim, nil
}

// ReplaceSections rewrites a scan's report sections in order. Regenerating is
// a full replace, never a merge.
func (c *Client) ReplaceSections(ctx context.Context, scanRequestID string, sections []scan.ReportSection) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistErr("replace sections", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM report_sections WHERE scan_request_id = $1`, scanRequestID); err != nil {
		return persistErr("replace sections", err)
	}
	for i, s := range sections {
		row := sectionRow{
			ScanRequestID:           scanRequestID,
			Position:                i,
			Title:                   s.Title,
			Content:                 s.Content,
			Confidence:              s.Confidence,
			ClaimIDs:                pq.StringArray(s.ClaimIDs),
			DataGaps:                pq.StringArray(s.DataGaps),
			LowConfidenceUnverified: s.LowConfidenceUnverified,
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO report_sections (
				scan_request_id, position, title, content, confidence,
				claim_ids, data_gaps, low_confidence_unverified
			) VALUES (
				:scan_request_id, :position, :title, :content, :confidence,
				:claim_ids, :data_gaps, :low_confidence_unverified
			)
		`, row); err != nil {
			return persistErr("replace sections", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return persistErr("replace sections", err)
	}
	return nil
}

// ListSections returns a scan's report sections in order.
func (c *Client) ListSections(ctx context.Context, scanRequestID string) ([]scan.ReportSection, error) {
	var rows []sectionRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT scan_request_id, position, title, content, confidence,
		       claim_ids, data_gaps, low_confidence_unverified
		FROM report_sections WHERE scan_request_id = $1 ORDER BY position
	`, scanRequestID)
	if err != nil {
		return nil, persistErr("list sections", err)
	}
	sections := make([]scan.ReportSection, len(rows))
	for i, r := range rows {
		sections[i] = r.toDomain()
	}
	return sections, nil
}

// ReplaceCitations rewrites the citation set for a report. Citation ids and
// numbers are deterministic, so a re-run writes identical rows.
func (c *Client) ReplaceCitations(ctx context.Context, reportID string, citations []scan.Citation) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistErr("replace citations", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM citations WHERE report_id = $1`, reportID); err != nil {
		return persistErr("replace citations", err)
	}
	for _, cit := range citations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO citations (
				id, report_id, claim_id, evidence_item_id, number,
				quoted_text, confidence, section_location
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, cit.ID, cit.ReportID, cit.ClaimID, cit.EvidenceItemID, cit.Number,
			cit.QuotedText, cit.Confidence, cit.SectionLocation); err != nil {
			return persistErr("replace citations", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return persistErr("replace citations", err)
	}
	return nil
}

// ListCitations returns a report's citations in number order.
func (c *Client) ListCitations(ctx context.Context, reportID string) ([]scan.Citation, error) {
	var rows []citationRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT id, report_id, claim_id, evidence_item_id, number,
		       quoted_text, confidence, section_location
		FROM citations WHERE report_id = $1 ORDER BY number
	`, reportID)
	if err != nil {
		return nil, persistErr("list citations", err)
	}
	out := make([]scan.Citation, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// SaveScore stores the final confidence score, one row per scan.
func (c *Client) SaveScore(ctx context.Context, score scan.ConfidenceScore) error {
	payload := JSONB{}
	raw, err := jsonbFromScore(score)
	if err != nil {
		return persistErr("save score", err)
	}
	payload = raw
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO confidence_scores (
			scan_request_id, overall_score, overall_confidence, grade,
			recommendation, detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (scan_request_id) DO UPDATE SET
			overall_score = EXCLUDED.overall_score,
			overall_confidence = EXCLUDED.overall_confidence,
			grade = EXCLUDED.grade,
			recommendation = EXCLUDED.recommendation,
			detail = EXCLUDED.detail
	`, score.ScanRequestID, score.OverallScore, score.OverallConfidence,
		score.Grade, string(score.Recommendation), payload)
	if err != nil {
		return persistErr("save score", err)
	}
	return nil
}

// GetScore loads the final score for a scan, or nil when not yet computed.
func (c *Client) GetScore(ctx context.Context, scanRequestID string) (*scan.ConfidenceScore, error) {
	var detail JSONB
	err := c.db.GetContext(ctx, &detail, `
		SELECT detail FROM confidence_scores WHERE scan_request_id = $1
	`, scanRequestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get score", err)
	}
	return scoreFromJSONB(detail)
}

// AcquireRun creates the WorkflowRun for a scan. The partial unique index on
// non-terminal runs makes a second concurrent trigger fail cleanly with
// ErrRunConflict instead of queueing or merging.
func (c *Client) AcquireRun(ctx context.Context, scanRequestID string) (scan.WorkflowRun, error) {
	run := scan.WorkflowRun{
		ID:            uuid.NewString(),
		ScanRequestID: scanRequestID,
		Stage:         scan.StagePlanning,
		StartedAt:     time.Now().UTC(),
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, scan_request_id, stage, iteration, started_at)
		VALUES ($1, $2, $3, 0, $4)
	`, run.ID, run.ScanRequestID, string(run.Stage), run.StartedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return scan.WorkflowRun{}, fmt.Errorf("%w: scan %s already has an active run",
				scanerrors.ErrRunConflict, scanRequestID)
		}
		return scan.WorkflowRun{}, persistErr("acquire run", err)
	}
	c.logger.Info("Workflow run acquired",
		zap.String("run_id", run.ID),
		zap.String("scan_request_id", scanRequestID),
	)
	return run, nil
}

// TransitionRunStage persists a stage transition before the next stage runs.
// Terminal stages also stamp completion.
func (c *Client) TransitionRunStage(ctx context.Context, runID string, stage scan.Stage, iteration int) error {
	var completedAt interface{}
	if stage.Terminal() {
		completedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, `
		UPDATE workflow_runs SET stage = $2, iteration = $3, completed_at = $4
		WHERE id = $1
	`, runID, string(stage), iteration, completedAt)
	if err != nil {
		return persistErr("transition run stage", err)
	}
	return nil
}

// RecordRunError appends an error message to the run's error list.
func (c *Client) RecordRunError(ctx context.Context, runID, message string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE workflow_runs SET errors = array_append(errors, $2) WHERE id = $1
	`, runID, message)
	if err != nil {
		return persistErr("record run error", err)
	}
	return nil
}

// GetActiveRun returns the non-terminal run for a scan, or nil.
func (c *Client) GetActiveRun(ctx context.Context, scanRequestID string) (*scan.WorkflowRun, error) {
	var row runRow
	err := c.db.GetContext(ctx, &row, `
		SELECT id, scan_request_id, stage, iteration, started_at, completed_at, errors
		FROM workflow_runs
		WHERE scan_request_id = $1
		  AND stage NOT IN ('COMPLETE', 'FAILED', 'CANCELLED')
	`, scanRequestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get active run", err)
	}
	run := row.toDomain()
	return &run, nil
}

// GetLatestRun returns the most recent run for a scan, terminal or not.
func (c *Client) GetLatestRun(ctx context.Context, scanRequestID string) (*scan.WorkflowRun, error) {
	var row runRow
	err := c.db.GetContext(ctx, &row, `
		SELECT id, scan_request_id, stage, iteration, started_at, completed_at, errors
		FROM workflow_runs
		WHERE scan_request_id = $1
		ORDER BY started_at DESC LIMIT 1
	`, scanRequestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get latest run", err)
	}
	run := row.toDomain()
	return &run, nil
}
