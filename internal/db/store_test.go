package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/scan"
	"github.com/scanforge/diligence/internal/scanerrors"
)

func init() {
	// Named queries need a bind type for the mock driver.
	sqlx.BindDriver("sqlmock", sqlx.DOLLAR)
}

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return NewClientFromDB(sqlx.NewDb(raw, "sqlmock"), zap.NewNop()), mock
}

func TestAcquireRunInsertsPlanningStage(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec("INSERT INTO workflow_runs").
		WithArgs(sqlmock.AnyArg(), "scan-1", "PLANNING", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run, err := client.AcquireRun(context.Background(), "scan-1")
	require.NoError(t, err)
	assert.Equal(t, scan.StagePlanning, run.Stage)
	assert.Equal(t, "scan-1", run.ScanRequestID)
	assert.NotEmpty(t, run.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireRunConflictOnActiveRun(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec("INSERT INTO workflow_runs").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_workflow_runs_active"})

	_, err := client.AcquireRun(context.Background(), "scan-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, scanerrors.ErrRunConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireRunOtherErrorIsPersistence(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec("INSERT INTO workflow_runs").
		WillReturnError(&pq.Error{Code: "53300"})

	_, err := client.AcquireRun(context.Background(), "scan-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, scanerrors.ErrPersistence)
	assert.NotErrorIs(t, err, scanerrors.ErrRunConflict)
}

func TestTransitionRunStageStampsTerminalCompletion(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec("UPDATE workflow_runs SET stage").
		WithArgs("run-1", "COLLECTING", 1, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE workflow_runs SET stage").
		WithArgs("run-1", "COMPLETE", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, client.TransitionRunStage(context.Background(), "run-1", scan.StageCollecting, 1))
	require.NoError(t, client.TransitionRunStage(context.Background(), "run-1", scan.StageComplete, 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveRunNoneReturnsNil(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectQuery("SELECT id, scan_request_id, stage").
		WithArgs("scan-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	run, err := client.GetActiveRun(context.Background(), "scan-1")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestGetActiveRunReturnsRun(t *testing.T) {
	client, mock := newMockClient(t)
	started := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "scan_request_id", "stage", "iteration", "started_at", "completed_at", "errors",
	}).AddRow("run-1", "scan-1", "REFLECTING", 2, started, nil, pq.StringArray{})
	mock.ExpectQuery("SELECT id, scan_request_id, stage").
		WithArgs("scan-1").
		WillReturnRows(rows)

	run, err := client.GetActiveRun(context.Background(), "scan-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, scan.StageReflecting, run.Stage)
	assert.Equal(t, 2, run.Iteration)
}

func TestSaveEvidenceItemsRunsInTransaction(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO evidence_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO evidence_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	items := []scan.EvidenceItem{
		{ID: "e1", ScanRequestID: "scan-1", ClaimID: "c1", Type: scan.EvidenceWebSearch,
			Source: scan.EvidenceSource{URL: "https://a.example.com", Timestamp: time.Now()}, DedupKey: "k1"},
		{ID: "e2", ScanRequestID: "scan-1", ClaimID: "c1", Type: scan.EvidenceWebSearch,
			Source: scan.EvidenceSource{URL: "https://b.example.com", Timestamp: time.Now()}, DedupKey: "k2"},
	}
	require.NoError(t, client.SaveEvidenceItems(context.Background(), items))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEvidenceItemsRollsBackOnFailure(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO evidence_items").
		WillReturnError(&pq.Error{Code: "53300"})
	mock.ExpectRollback()

	err := client.SaveEvidenceItems(context.Background(), []scan.EvidenceItem{
		{ID: "e1", ScanRequestID: "scan-1", ClaimID: "c1",
			Source: scan.EvidenceSource{Timestamp: time.Now()}, DedupKey: "k1"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, scanerrors.ErrPersistence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendSupportingEvidenceDeduplicates(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectExec("UPDATE research_claims").
		WithArgs("c1", pq.StringArray{"e1", "e2"}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, client.AppendSupportingEvidence(context.Background(), "c1", []string{"e1", "e2"}))
	assert.NoError(t, mock.ExpectationsWereMet())

	// Empty append is a no-op, no query issued.
	require.NoError(t, client.AppendSupportingEvidence(context.Background(), "c1", nil))
}

func TestListClaimsMapsRows(t *testing.T) {
	client, mock := newMockClient(t)
	rows := sqlmock.NewRows([]string{
		"id", "scan_request_id", "dimension", "statement", "evidence_types_needed",
		"search_queries", "priority", "confidence_target", "status", "confidence",
		"iteration", "supporting_evidence_ids", "gap_reason", "updated_at",
	}).AddRow(
		"c1", "scan-1", "financial", "Revenue exceeds $50M",
		pq.StringArray{"web_search", "financial_filing"},
		pq.StringArray{"Acme revenue"}, "critical", 0.8, "supported", 0.85,
		1, pq.StringArray{"e1"}, "", time.Now(),
	)
	mock.ExpectQuery("SELECT id, scan_request_id, dimension").
		WithArgs("scan-1").
		WillReturnRows(rows)

	claims, err := client.ListClaims(context.Background(), "scan-1")
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, scan.PriorityCritical, claims[0].Priority)
	assert.Equal(t, []scan.EvidenceType{scan.EvidenceWebSearch, scan.EvidenceFinancialFiling},
		claims[0].EvidenceTypesNeeded)
	assert.Equal(t, scan.ClaimSupported, claims[0].Status)
}

func TestScoreRoundTripThroughDetail(t *testing.T) {
	score := scan.ConfidenceScore{
		ScanRequestID:     "scan-1",
		OverallScore:      72.5,
		OverallConfidence: 0.61,
		Grade:             "B",
		Recommendation:    scan.RecommendBuy,
		Dimensions: []scan.DimensionScore{
			{Dimension: "financial", Score: 80, Confidence: 0.7, ClaimCount: 3},
		},
	}
	detail, err := jsonbFromScore(score)
	require.NoError(t, err)
	got, err := scoreFromJSONB(detail)
	require.NoError(t, err)
	assert.Equal(t, score, *got)
}
