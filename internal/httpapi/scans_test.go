package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/scan"
	"github.com/scanforge/diligence/internal/scanerrors"
	"github.com/scanforge/diligence/internal/thesis"
)

type fakeStore struct {
	scans     map[string]scan.ScanRequest
	activeRun *scan.WorkflowRun
	latestRun *scan.WorkflowRun
	sections  []scan.ReportSection
	citations []scan.Citation
	score     *scan.ConfidenceScore
}

func newFakeStore() *fakeStore {
	return &fakeStore{scans: make(map[string]scan.ScanRequest)}
}

func (f *fakeStore) CreateScanRequest(_ context.Context, req scan.ScanRequest) error {
	f.scans[req.ID] = req
	return nil
}

func (f *fakeStore) GetScanRequest(_ context.Context, id string) (scan.ScanRequest, error) {
	sr, ok := f.scans[id]
	if !ok {
		return scan.ScanRequest{}, fmt.Errorf("%w: scan request %s", scanerrors.ErrNotFound, id)
	}
	return sr, nil
}

func (f *fakeStore) GetActiveRun(context.Context, string) (*scan.WorkflowRun, error) {
	return f.activeRun, nil
}

func (f *fakeStore) GetLatestRun(context.Context, string) (*scan.WorkflowRun, error) {
	return f.latestRun, nil
}

func (f *fakeStore) ListSections(context.Context, string) ([]scan.ReportSection, error) {
	return f.sections, nil
}

func (f *fakeStore) ListCitations(context.Context, string) ([]scan.Citation, error) {
	return f.citations, nil
}

func (f *fakeStore) GetScore(context.Context, string) (*scan.ConfidenceScore, error) {
	return f.score, nil
}

type fakeWorkflowClient struct {
	started  []string
	signals  []string
	startErr error
}

func (f *fakeWorkflowClient) ExecuteWorkflow(_ context.Context, options client.StartWorkflowOptions, _ interface{}, _ ...interface{}) (client.WorkflowRun, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, options.ID)
	return nil, nil
}

func (f *fakeWorkflowClient) SignalWorkflow(_ context.Context, workflowID, _, signalName string, _ interface{}) error {
	f.signals = append(f.signals, workflowID+":"+signalName)
	return nil
}

func newTestHandler(t *testing.T, store *fakeStore, wf *fakeWorkflowClient, token string) http.Handler {
	t.Helper()
	library := thesis.Load()
	h := NewScanHandler(store, wf, library, zap.NewNop(), token)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func TestSubmitScanStartsWorkflow(t *testing.T) {
	store := newFakeStore()
	wf := &fakeWorkflowClient{}
	mux := newTestHandler(t, store, wf, "")

	body := `{"company_name":"Acme Corp","website":"https://acme.example.com","thesis":"accelerate-growth"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/scans", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		ScanRequestID string `json:"scan_request_id"`
		WorkflowID    string `json:"workflow_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ScanRequestID)
	assert.Equal(t, "scan-"+resp.ScanRequestID, resp.WorkflowID)

	require.Len(t, wf.started, 1)
	stored, ok := store.scans[resp.ScanRequestID]
	require.True(t, ok)
	assert.Equal(t, "Acme Corp", stored.CompanyName)
	assert.Equal(t, scan.RequestPending, stored.Status)
}

func TestSubmitScanRejectsUnknownThesis(t *testing.T) {
	mux := newTestHandler(t, newFakeStore(), &fakeWorkflowClient{}, "")

	body := `{"company_name":"Acme Corp","thesis":"moonshot"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/scans", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown thesis")
}

func TestSubmitScanRequiresCompanyName(t *testing.T) {
	mux := newTestHandler(t, newFakeStore(), &fakeWorkflowClient{}, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/scans", strings.NewReader(`{"thesis":"accelerate-growth"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRescanConflictsWhileRunActive(t *testing.T) {
	store := newFakeStore()
	store.scans["s1"] = scan.ScanRequest{ID: "s1", CompanyName: "Acme", Thesis: scan.ThesisAccelerateGrowth}
	store.activeRun = &scan.WorkflowRun{ID: "run-1", ScanRequestID: "s1", Stage: scan.StageCollecting}
	wf := &fakeWorkflowClient{}
	mux := newTestHandler(t, store, wf, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/scans/s1/run", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, wf.started)
}

func TestRescanStartsWhenNoActiveRun(t *testing.T) {
	store := newFakeStore()
	store.scans["s1"] = scan.ScanRequest{ID: "s1", CompanyName: "Acme", Thesis: scan.ThesisAccelerateGrowth}
	wf := &fakeWorkflowClient{}
	mux := newTestHandler(t, store, wf, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/scans/s1/run", nil))

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"scan-s1"}, wf.started)
}

func TestStatusReturnsRunAndScore(t *testing.T) {
	store := newFakeStore()
	store.scans["s1"] = scan.ScanRequest{ID: "s1", CompanyName: "Acme", Status: scan.RequestComplete}
	store.latestRun = &scan.WorkflowRun{ID: "run-1", ScanRequestID: "s1", Stage: scan.StageComplete, StartedAt: time.Now()}
	store.score = &scan.ConfidenceScore{ScanRequestID: "s1", OverallScore: 72, Grade: "B", Recommendation: scan.RecommendBuy}
	mux := newTestHandler(t, store, &fakeWorkflowClient{}, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/scans/s1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"run-1"`)
	assert.Contains(t, body, `"B"`)
}

func TestStatusUnknownScanIs404(t *testing.T) {
	mux := newTestHandler(t, newFakeStore(), &fakeWorkflowClient{}, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/scans/ghost", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportBeforeGenerationIs409(t *testing.T) {
	store := newFakeStore()
	store.scans["s1"] = scan.ScanRequest{ID: "s1", CompanyName: "Acme"}
	mux := newTestHandler(t, store, &fakeWorkflowClient{}, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/scans/s1/report", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReportReturnsSectionsAndCitations(t *testing.T) {
	store := newFakeStore()
	store.scans["s1"] = scan.ScanRequest{ID: "s1", CompanyName: "Acme"}
	store.sections = []scan.ReportSection{{Title: "Financial Performance", Content: "Revenue grew 40% [1]."}}
	store.citations = []scan.Citation{{ID: "abc", ReportID: "s1", Number: 1}}
	mux := newTestHandler(t, store, &fakeWorkflowClient{}, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/scans/s1/report", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Financial Performance")
	assert.Contains(t, rec.Body.String(), `"number":1`)
}

func TestCancelSignalsActiveRun(t *testing.T) {
	store := newFakeStore()
	store.scans["s1"] = scan.ScanRequest{ID: "s1", CompanyName: "Acme"}
	store.activeRun = &scan.WorkflowRun{ID: "run-1", ScanRequestID: "s1", Stage: scan.StageCollecting}
	wf := &fakeWorkflowClient{}
	mux := newTestHandler(t, store, wf, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/scans/s1/cancel", strings.NewReader(`{"reason":"deal dropped"}`)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, wf.signals, 1)
	assert.Equal(t, "scan-s1:cancel-scan", wf.signals[0])
}

func TestCancelWithoutActiveRunIs409(t *testing.T) {
	store := newFakeStore()
	store.scans["s1"] = scan.ScanRequest{ID: "s1", CompanyName: "Acme"}
	wf := &fakeWorkflowClient{}
	mux := newTestHandler(t, store, wf, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/scans/s1/cancel", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, wf.signals)
}

func TestBearerTokenEnforcedWhenConfigured(t *testing.T) {
	store := newFakeStore()
	store.scans["s1"] = scan.ScanRequest{ID: "s1", CompanyName: "Acme"}
	mux := newTestHandler(t, store, &fakeWorkflowClient{}, "secret")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/scans/s1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest("GET", "/api/v1/scans/s1", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
