// Package httpapi exposes the scan lifecycle over HTTP: submit, status,
// report retrieval, and cancellation.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/metrics"
	"github.com/scanforge/diligence/internal/scan"
	"github.com/scanforge/diligence/internal/scanerrors"
	"github.com/scanforge/diligence/internal/thesis"
	"github.com/scanforge/diligence/internal/workflows"
)

// Store is the persistence surface the handlers read and write.
type Store interface {
	CreateScanRequest(ctx context.Context, req scan.ScanRequest) error
	GetScanRequest(ctx context.Context, id string) (scan.ScanRequest, error)
	GetActiveRun(ctx context.Context, scanRequestID string) (*scan.WorkflowRun, error)
	GetLatestRun(ctx context.Context, scanRequestID string) (*scan.WorkflowRun, error)
	ListSections(ctx context.Context, scanRequestID string) ([]scan.ReportSection, error)
	ListCitations(ctx context.Context, reportID string) ([]scan.Citation, error)
	GetScore(ctx context.Context, scanRequestID string) (*scan.ConfidenceScore, error)
}

// WorkflowClient is the slice of the Temporal client the handlers use.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error
}

// ScanHandler serves the scan lifecycle endpoints.
type ScanHandler struct {
	store     Store
	temporal  WorkflowClient
	library   *thesis.Library
	logger    *zap.Logger
	authToken string
}

// NewScanHandler creates the handler. An empty authToken disables auth.
func NewScanHandler(store Store, temporal WorkflowClient, library *thesis.Library, logger *zap.Logger, authToken string) *ScanHandler {
	return &ScanHandler{store: store, temporal: temporal, library: library, logger: logger, authToken: authToken}
}

// RegisterRoutes registers scan routes on the provided mux.
func (h *ScanHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/scans", h.handleSubmit)
	mux.HandleFunc("POST /api/v1/scans/{id}/run", h.handleRescan)
	mux.HandleFunc("GET /api/v1/scans/{id}", h.handleStatus)
	mux.HandleFunc("GET /api/v1/scans/{id}/report", h.handleReport)
	mux.HandleFunc("POST /api/v1/scans/{id}/cancel", h.handleCancel)
}

func (h *ScanHandler) authorized(r *http.Request) bool {
	if h.authToken == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == h.authToken
}

type submitScanRequest struct {
	CompanyName string `json:"company_name"`
	Website     string `json:"website"`
	Thesis      string `json:"thesis"`
}

type submitScanResponse struct {
	ScanRequestID string `json:"scan_request_id"`
	WorkflowID    string `json:"workflow_id"`
	Status        string `json:"status"`
}

func (h *ScanHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req submitScanRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.CompanyName == "" {
		writeError(w, http.StatusBadRequest, "company_name is required")
		return
	}
	thesisType := scan.ThesisType(req.Thesis)
	if !h.library.Known(thesisType) {
		writeError(w, http.StatusBadRequest, "unknown thesis: "+req.Thesis)
		return
	}

	sr := scan.ScanRequest{
		ID:          uuid.NewString(),
		CompanyName: req.CompanyName,
		Website:     req.Website,
		Thesis:      thesisType,
		Status:      scan.RequestPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.store.CreateScanRequest(r.Context(), sr); err != nil {
		h.logger.Error("Failed to persist scan request", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to persist scan request")
		return
	}

	workflowID := "scan-" + sr.ID
	_, err := h.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: workflows.TaskQueue,
	}, workflows.ScanWorkflow, workflows.ScanInput{ScanRequestID: sr.ID})
	if err != nil {
		h.logger.Error("Failed to start scan workflow",
			zap.String("scan_request_id", sr.ID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to start scan workflow")
		return
	}

	metrics.ScansSubmitted.Inc()
	h.logger.Info("Scan submitted",
		zap.String("scan_request_id", sr.ID),
		zap.String("company", sr.CompanyName),
		zap.String("thesis", string(sr.Thesis)),
	)
	writeJSON(w, http.StatusAccepted, submitScanResponse{
		ScanRequestID: sr.ID,
		WorkflowID:    workflowID,
		Status:        string(sr.Status),
	})
}

// handleRescan starts a fresh run for an existing scan request. A run is
// rejected with 409 while another run for the same scan is still active.
func (h *ScanHandler) handleRescan(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := r.PathValue("id")

	if _, err := h.store.GetScanRequest(r.Context(), id); err != nil {
		if errors.Is(err, scanerrors.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		h.logger.Error("Failed to load scan request", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load scan request")
		return
	}

	active, err := h.store.GetActiveRun(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to check active run", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to check active run")
		return
	}
	if active != nil {
		metrics.ScanConflicts.Inc()
		writeError(w, http.StatusConflict, scanerrors.ErrRunConflict.Error())
		return
	}

	// Workflow IDs are stable per scan. At most one run is active at a time,
	// so reuse after a terminal run is safe.
	workflowID := "scan-" + id
	_, err = h.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: workflows.TaskQueue,
	}, workflows.ScanWorkflow, workflows.ScanInput{ScanRequestID: id})
	if err != nil {
		h.logger.Error("Failed to start scan workflow", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start scan workflow")
		return
	}

	metrics.ScansSubmitted.Inc()
	writeJSON(w, http.StatusAccepted, submitScanResponse{
		ScanRequestID: id,
		WorkflowID:    workflowID,
		Status:        string(scan.RequestRunning),
	})
}

type scanStatusResponse struct {
	Scan  scan.ScanRequest      `json:"scan"`
	Run   *scan.WorkflowRun     `json:"run,omitempty"`
	Score *scan.ConfidenceScore `json:"score,omitempty"`
}

func (h *ScanHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := r.PathValue("id")

	sr, err := h.store.GetScanRequest(r.Context(), id)
	if err != nil {
		if errors.Is(err, scanerrors.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		h.logger.Error("Failed to load scan request", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load scan request")
		return
	}

	run, err := h.store.GetLatestRun(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load run", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	score, err := h.store.GetScore(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load score", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load score")
		return
	}

	writeJSON(w, http.StatusOK, scanStatusResponse{Scan: sr, Run: run, Score: score})
}

type scanReportResponse struct {
	ScanRequestID string               `json:"scan_request_id"`
	Sections      []scan.ReportSection `json:"sections"`
	Citations     []scan.Citation      `json:"citations"`
	Score         *scan.ConfidenceScore `json:"score,omitempty"`
}

func (h *ScanHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := r.PathValue("id")

	if _, err := h.store.GetScanRequest(r.Context(), id); err != nil {
		if errors.Is(err, scanerrors.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		h.logger.Error("Failed to load scan request", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load scan request")
		return
	}

	sections, err := h.store.ListSections(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load sections", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	if len(sections) == 0 {
		writeError(w, http.StatusConflict, "report not generated yet")
		return
	}
	citationList, err := h.store.ListCitations(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load citations", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	score, err := h.store.GetScore(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load score", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}

	writeJSON(w, http.StatusOK, scanReportResponse{
		ScanRequestID: id,
		Sections:      sections,
		Citations:     citationList,
		Score:         score,
	})
}

type cancelScanRequest struct {
	Reason      string `json:"reason,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

func (h *ScanHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := r.PathValue("id")

	var req cancelScanRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	run, err := h.store.GetActiveRun(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load active run", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load active run")
		return
	}
	if run == nil {
		writeError(w, http.StatusConflict, "no active run to cancel")
		return
	}

	workflowID := "scan-" + id
	if err := h.temporal.SignalWorkflow(r.Context(), workflowID, "", workflows.SignalCancel, workflows.CancelRequest{
		Reason:      req.Reason,
		RequestedBy: req.RequestedBy,
	}); err != nil {
		h.logger.Error("Failed to signal cancel", zap.String("workflow_id", workflowID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to signal cancellation")
		return
	}

	h.logger.Info("Scan cancellation requested",
		zap.String("scan_request_id", id),
		zap.String("reason", req.Reason),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"scan_request_id": id,
		"run_id":          run.ID,
		"status":          "cancelling",
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
