package workflows

import "github.com/scanforge/diligence/internal/scan"

// TaskQueue is the Temporal task queue the scan worker polls.
const TaskQueue = "diligence-scans"

// SignalCancel requests a cooperative stop; the run finishes its current
// stage and lands in CANCELLED.
const SignalCancel = "cancel-scan"

// CancelRequest is the payload of a cancel signal.
type CancelRequest struct {
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by"`
}

// ScanInput starts a due-diligence scan for a persisted scan request.
type ScanInput struct {
	ScanRequestID string `json:"scan_request_id"`
}

// ScanResult is the workflow's final summary. The full report lives in the
// store; this carries only the rollup.
type ScanResult struct {
	RunID             string     `json:"run_id"`
	Stage             scan.Stage `json:"stage"`
	Iterations        int        `json:"iterations"`
	OverallScore      float64    `json:"overall_score"`
	Grade             string     `json:"grade"`
	Recommendation    string     `json:"recommendation"`
	OverallConfidence float64    `json:"overall_confidence"`
	CancelReason      string     `json:"cancel_reason,omitempty"`
}
