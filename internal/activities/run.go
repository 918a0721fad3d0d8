package activities

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/db"
	"github.com/scanforge/diligence/internal/metrics"
	"github.com/scanforge/diligence/internal/scan"
)

// AcquireRunInput identifies the scan to start a run for.
type AcquireRunInput struct {
	ScanRequestID string `json:"scan_request_id"`
}

// AcquireRunResult carries the new run.
type AcquireRunResult struct {
	Run scan.WorkflowRun `json:"run"`
}

// AcquireRun claims the single active run slot for a scan request. A second
// trigger while a run is active fails with ErrRunConflict; the workflow
// surfaces that as a non-retryable rejection.
func (a *Activities) AcquireRun(ctx context.Context, in AcquireRunInput) (*AcquireRunResult, error) {
	run, err := a.store.AcquireRun(ctx, in.ScanRequestID)
	if err != nil {
		return nil, err
	}
	if err := a.store.UpdateScanStatus(ctx, in.ScanRequestID, scan.RequestRunning); err != nil {
		return nil, err
	}
	return &AcquireRunResult{Run: run}, nil
}

// TransitionStageInput records one stage transition for a run.
type TransitionStageInput struct {
	RunID         string     `json:"run_id"`
	ScanRequestID string     `json:"scan_request_id"`
	Stage         scan.Stage `json:"stage"`
	Iteration     int        `json:"iteration"`
	// Error carries a failure message when the transition is into FAILED.
	Error string `json:"error,omitempty"`
}

// TransitionStage persists a stage transition, the crash-safe resume point.
// The workflow calls it before executing the stage it names.
func (a *Activities) TransitionStage(ctx context.Context, in TransitionStageInput) error {
	if in.Error != "" {
		if err := a.store.RecordRunError(ctx, in.RunID, in.Error); err != nil {
			return err
		}
	}
	if err := a.store.TransitionRunStage(ctx, in.RunID, in.Stage, in.Iteration); err != nil {
		return err
	}
	metrics.StageTransitions.WithLabelValues(string(in.Stage)).Inc()

	// Audit trail is best-effort, never fails the stage.
	if err := a.store.SaveRunEvent(ctx, &db.RunEvent{
		RunID:   in.RunID,
		Type:    db.EventStageTransition,
		Stage:   string(in.Stage),
		Message: in.Error,
	}); err != nil {
		a.logger.Warn("Failed to record run event", zap.Error(err))
	}

	if in.Stage.Terminal() {
		metrics.ScansCompleted.WithLabelValues(string(in.Stage)).Inc()
		status := scan.RequestComplete
		switch in.Stage {
		case scan.StageFailed:
			status = scan.RequestFailed
		case scan.StageCancelled:
			status = scan.RequestCancelled
		}
		if err := a.store.UpdateScanStatus(ctx, in.ScanRequestID, status); err != nil {
			return err
		}
	}

	a.logger.Info("Stage transition persisted",
		zap.String("run_id", in.RunID),
		zap.String("stage", string(in.Stage)),
		zap.Int("iteration", in.Iteration),
	)
	return nil
}

// RecordScanDuration observes the end-to-end duration for a finished run.
func (a *Activities) RecordScanDuration(ctx context.Context, startedAt time.Time) error {
	metrics.ScanDuration.Observe(time.Since(startedAt).Seconds())
	return nil
}
