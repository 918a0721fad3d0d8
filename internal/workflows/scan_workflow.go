package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/scanforge/diligence/internal/activities"
	"github.com/scanforge/diligence/internal/reflection"
	"github.com/scanforge/diligence/internal/scan"
)

// ScanWorkflow drives one scan request through the full pipeline:
// claim planning, the bounded collect/reflect loop, section generation,
// citation injection, and scoring. Every stage transition is persisted
// before the stage runs, so a crashed worker resumes from durable state
// and already-settled claims are skipped on replay.
func ScanWorkflow(ctx workflow.Context, input ScanInput) (ScanResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting scan workflow", "scan_request_id", input.ScanRequestID)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var acts *activities.Activities

	// A second trigger while a run is active must be rejected, not retried
	// into existence.
	acquireCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	var acquired activities.AcquireRunResult
	if err := workflow.ExecuteActivity(acquireCtx, acts.AcquireRun, activities.AcquireRunInput{
		ScanRequestID: input.ScanRequestID,
	}).Get(ctx, &acquired); err != nil {
		logger.Error("Failed to acquire run", "error", err)
		return ScanResult{}, err
	}
	run := acquired.Run
	result := ScanResult{RunID: run.ID}
	startedAt := workflow.Now(ctx)

	cancel := &cancelState{}
	cancel.listen(ctx, logger)

	transition := func(stage scan.Stage, iteration int, errMsg string) error {
		return workflow.ExecuteActivity(ctx, acts.TransitionStage, activities.TransitionStageInput{
			RunID:         run.ID,
			ScanRequestID: input.ScanRequestID,
			Stage:         stage,
			Iteration:     iteration,
			Error:         errMsg,
		}).Get(ctx, nil)
	}
	fail := func(stage scan.Stage, iteration int, cause error) (ScanResult, error) {
		logger.Error("Scan stage failed", "stage", string(stage), "error", cause)
		if err := transition(scan.StageFailed, iteration, cause.Error()); err != nil {
			logger.Error("Failed to persist FAILED transition", "error", err)
		}
		result.Stage = scan.StageFailed
		return result, cause
	}
	cancelled := func(iteration int) (ScanResult, error) {
		if err := transition(scan.StageCancelled, iteration, cancel.reason); err != nil {
			logger.Error("Failed to persist CANCELLED transition", "error", err)
		}
		result.Stage = scan.StageCancelled
		result.CancelReason = cancel.reason
		logger.Info("Scan cancelled", "reason", cancel.reason)
		return result, nil
	}

	// Planning. AcquireRun already persisted the PLANNING stage.
	if err := workflow.ExecuteActivity(ctx, acts.PlanClaims, activities.PlanClaimsInput{
		ScanRequestID: input.ScanRequestID,
	}).Get(ctx, nil); err != nil {
		return fail(scan.StagePlanning, 0, err)
	}
	if cancel.requested {
		return cancelled(0)
	}

	// Bounded collect/reflect loop.
	var refined map[string][]string
	iteration := 0
	for round := 1; round <= reflection.DefaultMaxIterations; round++ {
		iteration = round
		if err := transition(scan.StageCollecting, round, ""); err != nil {
			return fail(scan.StageCollecting, round, err)
		}
		if err := workflow.ExecuteActivity(ctx, acts.CollectEvidence, activities.CollectEvidenceInput{
			ScanRequestID:  input.ScanRequestID,
			RunID:          run.ID,
			Iteration:      round,
			RefinedQueries: refined,
		}).Get(ctx, nil); err != nil {
			return fail(scan.StageCollecting, round, err)
		}
		if cancel.requested {
			return cancelled(round)
		}

		if err := transition(scan.StageReflecting, round, ""); err != nil {
			return fail(scan.StageReflecting, round, err)
		}
		var reflected activities.ReflectOnClaimsResult
		if err := workflow.ExecuteActivity(ctx, acts.ReflectOnClaims, activities.ReflectOnClaimsInput{
			ScanRequestID: input.ScanRequestID,
			RunID:         run.ID,
			Iteration:     round,
		}).Get(ctx, &reflected); err != nil {
			return fail(scan.StageReflecting, round, err)
		}
		if cancel.requested {
			return cancelled(round)
		}
		if reflected.Pending == 0 {
			break
		}
		refined = reflected.RefinedQueries
	}
	result.Iterations = iteration

	if err := transition(scan.StageGenerating, iteration, ""); err != nil {
		return fail(scan.StageGenerating, iteration, err)
	}
	if err := workflow.ExecuteActivity(ctx, acts.GenerateSections, activities.GenerateSectionsInput{
		ScanRequestID: input.ScanRequestID,
		RunID:         run.ID,
	}).Get(ctx, nil); err != nil {
		return fail(scan.StageGenerating, iteration, err)
	}
	if cancel.requested {
		return cancelled(iteration)
	}

	if err := transition(scan.StageCiting, iteration, ""); err != nil {
		return fail(scan.StageCiting, iteration, err)
	}
	if err := workflow.ExecuteActivity(ctx, acts.InjectCitations, activities.InjectCitationsInput{
		ScanRequestID: input.ScanRequestID,
		RunID:         run.ID,
	}).Get(ctx, nil); err != nil {
		return fail(scan.StageCiting, iteration, err)
	}
	if cancel.requested {
		return cancelled(iteration)
	}

	if err := transition(scan.StageScoring, iteration, ""); err != nil {
		return fail(scan.StageScoring, iteration, err)
	}
	var scored activities.ComputeScoreResult
	if err := workflow.ExecuteActivity(ctx, acts.ComputeScore, activities.ComputeScoreInput{
		ScanRequestID: input.ScanRequestID,
		RunID:         run.ID,
	}).Get(ctx, &scored); err != nil {
		return fail(scan.StageScoring, iteration, err)
	}

	if err := transition(scan.StageComplete, iteration, ""); err != nil {
		return fail(scan.StageScoring, iteration, err)
	}

	// Observe duration without blocking completion.
	detached, _ := workflow.NewDisconnectedContext(ctx)
	detached = workflow.WithActivityOptions(detached, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	workflow.ExecuteActivity(detached, acts.RecordScanDuration, startedAt)

	result.Stage = scan.StageComplete
	result.OverallScore = scored.OverallScore
	result.Grade = scored.Grade
	result.Recommendation = scored.Recommendation
	result.OverallConfidence = scored.OverallConfidence
	logger.Info("Scan workflow completed",
		"scan_request_id", input.ScanRequestID,
		"grade", result.Grade,
		"recommendation", result.Recommendation,
	)
	return result, nil
}
