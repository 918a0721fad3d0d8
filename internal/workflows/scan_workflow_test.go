package workflows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/scanforge/diligence/internal/activities"
	"github.com/scanforge/diligence/internal/scan"
)

// pipelineStubs records what each stubbed activity saw so tests can assert
// on stage ordering and loop behavior.
type pipelineStubs struct {
	transitions   []activities.TransitionStageInput
	collectInputs []activities.CollectEvidenceInput
	reflectFn     func(round int) *activities.ReflectOnClaimsResult
	generateErr   error
	acquireErr    error
}

func (s *pipelineStubs) register(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.AcquireRunInput) (*activities.AcquireRunResult, error) {
		if s.acquireErr != nil {
			return nil, s.acquireErr
		}
		return &activities.AcquireRunResult{Run: scan.WorkflowRun{
			ID:            "run-1",
			ScanRequestID: in.ScanRequestID,
			Stage:         scan.StagePlanning,
			StartedAt:     time.Now(),
		}}, nil
	}, activity.RegisterOptions{Name: "AcquireRun"})

	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.TransitionStageInput) error {
		s.transitions = append(s.transitions, in)
		return nil
	}, activity.RegisterOptions{Name: "TransitionStage"})

	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.PlanClaimsInput) (*activities.PlanClaimsResult, error) {
		return &activities.PlanClaimsResult{ClaimIDs: []string{"c1", "c2"}, Critical: 1}, nil
	}, activity.RegisterOptions{Name: "PlanClaims"})

	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.CollectEvidenceInput) (*activities.CollectEvidenceResult, error) {
		s.collectInputs = append(s.collectInputs, in)
		return &activities.CollectEvidenceResult{ItemsCollected: 2}, nil
	}, activity.RegisterOptions{Name: "CollectEvidence"})

	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.ReflectOnClaimsInput) (*activities.ReflectOnClaimsResult, error) {
		return s.reflectFn(in.Iteration), nil
	}, activity.RegisterOptions{Name: "ReflectOnClaims"})

	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.GenerateSectionsInput) (*activities.GenerateSectionsResult, error) {
		if s.generateErr != nil {
			return nil, s.generateErr
		}
		return &activities.GenerateSectionsResult{Sections: 3}, nil
	}, activity.RegisterOptions{Name: "GenerateSections"})

	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.InjectCitationsInput) (*activities.InjectCitationsResult, error) {
		return &activities.InjectCitationsResult{Citations: 4}, nil
	}, activity.RegisterOptions{Name: "InjectCitations"})

	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.ComputeScoreInput) (*activities.ComputeScoreResult, error) {
		return &activities.ComputeScoreResult{
			OverallScore:      82.5,
			Grade:             "B",
			Recommendation:    "BUY",
			OverallConfidence: 0.74,
		}, nil
	}, activity.RegisterOptions{Name: "ComputeScore"})

	env.RegisterActivityWithOptions(func(ctx context.Context, startedAt time.Time) error {
		return nil
	}, activity.RegisterOptions{Name: "RecordScanDuration"})
}

func (s *pipelineStubs) stages() []scan.Stage {
	out := make([]scan.Stage, len(s.transitions))
	for i, tr := range s.transitions {
		out[i] = tr.Stage
	}
	return out
}

func settleAfter(rounds int) func(int) *activities.ReflectOnClaimsResult {
	return func(round int) *activities.ReflectOnClaimsResult {
		if round >= rounds {
			return &activities.ReflectOnClaimsResult{Settled: 2}
		}
		return &activities.ReflectOnClaimsResult{
			Pending: 1,
			Settled: 1,
			RefinedQueries: map[string][]string{
				"c2": {"acme corp annual report revenue"},
			},
		}
	}
}

func TestScanWorkflowCompletesInOneRound(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stubs := &pipelineStubs{reflectFn: settleAfter(1)}
	stubs.register(env)

	env.ExecuteWorkflow(ScanWorkflow, ScanInput{ScanRequestID: "scan-1"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out ScanResult
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, scan.StageComplete, out.Stage)
	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, 1, out.Iterations)
	assert.Equal(t, "B", out.Grade)
	assert.Equal(t, "BUY", out.Recommendation)
	assert.InDelta(t, 82.5, out.OverallScore, 1e-9)

	assert.Equal(t, []scan.Stage{
		scan.StageCollecting,
		scan.StageReflecting,
		scan.StageGenerating,
		scan.StageCiting,
		scan.StageScoring,
		scan.StageComplete,
	}, stubs.stages())
}

func TestScanWorkflowLoopsWithRefinedQueries(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stubs := &pipelineStubs{reflectFn: settleAfter(2)}
	stubs.register(env)

	env.ExecuteWorkflow(ScanWorkflow, ScanInput{ScanRequestID: "scan-1"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out ScanResult
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, 2, out.Iterations)

	require.Len(t, stubs.collectInputs, 2)
	assert.Empty(t, stubs.collectInputs[0].RefinedQueries)
	assert.Equal(t, []string{"acme corp annual report revenue"}, stubs.collectInputs[1].RefinedQueries["c2"])
}

func TestScanWorkflowStopsAfterThreeRounds(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stubs := &pipelineStubs{reflectFn: func(int) *activities.ReflectOnClaimsResult {
		return &activities.ReflectOnClaimsResult{Pending: 1}
	}}
	stubs.register(env)

	env.ExecuteWorkflow(ScanWorkflow, ScanInput{ScanRequestID: "scan-1"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out ScanResult
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, 3, out.Iterations)
	assert.Len(t, stubs.collectInputs, 3)
	assert.Equal(t, scan.StageComplete, out.Stage)
}

func TestScanWorkflowFailsAndPersistsFailedStage(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stubs := &pipelineStubs{
		reflectFn:   settleAfter(1),
		generateErr: errors.New("inference service unreachable"),
	}
	stubs.register(env)

	env.ExecuteWorkflow(ScanWorkflow, ScanInput{ScanRequestID: "scan-1"})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())

	stages := stubs.stages()
	require.NotEmpty(t, stages)
	assert.Equal(t, scan.StageFailed, stages[len(stages)-1])
	assert.Contains(t, stubs.transitions[len(stubs.transitions)-1].Error, "inference service unreachable")
}

func TestScanWorkflowRejectsWhenRunAlreadyActive(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stubs := &pipelineStubs{
		reflectFn:  settleAfter(1),
		acquireErr: errors.New("active run conflict: scan scan-1 already has an active run"),
	}
	stubs.register(env)

	env.ExecuteWorkflow(ScanWorkflow, ScanInput{ScanRequestID: "scan-1"})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	assert.Empty(t, stubs.transitions)
}

func TestScanWorkflowCancelSignalLandsInCancelled(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stubs := &pipelineStubs{reflectFn: settleAfter(3)}
	stubs.register(env)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalCancel, CancelRequest{Reason: "deal dropped", RequestedBy: "analyst"})
	}, 0)

	env.ExecuteWorkflow(ScanWorkflow, ScanInput{ScanRequestID: "scan-1"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out ScanResult
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, scan.StageCancelled, out.Stage)
	assert.Equal(t, "deal dropped", out.CancelReason)

	stages := stubs.stages()
	require.NotEmpty(t, stages)
	assert.Equal(t, scan.StageCancelled, stages[len(stages)-1])
}
