// Package registry wires workflows and activities onto a Temporal worker.
package registry

import (
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/activities"
	"github.com/scanforge/diligence/internal/workflows"
)

// Registry registers the scan pipeline on a worker.
type Registry struct {
	logger *zap.Logger
	acts   *activities.Activities
}

// New creates a registry around the shared activity dependencies.
func New(logger *zap.Logger, acts *activities.Activities) *Registry {
	return &Registry{logger: logger, acts: acts}
}

// Register attaches the scan workflow and all its activities to the worker.
func (r *Registry) Register(w worker.Worker) {
	r.logger.Info("Registering scan workflow and activities")

	w.RegisterWorkflow(workflows.ScanWorkflow)

	w.RegisterActivity(r.acts.AcquireRun)
	w.RegisterActivity(r.acts.TransitionStage)
	w.RegisterActivity(r.acts.RecordScanDuration)
	w.RegisterActivity(r.acts.PlanClaims)
	w.RegisterActivity(r.acts.CollectEvidence)
	w.RegisterActivity(r.acts.ReflectOnClaims)
	w.RegisterActivity(r.acts.GenerateSections)
	w.RegisterActivity(r.acts.InjectCitations)
	w.RegisterActivity(r.acts.ComputeScore)
}
