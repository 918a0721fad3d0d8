// Package activities holds the Temporal activities behind the scan pipeline.
// Each activity wraps one stage's work over persisted state so a retried
// stage re-reads the store and only acts on claims not yet settled.
package activities

import (
	"go.uber.org/zap"

	"github.com/scanforge/diligence/internal/db"
	"github.com/scanforge/diligence/internal/evidence"
	"github.com/scanforge/diligence/internal/generator"
	"github.com/scanforge/diligence/internal/planner"
	"github.com/scanforge/diligence/internal/reflection"
	"github.com/scanforge/diligence/internal/thesis"
)

// Activities holds dependencies shared by all pipeline activities.
type Activities struct {
	store     *db.Client
	library   *thesis.Library
	planner   *planner.Planner
	collector *evidence.Collector
	engine    *reflection.Engine
	generator *generator.Generator
	logger    *zap.Logger
}

// NewActivities wires the stage implementations together.
func NewActivities(
	store *db.Client,
	library *thesis.Library,
	claimPlanner *planner.Planner,
	collector *evidence.Collector,
	engine *reflection.Engine,
	sectionGenerator *generator.Generator,
	logger *zap.Logger,
) *Activities {
	return &Activities{
		store:     store,
		library:   library,
		planner:   claimPlanner,
		collector: collector,
		engine:    engine,
		generator: sectionGenerator,
		logger:    logger,
	}
}
