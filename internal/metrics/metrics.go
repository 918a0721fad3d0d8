package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scan lifecycle
	ScansSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "diligence_scans_submitted_total",
			Help: "Total number of scan requests submitted",
		},
	)

	ScansCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diligence_scans_completed_total",
			Help: "Total number of scan runs reaching a terminal stage",
		},
		[]string{"stage"},
	)

	ScanConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "diligence_scan_conflicts_total",
			Help: "Scan triggers rejected because a run was already active",
		},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diligence_scan_duration_seconds",
			Help:    "End-to-end scan pipeline duration in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	// Stage metrics
	StageTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diligence_stage_transitions_total",
			Help: "Pipeline stage transitions",
		},
		[]string{"stage"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diligence_stage_duration_seconds",
			Help:    "Per-stage execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Evidence collection
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diligence_provider_calls_total",
			Help: "Evidence provider calls",
		},
		[]string{"provider", "outcome"},
	)

	ProviderUnavailable = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diligence_provider_unavailable_total",
			Help: "Providers marked unavailable for a claim after retry exhaustion",
		},
		[]string{"provider"},
	)

	EvidenceCollected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "diligence_evidence_items_total",
			Help: "Evidence items persisted after deduplication",
		},
	)

	// Claims
	ClaimsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diligence_claims_settled_total",
			Help: "Claims reaching a terminal status",
		},
		[]string{"status"},
	)

	ReflectionIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diligence_reflection_iterations",
			Help:    "Collection rounds per claim before settling",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	// Generation
	SectionRegenerations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "diligence_section_regenerations_total",
			Help: "Sections regenerated after marker-contract violations",
		},
	)

	SectionsFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "diligence_sections_flagged_total",
			Help: "Sections kept with the low-confidence-unverified flag",
		},
	)

	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diligence_llm_tokens_used_total",
			Help: "Tokens consumed by inference calls",
		},
		[]string{"role"},
	)
)
