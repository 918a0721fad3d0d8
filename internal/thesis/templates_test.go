package thesis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/diligence/internal/scan"
	"github.com/scanforge/diligence/internal/scanerrors"
)

func TestDefaultLibraryCoversAllTheses(t *testing.T) {
	lib := defaultLibrary()

	for _, th := range []scan.ThesisType{
		scan.ThesisAccelerateGrowth,
		scan.ThesisDataInfrastructure,
		scan.ThesisBuyAndScale,
		scan.ThesisMarginExpansion,
		scan.ThesisTurnaround,
	} {
		tpl, err := lib.Get(th)
		require.NoError(t, err, "thesis %s", th)
		require.NotEmpty(t, tpl.Claims)

		var sum float64
		for _, w := range tpl.DimensionWeights {
			sum += w
		}
		assert.InDelta(t, 100.0, sum, 0.5, "weights for %s", th)

		// Every thesis must carry at least one critical claim so the
		// missing-critical penalty has teeth.
		hasCritical := false
		for _, c := range tpl.Claims {
			if c.Priority == scan.PriorityCritical {
				hasCritical = true
			}
			assert.Greater(t, c.ConfidenceTarget, 0.0)
			assert.LessOrEqual(t, c.ConfidenceTarget, 1.0)
			_, weighted := tpl.DimensionWeights[c.Dimension]
			assert.True(t, weighted, "claim %s dimension %s", c.TemplateID, c.Dimension)
		}
		assert.True(t, hasCritical, "thesis %s has no critical claim", th)
	}
}

func TestUnknownThesisIsConfigurationError(t *testing.T) {
	lib := defaultLibrary()

	_, err := lib.Get(scan.ThesisType("hypergrowth-memes"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, scanerrors.ErrUnknownThesis))
	assert.False(t, lib.Known(scan.ThesisType("hypergrowth-memes")))
}

func TestLoadFromBytes(t *testing.T) {
	yamlDoc := []byte(`
theses:
  - thesis: data-infrastructure
    dimension_weights:
      technical: 60
      financial: 40
    claims:
      - template_id: t1
        dimension: technical
        statement: "{company} scales"
        evidence_types: [tech_fingerprint]
        queries: ["{company} scaling"]
        priority: critical
        confidence_target: 0.8
`)
	lib, err := LoadFromBytes(yamlDoc)
	require.NoError(t, err)

	tpl, err := lib.Get(scan.ThesisDataInfrastructure)
	require.NoError(t, err)
	assert.Len(t, tpl.Claims, 1)
	assert.Equal(t, scan.PriorityCritical, tpl.Claims[0].Priority)
}

func TestLoadFromBytesRejectsBadWeights(t *testing.T) {
	yamlDoc := []byte(`
theses:
  - thesis: turnaround
    dimension_weights:
      financial: 10
    claims:
      - template_id: t1
        dimension: financial
        statement: "{company} has cash"
        priority: high
        confidence_target: 0.7
`)
	_, err := LoadFromBytes(yamlDoc)
	require.Error(t, err)

	var ce *scanerrors.ConfigError
	assert.True(t, errors.As(err, &ce))
}

func TestDimensionsOrderedByWeight(t *testing.T) {
	lib := defaultLibrary()
	tpl, err := lib.Get(scan.ThesisDataInfrastructure)
	require.NoError(t, err)

	dims := tpl.Dimensions()
	require.NotEmpty(t, dims)
	assert.Equal(t, "technical", dims[0]) // heaviest weight first
	for i := 1; i < len(dims); i++ {
		assert.GreaterOrEqual(t, tpl.DimensionWeights[dims[i-1]], tpl.DimensionWeights[dims[i]])
	}
}
