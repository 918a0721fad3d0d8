package thesis

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/scanforge/diligence/internal/scan"
	"github.com/scanforge/diligence/internal/scanerrors"
)

// ClaimTemplate is one row of the thesis-keyed claim table. {company} in the
// statement is substituted with the target name at planning time.
type ClaimTemplate struct {
	TemplateID       string              `yaml:"template_id"`
	Dimension        string              `yaml:"dimension"`
	Statement        string              `yaml:"statement"`
	EvidenceTypes    []scan.EvidenceType `yaml:"evidence_types"`
	Queries          []string            `yaml:"queries"`
	Priority         scan.Priority       `yaml:"priority"`
	ConfidenceTarget float64             `yaml:"confidence_target"`
}

// Template holds everything the pipeline needs for one thesis type: the claim
// table and the dimension weights (summing to 100) used by the aggregator.
type Template struct {
	Thesis           scan.ThesisType    `yaml:"thesis"`
	DimensionWeights map[string]float64 `yaml:"dimension_weights"`
	Claims           []ClaimTemplate    `yaml:"claims"`
}

// Library is the loaded thesis template table. New theses are added by adding
// table rows, not code.
type Library struct {
	templates map[scan.ThesisType]Template
}

type libraryFile struct {
	Theses []Template `yaml:"theses"`
}

var (
	mu     sync.RWMutex
	loaded *Library
)

var defaultPaths = []string{
	os.Getenv("THESIS_TEMPLATES_PATH"),
	"/app/config/thesis_templates.yaml",
	"./config/thesis_templates.yaml",
}

// Load returns the shared library, reading the YAML table on first use and
// falling back to the embedded defaults when no file is present.
func Load() *Library {
	mu.RLock()
	if loaded != nil {
		defer mu.RUnlock()
		return loaded
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if loaded != nil {
		return loaded
	}

	for _, p := range defaultPaths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		lib, err := parseLibrary(data)
		if err != nil {
			// A present-but-broken table is a configuration problem; fall
			// through to defaults so the failure surfaces per-thesis.
			continue
		}
		loaded = lib
		return loaded
	}

	loaded = defaultLibrary()
	return loaded
}

// LoadFromBytes builds a library from raw YAML. Used by tests and by callers
// that manage their own config distribution.
func LoadFromBytes(data []byte) (*Library, error) {
	return parseLibrary(data)
}

// ResetForTest clears the shared library singleton.
func ResetForTest() {
	mu.Lock()
	loaded = nil
	mu.Unlock()
}

func parseLibrary(data []byte) (*Library, error) {
	var f libraryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, scanerrors.NewConfigError("thesis_templates.yaml", "", err)
	}
	lib := &Library{templates: make(map[scan.ThesisType]Template, len(f.Theses))}
	for _, t := range f.Theses {
		if err := validateTemplate(t); err != nil {
			return nil, scanerrors.NewConfigError("thesis_templates.yaml", string(t.Thesis), err)
		}
		lib.templates[t.Thesis] = t
	}
	return lib, nil
}

func validateTemplate(t Template) error {
	if t.Thesis == "" {
		return fmt.Errorf("missing thesis name")
	}
	if len(t.Claims) == 0 {
		return fmt.Errorf("no claim templates")
	}
	var sum float64
	for _, w := range t.DimensionWeights {
		sum += w
	}
	if sum < 99.5 || sum > 100.5 {
		return fmt.Errorf("dimension weights sum to %.1f, want 100", sum)
	}
	for _, c := range t.Claims {
		if c.TemplateID == "" || c.Statement == "" || c.Dimension == "" {
			return fmt.Errorf("claim template %q incomplete", c.TemplateID)
		}
		if _, ok := t.DimensionWeights[c.Dimension]; !ok {
			return fmt.Errorf("claim %q references unweighted dimension %q", c.TemplateID, c.Dimension)
		}
		if c.ConfidenceTarget <= 0 || c.ConfidenceTarget > 1 {
			return fmt.Errorf("claim %q confidence target %.2f out of (0,1]", c.TemplateID, c.ConfidenceTarget)
		}
	}
	return nil
}

// Get returns the template for a thesis type. Unknown theses are a
// configuration error: the pipeline must not start.
func (l *Library) Get(t scan.ThesisType) (Template, error) {
	tpl, ok := l.templates[t]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", scanerrors.ErrUnknownThesis, t)
	}
	return tpl, nil
}

// Known reports whether the thesis type exists in the table.
func (l *Library) Known(t scan.ThesisType) bool {
	_, ok := l.templates[t]
	return ok
}

// Dimensions returns the ordered dimension names for a thesis, heaviest
// weight first. Section generation follows this order.
func (tpl Template) Dimensions() []string {
	dims := make([]string, 0, len(tpl.DimensionWeights))
	for d := range tpl.DimensionWeights {
		dims = append(dims, d)
	}
	// Stable order: weight descending, name ascending as tiebreak.
	sort.Slice(dims, func(i, j int) bool {
		wi, wj := tpl.DimensionWeights[dims[i]], tpl.DimensionWeights[dims[j]]
		if wi != wj {
			return wi > wj
		}
		return dims[i] < dims[j]
	})
	return dims
}
