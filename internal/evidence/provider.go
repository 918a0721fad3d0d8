package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/scanforge/diligence/internal/scan"
	"github.com/scanforge/diligence/internal/scanerrors"
)

// Request is one retrieval task sent to a provider.
type Request struct {
	Query        string            `json:"query,omitempty"`
	URL          string            `json:"url,omitempty"`
	TypeHint     scan.EvidenceType `json:"type_hint"`
	CompanyName  string            `json:"company_name"`
	MaxResults   int               `json:"max_results,omitempty"`
}

// RawEvidence is a provider result before scoring and deduplication.
type RawEvidence struct {
	URL         string     `json:"url,omitempty"`
	Tool        string     `json:"tool,omitempty"`
	Title       string     `json:"title,omitempty"`
	Content     string     `json:"content"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Provider is the uniform capability contract over external evidence
// collaborators. Implementations are consumed polymorphically by the
// collector; their internals are out of scope here.
type Provider interface {
	Name() string
	Types() []scan.EvidenceType
	// CredibilityPrior is the source-credibility weight used when scoring
	// this provider's evidence.
	CredibilityPrior() float64
	Fetch(ctx context.Context, req Request) ([]RawEvidence, error)
}

// Registry maps evidence types to the providers that can serve them.
type Registry struct {
	providers []Provider
}

// NewRegistry creates a registry over a fixed provider set.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// ForTypes returns providers covering any of the requested evidence types,
// in registration order, without duplicates.
func (r *Registry) ForTypes(types []scan.EvidenceType) []Provider {
	want := make(map[scan.EvidenceType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []Provider
	for _, p := range r.providers {
		for _, t := range p.Types() {
			if want[t] {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// All returns every registered provider.
func (r *Registry) All() []Provider {
	return r.providers
}

// HTTPProviderConfig configures one HTTP-backed provider client.
type HTTPProviderConfig struct {
	Name             string
	BaseURL          string
	Path             string
	Types            []scan.EvidenceType
	CredibilityPrior float64
	Timeout          time.Duration
	// RequestsPerSecond paces calls to the upstream service; zero disables
	// pacing.
	RequestsPerSecond float64
}

// HTTPProvider is a thin client over one evidence capability service
// (content fetcher, fingerprint scanner, header scanner, search).
type HTTPProvider struct {
	cfg     HTTPProviderConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPProvider creates a provider client.
func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &HTTPProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

func (p *HTTPProvider) Name() string                { return p.cfg.Name }
func (p *HTTPProvider) Types() []scan.EvidenceType  { return p.cfg.Types }
func (p *HTTPProvider) CredibilityPrior() float64   { return p.cfg.CredibilityPrior }

// Fetch calls the capability service. Timeouts and 5xx responses are
// transient; 4xx responses are permanent for this request.
func (p *HTTPProvider) Fetch(ctx context.Context, req Request) ([]RawEvidence, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, scanerrors.NewProviderError(p.cfg.Name, true, err)
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal provider request: %w", err)
	}

	url := p.cfg.BaseURL + p.cfg.Path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		// Network errors and timeouts are retryable.
		return nil, scanerrors.NewProviderError(p.cfg.Name, true, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, scanerrors.NewProviderError(p.cfg.Name, true,
			fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		return nil, scanerrors.NewProviderError(p.cfg.Name, false,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var out struct {
		Results []RawEvidence `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, scanerrors.NewProviderError(p.cfg.Name, false,
			fmt.Errorf("decode response: %w", err))
	}

	for i := range out.Results {
		if out.Results[i].Tool == "" && out.Results[i].URL == "" {
			out.Results[i].Tool = p.cfg.Name
		}
	}
	return out.Results, nil
}
