package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

// Wikidata performs a generic knowledge-graph entity search. Universal
// fallback; one wbsearchentities round-trip per Enrich call.
type Wikidata struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	enabled bool
}

// WikidataOption configures the Wikidata source.
type WikidataOption func(*Wikidata)

// WithWikidataBaseURL overrides the API base URL (for testing).
func WithWikidataBaseURL(u string) WikidataOption {
	return func(s *Wikidata) { s.baseURL = u }
}

// WithWikidataHTTPClient sets a custom HTTP client.
func WithWikidataHTTPClient(hc *http.Client) WikidataOption {
	return func(s *Wikidata) { s.http = hc }
}

// NewWikidata creates the knowledge-graph source.
func NewWikidata(opts ...WikidataOption) *Wikidata {
	s := &Wikidata{
		baseURL: "https://www.wikidata.org",
		timeout: 10 * time.Second,
		enabled: true,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Wikidata) Name() string { return "wikidata" }

func (s *Wikidata) SupportedSectors() []model.Sector { return nil }

func (s *Wikidata) Enabled() bool { return s.enabled }

func (s *Wikidata) Init(_ context.Context) {}

// wdSearchResponse is the wbsearchentities response subset we consume.
type wdSearchResponse struct {
	Search []wdEntity `json:"search"`
}

type wdEntity struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

func (s *Wikidata) Enrich(ctx context.Context, item model.ExtractedItem, opts Options) (model.EnrichmentResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := newResult(s.Name(), item)

	q := url.Values{}
	q.Set("action", "wbsearchentities")
	q.Set("search", item.Name)
	q.Set("language", "en")
	q.Set("format", "json")
	q.Set("limit", "5")
	q.Set("type", "item")
	reqURL := fmt.Sprintf("%s/w/api.php?%s", s.baseURL, q.Encode())

	resp, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (*wdSearchResponse, error) {
		return s.search(ctx, reqURL)
	})
	if err != nil {
		return model.EnrichmentResult{}, eris.Wrap(err, "wikidata: search")
	}

	var best *wdEntity
	bestSim := 0.0
	for i := range resp.Search {
		sim := nameSimilarity(item.Name, resp.Search[i].Label)
		if sim > bestSim {
			bestSim = sim
			best = &resp.Search[i]
		}
	}
	if best == nil || bestSim < 0.5 {
		b.reason("no Wikidata entity close to %q", item.Name)
		return b.done(0), nil
	}

	b.set("knowledge_graph_id", best.ID)
	b.set("description", best.Description)
	b.set("category", best.Description)
	b.reason("entity %s %q (label similarity %.2f)", best.ID, best.Label, bestSim)

	// Entity search gives identity and a short gloss, not structured
	// attributes; keep confidence modest.
	return b.done(0.4 + 0.3*bestSim), nil
}

func (s *Wikidata) search(ctx context.Context, reqURL string) (*wdSearchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "wikidata: read body")
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("wikidata: status %d: %s", resp.StatusCode, truncate(body, 200))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var parsed wdSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "wikidata: unmarshal response")
	}
	return &parsed, nil
}
