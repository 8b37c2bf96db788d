package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

// offMinSimilarity is the name similarity below which a hit is rejected.
const offMinSimilarity = 0.4

// OpenFoodFacts queries the Open Food Facts public registry by product name
// text search. Food sector only; one network round-trip per Enrich call.
type OpenFoodFacts struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	enabled bool
}

// OFFOption configures the Open Food Facts source.
type OFFOption func(*OpenFoodFacts)

// WithOFFBaseURL overrides the API base URL (for testing).
func WithOFFBaseURL(u string) OFFOption {
	return func(s *OpenFoodFacts) { s.baseURL = u }
}

// WithOFFHTTPClient sets a custom HTTP client.
func WithOFFHTTPClient(hc *http.Client) OFFOption {
	return func(s *OpenFoodFacts) { s.http = hc }
}

// NewOpenFoodFacts creates the Open Food Facts source.
func NewOpenFoodFacts(opts ...OFFOption) *OpenFoodFacts {
	s := &OpenFoodFacts{
		baseURL: "https://world.openfoodfacts.org",
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

func (s *OpenFoodFacts) Name() string { return "openfoodfacts" }

func (s *OpenFoodFacts) SupportedSectors() []model.Sector {
	return []model.Sector{model.SectorFood}
}

func (s *OpenFoodFacts) Enabled() bool { return s.enabled }

func (s *OpenFoodFacts) Init(_ context.Context) {}

// offSearchResponse is the subset of the search API response we consume.
type offSearchResponse struct {
	Count    int          `json:"count"`
	Products []offProduct `json:"products"`
}

type offProduct struct {
	ProductName string `json:"product_name"`
	Brands      string `json:"brands"`
	Categories  string `json:"categories"`
	Code        string `json:"code"`
	Quantity    string `json:"quantity"`
	NutriScore  string `json:"nutriscore_grade"`
}

func (s *OpenFoodFacts) Enrich(ctx context.Context, item model.ExtractedItem, opts Options) (model.EnrichmentResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := newResult(s.Name(), item)

	q := url.Values{}
	q.Set("search_terms", item.Name)
	q.Set("search_simple", "1")
	q.Set("action", "process")
	q.Set("json", "1")
	q.Set("page_size", "5")
	reqURL := fmt.Sprintf("%s/cgi/search.pl?%s", s.baseURL, q.Encode())

	resp, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (*offSearchResponse, error) {
		return s.search(ctx, reqURL)
	})
	if err != nil {
		return model.EnrichmentResult{}, eris.Wrap(err, "openfoodfacts: search")
	}

	best, sim := bestOFFProduct(item.Name, resp.Products)
	if best == nil {
		b.reason("no product matched %q (of %d results)", item.Name, resp.Count)
		return b.done(0), nil
	}

	b.set("vendor", firstCSV(best.Brands))
	b.set("category", lastCSV(best.Categories))
	b.set("barcode", best.Code)
	b.set("quantity", best.Quantity)
	b.set("nutriscore", strings.ToUpper(best.NutriScore))
	b.reason("matched %q (name similarity %.2f)", best.ProductName, sim)

	// Registry data is crowd-sourced; cap below curated-catalog confidence.
	return b.done(0.5 + 0.35*sim), nil
}

func (s *OpenFoodFacts) search(ctx context.Context, reqURL string) (*offSearchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "openfoodfacts: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "openfoodfacts: read body")
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("openfoodfacts: status %d: %s", resp.StatusCode, truncate(body, 200))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var parsed offSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "openfoodfacts: unmarshal response")
	}
	return &parsed, nil
}

// bestOFFProduct picks the highest name-similarity product above the cutoff.
func bestOFFProduct(name string, products []offProduct) (*offProduct, float64) {
	var best *offProduct
	bestSim := 0.0
	for i := range products {
		sim := nameSimilarity(name, products[i].ProductName)
		if sim > bestSim {
			bestSim = sim
			best = &products[i]
		}
	}
	if bestSim < offMinSimilarity {
		return nil, 0
	}
	return best, bestSim
}

func firstCSV(s string) string {
	parts := strings.Split(s, ",")
	return strings.TrimSpace(parts[0])
}

func lastCSV(s string) string {
	parts := strings.Split(s, ",")
	return strings.TrimSpace(parts[len(parts)-1])
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
