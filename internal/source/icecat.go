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

// Icecat looks products up in the Open Icecat catalog, which covers consumer
// electronics and appliances. Requires a username credential; without one the
// source self-disables.
type Icecat struct {
	baseURL  string
	username string
	http     *http.Client
	timeout  time.Duration
}

// IcecatOption configures the Icecat source.
type IcecatOption func(*Icecat)

// WithIcecatBaseURL overrides the API base URL (for testing).
func WithIcecatBaseURL(u string) IcecatOption {
	return func(s *Icecat) { s.baseURL = u }
}

// WithIcecatHTTPClient sets a custom HTTP client.
func WithIcecatHTTPClient(hc *http.Client) IcecatOption {
	return func(s *Icecat) { s.http = hc }
}

// NewIcecat creates the Icecat source.
func NewIcecat(username string, opts ...IcecatOption) *Icecat {
	s := &Icecat{
		baseURL:  "https://live.icecat.biz",
		username: username,
		timeout:  10 * time.Second,
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

func (s *Icecat) Name() string { return "icecat" }

func (s *Icecat) SupportedSectors() []model.Sector {
	return []model.Sector{model.SectorElectronics, model.SectorConsumerGoods}
}

func (s *Icecat) Enabled() bool { return s.username != "" }

func (s *Icecat) Init(_ context.Context) {}

// icecatResponse is the subset of the product API response we consume.
type icecatResponse struct {
	Data struct {
		GeneralInfo struct {
			Title    string   `json:"Title"`
			Brand    string   `json:"Brand"`
			GTIN     []string `json:"GTIN"`
			Category struct {
				Name struct {
					Value string `json:"Value"`
				} `json:"Name"`
			} `json:"Category"`
		} `json:"GeneralInfo"`
	} `json:"data"`
	Message string `json:"message"`
}

func (s *Icecat) Enrich(ctx context.Context, item model.ExtractedItem, opts Options) (model.EnrichmentResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := newResult(s.Name(), item)

	q := url.Values{}
	q.Set("UserName", s.username)
	q.Set("Language", "en")
	q.Set("Content", "GeneralInfo")
	if item.Vendor != "" {
		q.Set("Brand", item.Vendor)
	}
	q.Set("ProductName", item.Name)
	reqURL := fmt.Sprintf("%s/api?%s", s.baseURL, q.Encode())

	resp, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (*icecatResponse, error) {
		return s.lookup(ctx, reqURL)
	})
	if err != nil {
		return model.EnrichmentResult{}, eris.Wrap(err, "icecat: lookup")
	}

	info := resp.Data.GeneralInfo
	if info.Title == "" {
		b.reason("no Icecat product for %q", item.Name)
		return b.done(0), nil
	}

	sim := nameSimilarity(item.Name, info.Title)
	if sim < 0.3 {
		b.reason("best Icecat hit %q too dissimilar (%.2f)", info.Title, sim)
		return b.done(0), nil
	}

	b.set("vendor", info.Brand)
	b.set("category", info.Category.Name.Value)
	if len(info.GTIN) > 0 {
		b.set("gtin", info.GTIN[0])
	}
	b.reason("matched %q (name similarity %.2f)", info.Title, sim)

	return b.done(0.55 + 0.4*sim), nil
}

func (s *Icecat) lookup(ctx context.Context, reqURL string) (*icecatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "icecat: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "icecat: read body")
	}

	// Icecat answers 404 for unknown products; that is "not found", not failure.
	if resp.StatusCode == http.StatusNotFound {
		return &icecatResponse{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("icecat: status %d: %s", resp.StatusCode, truncate(body, 200))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var parsed icecatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "icecat: unmarshal response")
	}
	return &parsed, nil
}
