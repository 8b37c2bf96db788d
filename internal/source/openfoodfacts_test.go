package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func offServer(t *testing.T, handler http.HandlerFunc) *OpenFoodFacts {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenFoodFacts(WithOFFBaseURL(srv.URL), WithOFFHTTPClient(srv.Client()))
}

func TestOpenFoodFacts_Enrich(t *testing.T) {
	var gotQuery string
	s := offServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_terms")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"count": 2,
			"products": [
				{"product_name": "Nutella Hazelnut Spread", "brands": "Ferrero,Nutella",
				 "categories": "Spreads,Sweet spreads,Hazelnut spreads",
				 "code": "3017620422003", "quantity": "400 g", "nutriscore_grade": "e"},
				{"product_name": "Peanut Butter", "brands": "Other", "categories": "Spreads"}
			]
		}`))
	})

	res, err := s.Enrich(context.Background(),
		model.ExtractedItem{Name: "Nutella Hazelnut Spread"}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "Nutella Hazelnut Spread", gotQuery)
	assert.Equal(t, "Ferrero", res.Fields["vendor"])
	assert.Equal(t, "Hazelnut spreads", res.Fields["category"])
	assert.Equal(t, "3017620422003", res.Fields["barcode"])
	assert.Equal(t, "400 g", res.Fields["quantity"])
	assert.Equal(t, "E", res.Fields["nutriscore"])
	// Exact name match: similarity 1.0 on top of the 0.5 base.
	assert.InDelta(t, 0.85, res.Confidence, 1e-9)
}

func TestOpenFoodFacts_NoCloseMatch(t *testing.T) {
	s := offServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"count": 1, "products": [{"product_name": "Completely Different Item"}]}`))
	})

	res, err := s.Enrich(context.Background(), model.ExtractedItem{Name: "Nutella"}, Options{})
	require.NoError(t, err)

	assert.Zero(t, res.Confidence)
	assert.Empty(t, res.FieldsEnriched)
	require.Len(t, res.Reasoning, 1)
	assert.Contains(t, res.Reasoning[0], "no product matched")
}

func TestOpenFoodFacts_NonTransientStatusFailsFast(t *testing.T) {
	calls := 0
	s := offServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	_, err := s.Enrich(context.Background(), model.ExtractedItem{Name: "Nutella"}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Equal(t, 1, calls)
}

func TestOpenFoodFacts_RetriesTransientStatus(t *testing.T) {
	calls := 0
	s := offServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"count": 1, "products": [{"product_name": "Nutella", "brands": "Ferrero"}]}`))
	})

	res, err := s.Enrich(context.Background(), model.ExtractedItem{Name: "Nutella"}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, "Ferrero", res.Fields["vendor"])
}

func TestOpenFoodFacts_MalformedBody(t *testing.T) {
	s := offServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	})

	_, err := s.Enrich(context.Background(), model.ExtractedItem{Name: "Nutella"}, Options{})
	assert.Error(t, err)
}

func TestBestOFFProduct(t *testing.T) {
	products := []offProduct{
		{ProductName: "Nutella Spread"},
		{ProductName: "Nutella Hazelnut Spread Jar"},
	}

	best, sim := bestOFFProduct("Nutella Spread", products)
	require.NotNil(t, best)
	assert.Equal(t, "Nutella Spread", best.ProductName)
	assert.InDelta(t, 1.0, sim, 1e-9)

	best, _ = bestOFFProduct("Gearbox", products)
	assert.Nil(t, best)
}
