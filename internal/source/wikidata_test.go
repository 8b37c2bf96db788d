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

func wikidataServer(t *testing.T, handler http.HandlerFunc) *Wikidata {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWikidata(WithWikidataBaseURL(srv.URL), WithWikidataHTTPClient(srv.Client()))
}

func TestWikidata_Enrich(t *testing.T) {
	var gotSearch, gotAction string
	s := wikidataServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotSearch = r.URL.Query().Get("search")
		gotAction = r.URL.Query().Get("action")
		_, _ = w.Write([]byte(`{
			"search": [
				{"id": "Q283", "label": "water", "description": "chemical compound"},
				{"id": "Q177", "label": "pizza", "description": "Italian dish"}
			]
		}`))
	})

	res, err := s.Enrich(context.Background(), model.ExtractedItem{Name: "Water"}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "Water", gotSearch)
	assert.Equal(t, "wbsearchentities", gotAction)
	assert.Equal(t, "Q283", res.Fields["knowledge_graph_id"])
	assert.Equal(t, "chemical compound", res.Fields["description"])
	assert.Equal(t, "chemical compound", res.Fields["category"])
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)
}

func TestWikidata_PicksClosestLabel(t *testing.T) {
	s := wikidataServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"search": [
				{"id": "Q1", "label": "hydraulic press brake", "description": "press tool"},
				{"id": "Q2", "label": "hydraulic pump", "description": "fluid pump"}
			]
		}`))
	})

	res, err := s.Enrich(context.Background(), model.ExtractedItem{Name: "Hydraulic Pump"}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "Q2", res.Fields["knowledge_graph_id"])
}

func TestWikidata_NoCloseEntity(t *testing.T) {
	s := wikidataServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"search": [{"id": "Q9", "label": "something else entirely"}]}`))
	})

	res, err := s.Enrich(context.Background(), model.ExtractedItem{Name: "Gearbox"}, Options{})
	require.NoError(t, err)

	assert.Zero(t, res.Confidence)
	require.Len(t, res.Reasoning, 1)
	assert.Contains(t, res.Reasoning[0], "no Wikidata entity")
}

func TestWikidata_EmptySearch(t *testing.T) {
	s := wikidataServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"search": []}`))
	})

	res, err := s.Enrich(context.Background(), model.ExtractedItem{Name: "Gearbox"}, Options{})
	require.NoError(t, err)
	assert.Zero(t, res.Confidence)
}

func TestWikidata_InputDescriptionPreserved(t *testing.T) {
	s := wikidataServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"search": [{"id": "Q283", "label": "water", "description": "chemical compound"}]}`))
	})

	res, err := s.Enrich(context.Background(),
		model.ExtractedItem{Name: "Water", Description: "bottled drinking water"}, Options{})
	require.NoError(t, err)

	assert.NotContains(t, res.Fields, "description")
	assert.Contains(t, res.Fields, "knowledge_graph_id")
}

func TestWikidata_ServerErrorPropagates(t *testing.T) {
	calls := 0
	s := wikidataServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "rate limited", http.StatusBadRequest)
	})

	_, err := s.Enrich(context.Background(), model.ExtractedItem{Name: "Water"}, Options{})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
