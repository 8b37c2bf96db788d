package jina

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbed_Success(t *testing.T) {
	srv := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "jina-embeddings-v3", req.Model)
		assert.Equal(t, []string{"alpha", "beta"}, req.Input)

		// Out-of-order response data must be reassembled by index.
		resp := embedResponse{
			Model: req.Model,
			Data: []embedItem{
				{Index: 1, Embedding: []float32{0, 1}},
				{Index: 0, Embedding: []float32{1, 0}},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	c := NewClient("test-key", WithBaseURL(srv.URL))
	vectors, err := c.Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 0}, vectors[0])
	assert.Equal(t, []float32{0, 1}, vectors[1])
}

func TestEmbed_EmptyInput(t *testing.T) {
	c := NewClient("test-key")
	vectors, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbed_RetriesOnTransientStatus(t *testing.T) {
	var calls atomic.Int64
	srv := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		resp := embedResponse{Data: []embedItem{{Index: 0, Embedding: []float32{1}}}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	c := NewClient("test-key", WithBaseURL(srv.URL))
	vectors, err := c.Embed(context.Background(), []string{"alpha"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, int64(2), calls.Load())
}

func TestEmbed_NonRetryableStatusFailsFast(t *testing.T) {
	var calls atomic.Int64
	srv := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	c := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := c.Embed(context.Background(), []string{"alpha"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int64(1), calls.Load())
}

func TestEmbed_CountMismatchIsError(t *testing.T) {
	srv := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		resp := embedResponse{Data: []embedItem{{Index: 0, Embedding: []float32{1}}}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Embed(context.Background(), []string{"alpha", "beta"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 inputs")
}

func TestEmbed_CanceledContext(t *testing.T) {
	srv := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		resp := embedResponse{Data: []embedItem{{Index: 0, Embedding: []float32{1}}}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Embed(ctx, []string{"alpha"})
	require.Error(t, err)
}

func TestWithModel(t *testing.T) {
	srv := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "jina-embeddings-v2-base-en", req.Model)
		resp := embedResponse{Data: []embedItem{{Index: 0, Embedding: []float32{1}}}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	c := NewClient("test-key", WithBaseURL(srv.URL), WithModel("jina-embeddings-v2-base-en"))
	_, err := c.Embed(context.Background(), []string{"alpha"})
	require.NoError(t, err)
}
