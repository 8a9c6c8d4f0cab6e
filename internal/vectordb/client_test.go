package vectordb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSearchQueryEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/culturax/points/query", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 35, body["limit"])

		resp := map[string]interface{}{
			"status": "ok",
			"result": map[string]interface{}{
				"points": []map[string]interface{}{
					{"id": 7, "score": 0.91, "payload": map[string]interface{}{"text": "pierwszy"}},
					{"id": 3, "score": 0.85, "payload": map[string]interface{}{"text": "drugi"}},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Collection: "culturax", Dimension: 3}, zaptest.NewLogger(t))
	hits, err := c.Search(context.Background(), []float32{0.1, 0.2, 0.3}, 35)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.EqualValues(t, 7, hits[0].ID)
	assert.Equal(t, "pierwszy", hits[0].Text)
	assert.EqualValues(t, 3, hits[1].ID)
}

func TestSearchFallsBackToLegacyEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/culturax/points/query":
			w.WriteHeader(http.StatusNotFound)
		case "/collections/culturax/points/search":
			resp := map[string]interface{}{
				"status": "ok",
				"result": []map[string]interface{}{
					{"id": 11, "score": 0.7, "payload": map[string]interface{}{"text": "zapasowy"}},
				},
			}
			json.NewEncoder(w).Encode(resp)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Collection: "culturax", Dimension: 3}, zaptest.NewLogger(t))
	hits, err := c.Search(context.Background(), []float32{0.1, 0.2, 0.3}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.EqualValues(t, 11, hits[0].ID)
	assert.Equal(t, "zapasowy", hits[0].Text)
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	c := NewClient(Config{URL: "http://unused", Collection: "culturax", Dimension: 3}, zaptest.NewLogger(t))
	_, err := c.Upsert(context.Background(), []Point{{ID: 1, Vector: []float32{0.5}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestEnsureCollectionCreatesWhenMissing(t *testing.T) {
	var created bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/culturax", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			vectors := body["vectors"].(map[string]interface{})
			assert.EqualValues(t, 384, vectors["size"])
			assert.Equal(t, "Cosine", vectors["distance"])
			created = true
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
		}
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Collection: "culturax"}, zaptest.NewLogger(t))
	require.NoError(t, c.EnsureCollection(context.Background()))
	assert.True(t, created)
}
