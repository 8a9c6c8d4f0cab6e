package elastic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/korpuslab/zapytaj/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{URL: srv.URL, Index: "culturax"}, zaptest.NewLogger(t))
	return c, srv
}

func TestSearchBuildsBoostClauses(t *testing.T) {
	var got map[string]interface{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/culturax/_search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		resp := map[string]interface{}{
			"hits": map[string]interface{}{
				"hits": []map[string]interface{}{
					{"_id": "5", "_source": map[string]interface{}{"text": "dokument piąty"}},
					{"_id": "9", "_source": map[string]interface{}{"text": "dokument dziewiąty"}},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))

	meta := &models.Metadata{
		Entities: []string{"Polska Akademia Nauk"},
		Places:   []string{"Warszawa"},
		Years:    []int{2023},
	}
	hits, err := c.Search(context.Background(), "inflacja OR gospodarka", meta, 35)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.EqualValues(t, 5, hits[0].ID)
	assert.Equal(t, "dokument piąty", hits[0].Text)

	assert.EqualValues(t, 35, got["size"])
	boolQuery := got["query"].(map[string]interface{})["bool"].(map[string]interface{})
	must := boolQuery["must"].([]interface{})
	require.Len(t, must, 1)
	qs := must[0].(map[string]interface{})["query_string"].(map[string]interface{})
	assert.Equal(t, "inflacja OR gospodarka", qs["query"])

	should := boolQuery["should"].([]interface{})
	require.Len(t, should, 3)
	entityTerm := should[0].(map[string]interface{})["term"].(map[string]interface{})["entities"].(map[string]interface{})
	assert.Equal(t, "Polska Akademia Nauk", entityTerm["value"])
	assert.EqualValues(t, 2.0, entityTerm["boost"])
	yearTerm := should[2].(map[string]interface{})["term"].(map[string]interface{})["years"].(map[string]interface{})
	assert.EqualValues(t, 2023, yearTerm["value"])
	assert.EqualValues(t, 3.0, yearTerm["boost"])
}

func TestSearchWithoutMetadataHasNoShould(t *testing.T) {
	var got map[string]interface{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"hits": map[string]interface{}{"hits": []map[string]interface{}{}},
		})
	}))

	hits, err := c.Search(context.Background(), "budżet", nil, 35)
	require.NoError(t, err)
	assert.Empty(t, hits)

	boolQuery := got["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.Nil(t, boolQuery["should"])
}

func TestGetReturnsNotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.Get(context.Background(), 42)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetParsesDocument(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/culturax/_doc/7", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"found": true,
			"_source": map[string]interface{}{
				"text":     "treść dokumentu",
				"entities": []string{"NBP"},
				"places":   []string{"Kraków"},
				"years":    []int{2021, 2022},
			},
		})
	}))

	doc, err := c.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.EqualValues(t, 7, doc.ID)
	assert.Equal(t, "treść dokumentu", doc.Text)
	assert.Equal(t, []string{"NBP"}, doc.Entities)
	assert.Equal(t, []int{2021, 2022}, doc.Years)
}

func TestScrollIDsPaginatesAndClears(t *testing.T) {
	var cleared bool
	page := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/culturax/_search":
			require.Equal(t, "2m", r.URL.Query().Get("scroll"))
			page++
			json.NewEncoder(w).Encode(map[string]interface{}{
				"_scroll_id": "cursor-1",
				"hits": map[string]interface{}{
					"hits": []map[string]interface{}{{"_id": "1"}, {"_id": "2"}},
				},
			})
		case r.URL.Path == "/_search/scroll" && r.Method == http.MethodPost:
			page++
			hits := []map[string]interface{}{}
			if page == 2 {
				hits = []map[string]interface{}{{"_id": "3"}}
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"_scroll_id": fmt.Sprintf("cursor-%d", page),
				"hits":       map[string]interface{}{"hits": hits},
			})
		case r.URL.Path == "/_search/scroll" && r.Method == http.MethodDelete:
			cleared = true
			json.NewEncoder(w).Encode(map[string]interface{}{"succeeded": true})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	ids, err := c.ScrollIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[uint64]struct{}{1: {}, 2: {}, 3: {}}, ids)
	assert.True(t, cleared)
}

func TestBulkReportsItemFailures(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_bulk", r.URL.Path)
		require.Equal(t, "application/x-ndjson", r.Header.Get("Content-Type"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": true,
			"items": []map[string]interface{}{
				{"index": map[string]interface{}{"status": 201}},
				{"index": map[string]interface{}{
					"status": 400,
					"error":  map[string]interface{}{"reason": "mapper_parsing_exception"},
				}},
			},
		})
	}))

	err := c.Bulk(context.Background(), []models.Document{
		{ID: 1, Text: "a", Vector: make([]float32, 384)},
		{ID: 2, Text: "b", Vector: make([]float32, 384)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 items failed")
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestEnsureIndexCreatesMapping(t *testing.T) {
	var mapping map[string]interface{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/culturax", r.URL.Path)
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&mapping))
			json.NewEncoder(w).Encode(map[string]interface{}{"acknowledged": true})
		}
	}))

	require.NoError(t, c.EnsureIndex(context.Background()))
	props := mapping["mappings"].(map[string]interface{})["properties"].(map[string]interface{})
	vector := props["vector"].(map[string]interface{})
	assert.EqualValues(t, 384, vector["dims"])
	assert.Equal(t, "cosine", vector["similarity"])
	assert.Contains(t, props, "entities")
	assert.Contains(t, props, "years")
}
