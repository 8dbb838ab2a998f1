package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/hiddb/internal/hiddb"
	"github.com/orneryd/hiddb/internal/metrics"
	"github.com/orneryd/hiddb/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	db, err := hiddb.Open(s, 0, 0)
	require.NoError(t, err)
	reg := metrics.New(metrics.Labels{InstanceID: "test", IndexID: "test", OrganizationID: "test"})
	return New(db, "127.0.0.1:0", reg)
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCollectionCRUD(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/collection", map[string]string{"collection_name": "widgets"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/collection", map[string]string{"collection_name": "widgets"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/collection/widgets", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/collection/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodDelete, "/collection/widgets", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIndexAndDocumentFlow(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, doRequest(t, srv, http.MethodPost, "/collection", map[string]string{"collection_name": "widgets"}).Code)
	require.Equal(t, http.StatusOK, doRequest(t, srv, http.MethodPost, "/collection/widgets/index", map[string]interface{}{
		"field_name": "embedding", "dimension": 2,
	}).Code)

	rec := doRequest(t, srv, http.MethodPost, "/collection/widgets/document", map[string]interface{}{
		"documents": []map[string]interface{}{
			{"id": "w1", "embedding": []float64{1, 2}},
		},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/collection/widgets/document/w1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/collection/widgets/document/search", map[string]interface{}{
		"field_name": "embedding",
		"vectors":    [][]float64{{1, 2}},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodDelete, "/collection/widgets/document/w1", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestCreateIndex_OnNonEmptyCollectionReturns501(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, doRequest(t, srv, http.MethodPost, "/collection", map[string]string{"collection_name": "widgets"}).Code)
	require.Equal(t, http.StatusOK, doRequest(t, srv, http.MethodPost, "/collection/widgets/document", map[string]interface{}{
		"documents": []map[string]interface{}{{"id": "w1"}},
	}).Code)

	rec := doRequest(t, srv, http.MethodPost, "/collection/widgets/index", map[string]interface{}{
		"field_name": "embedding", "dimension": 2,
	})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	srv := newTestServer(t)
	// A prior request ensures the counter vector has at least one label
	// combination recorded before /metrics scrapes it — a fresh CounterVec
	// reports no series until WithLabelValues has been called once.
	doRequest(t, srv, http.MethodGet, "/health", nil)

	rec := doRequest(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hiddb_n_requests_total")
}
