package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSearch(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordSearch("hybrid", "hybrid_success", 20*time.Millisecond, 5, 2)
	m.RecordSearch("hybrid", "hybrid_success", 30*time.Millisecond, 3, 0)
	m.RecordSearch("hybrid", "hybrid_degraded_to_semantic", 10*time.Millisecond, 1, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.searches.WithLabelValues("hybrid", "hybrid_success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searches.WithLabelValues("hybrid", "hybrid_degraded_to_semantic")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.filteredOut.WithLabelValues("hybrid")))
}

func TestRecordVectorization(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordVectorization("embedded")
	m.RecordVectorization("embedded")
	m.RecordVectorization("failed")
	m.RecordEmbedLatency(5 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.vectorizations.WithLabelValues("embedded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.vectorizations.WithLabelValues("failed")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordSearch("location", "location_only", time.Millisecond, 0, 0)
	m.RecordVectorization("cached")
	m.RecordEmbedLatency(time.Millisecond)
	assert.Nil(t, m.Registry())
	assert.NotNil(t, m.Handler())
}

func TestHandler(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordSearch("semantic", "semantic_only", 10*time.Millisecond, 2, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "nearby_search_requests_total"))
}
