package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CacheHit()
	m.CacheHit()
	m.CacheMiss()
	m.Request("200")
	m.Retry()
	m.TargetDone("teams", true, 0.4)
	m.TargetDone("teams", false, 1.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Targets.WithLabelValues("teams", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Targets.WithLabelValues("teams", "failed")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheHit()
		m.CacheMiss()
		m.Request("500")
		m.Retry()
		m.TargetDone("tournaments", false, 1)
	})
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.CacheHit()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "vlr_cache_hits_total 1")
}
