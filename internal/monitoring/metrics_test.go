package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics(t *testing.T) {
	t.Run("记录查询结果", func(t *testing.T) {
		m := NewMetrics(prometheus.NewRegistry())

		m.ObserveLookup("netflix", "found", "local-scan", 1500*time.Millisecond)
		m.ObserveLookup("netflix", "not_found", "", time.Second)
		m.ObserveLookup("any", "invalid", "", 0)

		body := scrape(t, m)
		assert.Contains(t, body, `lastmail_lookups_total{outcome="found",service="netflix"} 1`)
		assert.Contains(t, body, `lastmail_lookups_total{outcome="invalid",service="any"} 1`)
		assert.Contains(t, body, `lastmail_matches_total{matched_via="local-scan"} 1`)
		assert.Contains(t, body, `lastmail_lookup_duration_seconds_count{service="netflix"} 2`)
		assert.NotContains(t, body, `lastmail_lookup_duration_seconds_count{service="any"}`)
	})

	t.Run("多个实例互不冲突", func(t *testing.T) {
		assert.NotPanics(t, func() {
			NewMetrics(nil)
			NewMetrics(nil)
		})
	})

	t.Run("暴露限流与请求指标", func(t *testing.T) {
		m := NewMetrics(prometheus.NewRegistry())
		m.RecordRateLimitBlock("memory")
		m.RecordHTTPRequest("GET", "/api/services", "200", 10*time.Millisecond)
		m.RecordPanic()

		body := scrape(t, m)
		assert.Contains(t, body, `lastmail_rate_limit_blocks_total{limiter="memory"} 1`)
		assert.Contains(t, body, `lastmail_http_requests_total{endpoint="/api/services",method="GET",status_code="200"} 1`)
		assert.Contains(t, body, "lastmail_panics_total 1")
	})
}
