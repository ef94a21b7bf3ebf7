package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ExecutionLifecycle(t *testing.T) {
	c := NewCollector()

	c.ExecutionStarted("backtest")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ActiveExecutions))

	c.ExecutionFinished("backtest", "COMPLETED", 2*time.Second)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.ActiveExecutions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ExecutionsFinished.WithLabelValues("backtest", "COMPLETED")))

	c.AddTrades(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(c.TradesSimulated))

	c.CacheLookup(true)
	c.CacheLookup(false)
	c.CacheLookup(false)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.BarCache.WithLabelValues("miss")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ExecutionStarted("backtest")
		c.ExecutionFinished("backtest", "FAILED", time.Second)
		c.SymbolFailed("insufficient_data")
		c.AddTrades(3)
		c.CombinationEvaluated("ok")
		c.CacheLookup(true)
		c.HTTPRequest("/health", 200)
	})
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.SymbolFailed("data_source")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `backtest_symbol_failures_total{kind="data_source"} 1`)
}
