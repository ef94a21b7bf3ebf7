package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics of the backtest service. A nil *Collector is valid
// and records nothing.
type Collector struct {
	registry *prometheus.Registry

	ExecutionsStarted  *prometheus.CounterVec
	ExecutionsFinished *prometheus.CounterVec
	ExecutionDuration  *prometheus.HistogramVec
	ActiveExecutions   prometheus.Gauge
	SymbolFailures     *prometheus.CounterVec
	TradesSimulated    prometheus.Counter
	Combinations       *prometheus.CounterVec
	BarCache           *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them on a private registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		ExecutionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_executions_started_total",
				Help: "Executions that entered RUNNING, by kind",
			},
			[]string{"kind"},
		),

		ExecutionsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_executions_finished_total",
				Help: "Executions that reached a terminal status",
			},
			[]string{"kind", "status"},
		),

		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backtest_execution_duration_seconds",
				Help:    "Wall time from RUNNING to a terminal status",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"kind"},
		),

		ActiveExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backtest_active_executions",
				Help: "Executions currently RUNNING",
			},
		),

		SymbolFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_symbol_failures_total",
				Help: "Per-symbol simulation failures by kind",
			},
			[]string{"kind"},
		),

		TradesSimulated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "backtest_trades_simulated_total",
				Help: "Filled trades produced by completed simulations",
			},
		),

		Combinations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_optimization_combinations_total",
				Help: "Parameter combinations evaluated, by outcome",
			},
			[]string{"outcome"},
		),

		BarCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_bar_cache_requests_total",
				Help: "Bar cache lookups by result",
			},
			[]string{"result"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
	}

	c.registry.MustRegister(
		c.ExecutionsStarted,
		c.ExecutionsFinished,
		c.ExecutionDuration,
		c.ActiveExecutions,
		c.SymbolFailures,
		c.TradesSimulated,
		c.Combinations,
		c.BarCache,
		c.HTTPRequests,
	)
	return c
}

// Handler exposes the registry for scraping
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ExecutionStarted(kind string) {
	if c == nil {
		return
	}
	c.ExecutionsStarted.WithLabelValues(kind).Inc()
	c.ActiveExecutions.Inc()
}

func (c *Collector) ExecutionFinished(kind, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.ExecutionsFinished.WithLabelValues(kind, status).Inc()
	c.ExecutionDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	c.ActiveExecutions.Dec()
}

func (c *Collector) SymbolFailed(kind string) {
	if c == nil {
		return
	}
	c.SymbolFailures.WithLabelValues(kind).Inc()
}

func (c *Collector) AddTrades(n int) {
	if c == nil {
		return
	}
	c.TradesSimulated.Add(float64(n))
}

func (c *Collector) CombinationEvaluated(outcome string) {
	if c == nil {
		return
	}
	c.Combinations.WithLabelValues(outcome).Inc()
}

func (c *Collector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.BarCache.WithLabelValues(result).Inc()
}

func (c *Collector) HTTPRequest(route string, status int) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
