package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yourorg/backtest-service/internal/model"
)

const candlesPageSize = 5000

// HistoricalClientOptions tunes the historical-data-service client
type HistoricalClientOptions struct {
	Timeout        time.Duration
	ServiceKey     string
	RequestsPerSec float64
	Burst          int
	MaxRetries     uint64
}

// HistoricalClient fetches candles from the historical-data-service. Requests are rate limited,
// retried with exponential backoff and guarded by a circuit breaker.
type HistoricalClient struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	maxRetries uint64
	logger     *zap.Logger
}

// NewHistoricalClient creates a new historical-data-service client
func NewHistoricalClient(baseURL string, opts HistoricalClientOptions, logger *zap.Logger) *HistoricalClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if opts.RequestsPerSec > 0 {
		limit = rate.Limit(opts.RequestsPerSec)
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}

	settings := gobreaker.Settings{
		Name:     "historical-data-service",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// 4xx answers mean the service is healthy
		IsSuccessful: func(err error) bool {
			var se *statusError
			return err == nil || (errors.As(err, &se) && se.code < 500 && se.code != http.StatusTooManyRequests)
		},
	}

	return &HistoricalClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: opts.ServiceKey,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter:    rate.NewLimiter(limit, opts.Burst),
		breaker:    gobreaker.NewCircuitBreaker(settings),
		maxRetries: opts.MaxRetries,
		logger:     logger,
	}
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("historical-data-service returned status %d: %s", e.code, e.body)
}

type candle struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

type candlesPage struct {
	Data       []candle `json:"data"`
	Pagination struct {
		TotalPages  int `json:"totalPages"`
		CurrentPage int `json:"currentPage"`
	} `json:"pagination"`
}

// GetBars retrieves every candle for symbol in [start, end], following pagination
func (c *HistoricalClient) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Bar, error) {
	symbol = strings.ToUpper(symbol)
	var bars []model.Bar

	for page := 1; ; page++ {
		p, err := c.fetchPage(ctx, symbol, timeframe, start, end, page)
		if err != nil {
			c.logger.Error("Failed to fetch candles",
				zap.Error(err),
				zap.String("symbol", symbol),
				zap.String("timeframe", timeframe),
				zap.Int("page", page))
			return nil, err
		}

		for _, cd := range p.Data {
			bars = append(bars, model.Bar{
				Symbol:    symbol,
				Timestamp: cd.Time.UTC(),
				Open:      cd.Open,
				High:      cd.High,
				Low:       cd.Low,
				Close:     cd.Close,
				Volume:    cd.Volume,
			})
		}

		if len(p.Data) == 0 || page >= p.Pagination.TotalPages {
			break
		}
	}

	return bars, nil
}

func (c *HistoricalClient) fetchPage(ctx context.Context, symbol, timeframe string, start, end time.Time, page int) (*candlesPage, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("timeframe", timeframe)
	q.Set("start_date", start.UTC().Format(time.RFC3339))
	q.Set("end_date", end.UTC().Format(time.RFC3339))
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(candlesPageSize))
	endpoint := fmt.Sprintf("%s/api/v1/market-data/candles?%s", c.baseURL, q.Encode())

	var out *candlesPage
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doRequest(ctx, endpoint)
		})
		if err != nil {
			var se *statusError
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if errors.As(err, &se) && se.code < 500 && se.code != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		out = result.(*candlesPage)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	var b backoff.BackOff = policy
	if c.maxRetries > 0 {
		b = backoff.WithMaxRetries(b, c.maxRetries)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		c.logger.Debug("Retrying candle request", zap.Error(err), zap.Duration("wait", wait))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HistoricalClient) doRequest(ctx context.Context, endpoint string) (*candlesPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	// Add service authentication header
	if c.serviceKey != "" {
		req.Header.Set("X-Service-Key", c.serviceKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	var page candlesPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode candles: %w", err)
	}
	return &page, nil
}
