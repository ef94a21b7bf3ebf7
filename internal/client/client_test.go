package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var (
	testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	testEnd   = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
)

func TestHistoricalClient_Pagination(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/api/v1/market-data/candles", r.URL.Path)
		assert.Equal(t, "svc-key", r.Header.Get("X-Service-Key"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1d", r.URL.Query().Get("timeframe"))
		assert.Equal(t, testStart.Format(time.RFC3339), r.URL.Query().Get("start_date"))

		page := r.URL.Query().Get("page")
		day := 1
		if page == "2" {
			day = 2
		}
		fmt.Fprintf(w, `{"data":[{"symbol_id":1,"time":"2024-01-0%dT00:00:00Z","open":10,"high":11,"low":9,"close":10.5,"volume":1000}],
			"pagination":{"totalItems":2,"currentPage":%s,"totalPages":2,"itemsPerPage":1}}`, day, page)
	}))
	defer srv.Close()

	c := NewHistoricalClient(srv.URL, HistoricalClientOptions{ServiceKey: "svc-key"}, zaptest.NewLogger(t))
	bars, err := c.GetBars(context.Background(), "aapl", "1d", testStart, testEnd)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.Equal(t, "10.5", bars[0].Close.String())
	assert.Equal(t, 2, bars[1].Timestamp.Day())
}

func TestHistoricalClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"data":[],"pagination":{"totalPages":1}}`)
	}))
	defer srv.Close()

	c := NewHistoricalClient(srv.URL, HistoricalClientOptions{MaxRetries: 5}, zap.NewNop())
	bars, err := c.GetBars(context.Background(), "AAPL", "1d", testStart, testEnd)
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHistoricalClient_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unknown symbol", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHistoricalClient(srv.URL, HistoricalClientOptions{MaxRetries: 5}, zap.NewNop())
	_, err := c.GetBars(context.Background(), "ZZZZ", "1d", testStart, testEnd)
	require.Error(t, err)

	var se *statusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHistoricalClient_BreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHistoricalClient(srv.URL, HistoricalClientOptions{MaxRetries: 10}, zap.NewNop())
	_, err := c.GetBars(context.Background(), "AAPL", "1d", testStart, testEnd)
	require.Error(t, err)
	// five consecutive failures trip the breaker; later attempts never reach the server
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestHistoricalClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewHistoricalClient(srv.URL, HistoricalClientOptions{}, zap.NewNop())
	_, err := c.GetBars(ctx, "AAPL", "1d", testStart, testEnd)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeAlpaca struct {
	req  marketdata.GetBarsRequest
	bars []marketdata.Bar
	err  error
}

func (f *fakeAlpaca) GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.req = req
	return f.bars, f.err
}

func TestAlpacaSource_GetBars(t *testing.T) {
	fake := &fakeAlpaca{bars: []marketdata.Bar{
		{Timestamp: testStart, Open: 10, High: 11, Low: 9.5, Close: 10.25, Volume: 1200},
	}}
	src := &AlpacaSource{client: fake, feed: marketdata.IEX, logger: zap.NewNop()}

	bars, err := src.GetBars(context.Background(), "msft", "1d", testStart, testEnd)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "MSFT", bars[0].Symbol)
	assert.Equal(t, "10.25", bars[0].Close.String())
	assert.Equal(t, "1200", bars[0].Volume.String())
	assert.Equal(t, marketdata.OneDay, fake.req.TimeFrame)
	assert.Equal(t, marketdata.Split, fake.req.Adjustment)

	fake.err = errors.New("forbidden")
	_, err = src.GetBars(context.Background(), "msft", "1d", testStart, testEnd)
	assert.Error(t, err)

	_, err = src.GetBars(context.Background(), "msft", "2d", testStart, testEnd)
	assert.Error(t, err)
}

func TestAlpacaTimeFrame(t *testing.T) {
	for _, tf := range []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d", "1w"} {
		_, err := AlpacaTimeFrame(tf)
		assert.NoError(t, err, tf)
	}
	got, err := AlpacaTimeFrame("4h")
	require.NoError(t, err)
	assert.Equal(t, marketdata.NewTimeFrame(4, marketdata.Hour), got)
}
