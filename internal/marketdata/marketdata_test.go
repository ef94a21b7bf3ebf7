package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/client"
	"github.com/yourorg/backtest-service/internal/config"
	"github.com/yourorg/backtest-service/internal/metrics"
	"github.com/yourorg/backtest-service/internal/model"
	"github.com/yourorg/backtest-service/internal/storage"
)

var (
	start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
)

type countingSource struct {
	bars  []model.Bar
	err   error
	calls int
}

func (s *countingSource) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Bar, error) {
	s.calls++
	return s.bars, s.err
}

func sampleBars() []model.Bar {
	return []model.Bar{{
		Symbol:    "AAPL",
		Timestamp: start,
		Open:      decimal.NewFromInt(10),
		High:      decimal.NewFromInt(11),
		Low:       decimal.NewFromInt(9),
		Close:     decimal.RequireFromString("10.5"),
		Volume:    decimal.NewFromInt(100),
	}}
}

func TestCachedSource_MissThenStore(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	inner := &countingSource{bars: sampleBars()}
	collector := metrics.NewCollector()
	src := NewCachedSource(inner, rdb, time.Minute, collector, zap.NewNop())

	key := CacheKey("AAPL", "1d", start, end)
	payload, err := json.Marshal(inner.bars)
	require.NoError(t, err)
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, payload, time.Minute).SetVal("OK")

	bars, err := src.GetBars(context.Background(), "AAPL", "1d", start, end)
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.BarCache.WithLabelValues("miss")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedSource_Hit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	inner := &countingSource{}
	collector := metrics.NewCollector()
	src := NewCachedSource(inner, rdb, time.Minute, collector, zap.NewNop())

	payload, err := json.Marshal(sampleBars())
	require.NoError(t, err)
	mock.ExpectGet(CacheKey("AAPL", "1d", start, end)).SetVal(string(payload))

	bars, err := src.GetBars(context.Background(), "AAPL", "1d", start, end)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "10.5", bars[0].Close.String())
	assert.Equal(t, 0, inner.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.BarCache.WithLabelValues("hit")))
}

func TestCachedSource_RedisDownFallsThrough(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	inner := &countingSource{bars: sampleBars()}
	src := NewCachedSource(inner, rdb, time.Minute, nil, zap.NewNop())

	key := CacheKey("AAPL", "1d", start, end)
	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	mock.ExpectSet(key, mustJSON(t, inner.bars), time.Minute).SetErr(errors.New("connection refused"))

	bars, err := src.GetBars(context.Background(), "AAPL", "1d", start, end)
	require.NoError(t, err)
	assert.Len(t, bars, 1)
}

func TestCachedSource_ErrorsAndEmptyAreNotCached(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	inner := &countingSource{err: errors.New("upstream down")}
	src := NewCachedSource(inner, rdb, time.Minute, nil, zap.NewNop())

	key := CacheKey("AAPL", "1d", start, end)
	mock.ExpectGet(key).RedisNil()
	_, err := src.GetBars(context.Background(), "AAPL", "1d", start, end)
	assert.Error(t, err)

	inner.err = nil
	mock.ExpectGet(key).RedisNil()
	bars, err := src.GetBars(context.Background(), "AAPL", "1d", start, end)
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedSource_Flush(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	src := NewCachedSource(&countingSource{}, rdb, 0, nil, zap.NewNop())

	keys := []string{cachePrefix + ":a", cachePrefix + ":b"}
	mock.ExpectScan(0, cachePrefix+":*", 500).SetVal(keys, 0)
	mock.ExpectDel(keys[0]).SetVal(1)
	mock.ExpectDel(keys[1]).SetVal(1)

	n, err := src.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("AAPL", "1d", start, end)
	assert.Equal(t, a, CacheKey("AAPL", "1d", start, end))
	assert.NotEqual(t, a, CacheKey("AAPL", "1h", start, end))
	assert.Contains(t, a, cachePrefix+":")
}

func TestNewSource(t *testing.T) {
	_, err := NewSource(config.MarketDataConfig{Source: "database"}, nil, zap.NewNop())
	assert.Error(t, err)

	src, err := NewSource(config.MarketDataConfig{Source: "http", Historical: config.HistoricalServiceConfig{URL: "http://localhost"}}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &client.HistoricalClient{}, src)

	src, err = NewSource(config.MarketDataConfig{Source: "parquet", Parquet: config.ParquetConfig{Dir: t.TempDir()}}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &storage.ParquetBarStore{}, src)

	_, err = NewSource(config.MarketDataConfig{Source: "alpaca"}, nil, zap.NewNop())
	assert.Error(t, err)

	src, err = NewSource(config.MarketDataConfig{Source: "alpaca", Alpaca: config.AlpacaConfig{APIKey: "k", APISecret: "s"}}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &client.AlpacaSource{}, src)

	_, err = NewSource(config.MarketDataConfig{Source: "ftp"}, nil, zap.NewNop())
	assert.Error(t, err)
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
