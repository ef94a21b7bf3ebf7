package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/client"
	"github.com/yourorg/backtest-service/internal/config"
	"github.com/yourorg/backtest-service/internal/model"
	"github.com/yourorg/backtest-service/internal/repository"
	"github.com/yourorg/backtest-service/internal/storage"
)

// Source supplies time-ordered bars for one symbol
type Source interface {
	GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Bar, error)
}

// NewSource builds the bar source named by cfg.Source. The database source needs db.
func NewSource(cfg config.MarketDataConfig, db *sqlx.DB, logger *zap.Logger) (Source, error) {
	switch cfg.Source {
	case "database", "":
		if db == nil {
			return nil, errors.New("database bar source requires a database connection")
		}
		return repository.NewMarketDataRepository(db, logger), nil
	case "http":
		h := cfg.Historical
		return client.NewHistoricalClient(h.URL, client.HistoricalClientOptions{
			Timeout:        h.Timeout,
			ServiceKey:     h.ServiceKey,
			RequestsPerSec: h.RequestsPerSec,
			Burst:          h.Burst,
			MaxRetries:     h.MaxRetries,
		}, logger), nil
	case "alpaca":
		a := cfg.Alpaca
		if a.APIKey == "" || a.APISecret == "" {
			return nil, errors.New("alpaca bar source requires apiKey and apiSecret")
		}
		return client.NewAlpacaSource(a.APIKey, a.APISecret, a.BaseURL, a.Feed, logger), nil
	case "parquet":
		return storage.NewParquetBarStore(cfg.Parquet.Dir, cfg.Parquet.Market), nil
	default:
		return nil, fmt.Errorf("unknown market data source %q", cfg.Source)
	}
}
