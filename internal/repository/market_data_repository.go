package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/model"
)

// MarketDataRepository reads candles from the historical-data-service schema
type MarketDataRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewMarketDataRepository creates a new market data repository
func NewMarketDataRepository(db *sqlx.DB, logger *zap.Logger) *MarketDataRepository {
	return &MarketDataRepository{
		db:     db,
		logger: logger,
	}
}

// GetBars retrieves bars for a symbol and timeframe within [start, end], oldest first
func (r *MarketDataRepository) GetBars(
	ctx context.Context,
	symbol string,
	timeframe string,
	start time.Time,
	end time.Time,
) ([]model.Bar, error) {
	query := r.db.Rebind(`
		SELECT s.symbol, md.timestamp, md.open, md.high, md.low, md.close, md.volume
		FROM market_data md
		JOIN symbols s ON s.id = md.symbol_id
		WHERE s.symbol = ? AND md.timeframe = ? AND md.timestamp >= ? AND md.timestamp <= ?
		ORDER BY md.timestamp
	`)

	var bars []model.Bar
	err := r.db.SelectContext(ctx, &bars, query, strings.ToUpper(symbol), timeframe, start, end)
	if err != nil {
		r.logger.Error("Failed to get market data",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("timeframe", timeframe))
		return nil, err
	}

	for i := range bars {
		bars[i].Timestamp = bars[i].Timestamp.UTC()
	}
	return bars, nil
}
