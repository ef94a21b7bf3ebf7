package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/model"
)

// alpacaBars is the subset of the Alpaca market data client used here
type alpacaBars interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaSource loads US equity bars from the Alpaca market data API
type AlpacaSource struct {
	client alpacaBars
	feed   marketdata.Feed
	logger *zap.Logger
}

// NewAlpacaSource creates a bar source backed by Alpaca. An empty baseURL uses the default
// data endpoint.
func NewAlpacaSource(apiKey, apiSecret, baseURL, feed string, logger *zap.Logger) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if baseURL != "" {
		opts.BaseURL = baseURL
	}
	if feed == "" {
		feed = string(marketdata.IEX)
	}
	return &AlpacaSource{
		client: marketdata.NewClient(opts),
		feed:   marketdata.Feed(feed),
		logger: logger,
	}
}

// AlpacaTimeFrame maps a timeframe label to an Alpaca bar timeframe
func AlpacaTimeFrame(timeframe string) (marketdata.TimeFrame, error) {
	switch timeframe {
	case "1m":
		return marketdata.OneMin, nil
	case "5m":
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case "15m":
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case "30m":
		return marketdata.NewTimeFrame(30, marketdata.Min), nil
	case "1h":
		return marketdata.OneHour, nil
	case "4h":
		return marketdata.NewTimeFrame(4, marketdata.Hour), nil
	case "1d":
		return marketdata.OneDay, nil
	case "1w":
		return marketdata.NewTimeFrame(1, marketdata.Week), nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
}

// GetBars retrieves split-adjusted bars for symbol in [start, end]
func (s *AlpacaSource) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Bar, error) {
	tf, err := AlpacaTimeFrame(timeframe)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	symbol = strings.ToUpper(symbol)
	raw, err := s.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  tf,
		Adjustment: marketdata.Split,
		Start:      start,
		End:        end,
		Feed:       s.feed,
	})
	if err != nil {
		s.logger.Error("Failed to get Alpaca bars",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("timeframe", timeframe))
		return nil, fmt.Errorf("alpaca GetBars %s: %w", symbol, err)
	}

	bars := make([]model.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, model.Bar{
			Symbol:    symbol,
			Timestamp: ab.Timestamp.UTC(),
			Open:      decimal.NewFromFloat(ab.Open),
			High:      decimal.NewFromFloat(ab.High),
			Low:       decimal.NewFromFloat(ab.Low),
			Close:     decimal.NewFromFloat(ab.Close),
			Volume:    decimal.NewFromInt(int64(ab.Volume)),
		})
	}
	return bars, nil
}
