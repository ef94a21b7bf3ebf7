package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/yourorg/backtest-service/internal/model"
)

// ParquetBarStore keeps bars in Parquet files, one per symbol and year:
//
//	<dir>/<market>/<timeframe>/<SYMBOL>/<YYYY>.parquet
type ParquetBarStore struct {
	dir    string
	market string
}

// NewParquetBarStore creates a store rooted at dir
func NewParquetBarStore(dir, market string) *ParquetBarStore {
	if market == "" {
		market = "us"
	}
	return &ParquetBarStore{dir: dir, market: market}
}

// barRecord is the on-disk schema
type barRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

func (s *ParquetBarStore) barPath(symbol, timeframe string, year int) string {
	return filepath.Join(s.dir, s.market, timeframe, strings.ToUpper(symbol), strconv.Itoa(year)+".parquet")
}

// WriteBars merges bars into the existing files, replacing records with the same timestamp
func (s *ParquetBarStore) WriteBars(_ context.Context, timeframe string, bars []model.Bar) error {
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]barRecord)
	for _, b := range bars {
		ts := b.Timestamp.UTC()
		k := key{symbol: strings.ToUpper(b.Symbol), year: ts.Year()}
		groups[k] = append(groups[k], barRecord{
			Symbol:    k.symbol,
			Timestamp: ts.UnixMilli(),
			Open:      b.Open.InexactFloat64(),
			High:      b.High.InexactFloat64(),
			Low:       b.Low.InexactFloat64(),
			Close:     b.Close.InexactFloat64(),
			Volume:    b.Volume.InexactFloat64(),
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, timeframe, k.year)
		existing, err := readRecords(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading bars for %s/%d: %w", k.symbol, k.year, err)
		}
		if err := writeRecords(path, mergeRecords(existing, records)); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// GetBars reads bars for symbol in [start, end], oldest first
func (s *ParquetBarStore) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Bar, error) {
	var bars []model.Bar
	from, to := start.UnixMilli(), end.UnixMilli()
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := readRecords(s.barPath(symbol, timeframe, year))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}
		for _, r := range records {
			if r.Timestamp < from || r.Timestamp > to {
				continue
			}
			bars = append(bars, model.Bar{
				Symbol:    r.Symbol,
				Timestamp: time.UnixMilli(r.Timestamp).UTC(),
				Open:      decimal.NewFromFloat(r.Open),
				High:      decimal.NewFromFloat(r.High),
				Low:       decimal.NewFromFloat(r.Low),
				Close:     decimal.NewFromFloat(r.Close),
				Volume:    decimal.NewFromFloat(r.Volume),
			})
		}
	}
	return bars, nil
}

// ListSymbols lists the symbols with data for timeframe
func (s *ParquetBarStore) ListSymbols(timeframe string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, s.market, timeframe))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

func writeRecords(path string, records []barRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readRecords(path string) ([]barRecord, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[barRecord](path)
}

func mergeRecords(existing, incoming []barRecord) []barRecord {
	seen := make(map[int64]barRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]barRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
