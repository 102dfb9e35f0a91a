// Package marketdata loads and caches daily price history for the engine.
package marketdata

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/krx-alertor/maps-engine/pkg/types"
)

// Store reads per-ticker JSON price files from a data directory and keeps a
// process-wide cache of normalized series.
type Store struct {
	dataDir string
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[string]*types.PriceSeries
}

// Metadata describes the contents of a data directory.
type Metadata struct {
	Tickers   []string  `json:"tickers"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewStore creates a store rooted at dataDir, creating it if necessary.
func NewStore(dataDir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{
		dataDir: dataDir,
		logger:  logger,
		cache:   make(map[string]*types.PriceSeries),
	}, nil
}

// LoadSeries returns the normalized daily series for one ticker, reading it
// from disk on first use.
func (s *Store) LoadSeries(ticker string) (*types.PriceSeries, error) {
	s.mu.RLock()
	if series, ok := s.cache[ticker]; ok {
		s.mu.RUnlock()
		return series, nil
	}
	s.mu.RUnlock()

	path := s.seriesPath(ticker)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read series %s: %w", ticker, err)
	}

	var series types.PriceSeries
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, fmt.Errorf("parse series %s: %w", ticker, err)
	}
	if series.Ticker == "" {
		series.Ticker = ticker
	}
	if err := series.Normalize(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[ticker] = &series
	s.mu.Unlock()

	s.logger.Debug("loaded price series",
		zap.String("ticker", ticker),
		zap.Int("bars", len(series.Bars)))

	return &series, nil
}

// LoadTable assembles the full market-data input for a run. The index
// ticker is optional; a missing index file leaves Table.Index nil and the
// engine degrades crash detection accordingly.
func (s *Store) LoadTable(tickers []string, indexTicker string) (*types.PriceTable, error) {
	table := &types.PriceTable{Series: make(map[string]*types.PriceSeries, len(tickers))}
	for _, ticker := range tickers {
		series, err := s.LoadSeries(ticker)
		if err != nil {
			return nil, err
		}
		table.Series[ticker] = series
	}

	if indexTicker != "" {
		index, err := s.LoadSeries(indexTicker)
		if err != nil {
			s.logger.Warn("index series unavailable, crash detection degraded",
				zap.String("ticker", indexTicker),
				zap.Error(err))
		} else {
			table.Index = index
		}
	}

	return table, nil
}

// SaveSeries writes a series to disk and refreshes the cache and metadata.
func (s *Store) SaveSeries(series *types.PriceSeries) error {
	if err := series.Normalize(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(series, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal series %s: %w", series.Ticker, err)
	}
	if err := os.WriteFile(s.seriesPath(series.Ticker), data, 0o644); err != nil {
		return fmt.Errorf("write series %s: %w", series.Ticker, err)
	}

	s.mu.Lock()
	s.cache[series.Ticker] = series
	s.mu.Unlock()

	return s.writeMetadata()
}

// Tickers lists the tickers available on disk, from metadata when present
// and otherwise from a directory scan.
func (s *Store) Tickers() ([]string, error) {
	meta, err := s.readMetadata()
	if err == nil && len(meta.Tickers) > 0 {
		return meta.Tickers, nil
	}

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("scan data dir: %w", err)
	}
	var tickers []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || name == "metadata.json" {
			continue
		}
		tickers = append(tickers, name[:len(name)-len(".json")])
	}
	return tickers, nil
}

func (s *Store) seriesPath(ticker string) string {
	return filepath.Join(s.dataDir, ticker+".json")
}

func (s *Store) writeMetadata() error {
	s.mu.RLock()
	tickers := make([]string, 0, len(s.cache))
	for ticker := range s.cache {
		tickers = append(tickers, ticker)
	}
	s.mu.RUnlock()

	meta := Metadata{Tickers: tickers, UpdatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dataDir, "metadata.json"), data, 0o644)
}

func (s *Store) readMetadata() (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(s.dataDir, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &meta, nil
}

// GenerateSampleSeries produces a deterministic synthetic daily series for
// demos and tests. The same ticker, start, and length always yield the same
// bars.
func GenerateSampleSeries(ticker string, start time.Time, days int) *types.PriceSeries {
	var seed int64
	for _, c := range ticker {
		seed = seed*31 + int64(c)
	}
	rng := rand.New(rand.NewSource(seed))

	price := 10000.0 + float64(seed%91)*100
	drift := 0.0003 + float64(seed%7)*0.0001

	series := &types.PriceSeries{Ticker: ticker, Bars: make([]types.Bar, 0, days)}
	date := start
	for i := 0; i < days; i++ {
		for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			date = date.AddDate(0, 0, 1)
		}

		change := drift + rng.NormFloat64()*0.015
		open := price
		close := price * (1 + change)
		high := math.Max(open, close) * (1 + rng.Float64()*0.008)
		low := math.Min(open, close) * (1 - rng.Float64()*0.008)

		series.Bars = append(series.Bars, types.Bar{
			Timestamp: date,
			Open:      decimal.NewFromFloat(open).Round(2),
			High:      decimal.NewFromFloat(high).Round(2),
			Low:       decimal.NewFromFloat(low).Round(2),
			Close:     decimal.NewFromFloat(close).Round(2),
			Volume:    decimal.NewFromInt(100000 + rng.Int63n(900000)),
		})

		price = close
		date = date.AddDate(0, 0, 1)
	}
	return series
}
