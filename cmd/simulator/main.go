package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/krx-alertor/maps-engine/internal/api"
	"github.com/krx-alertor/maps-engine/internal/config"
	"github.com/krx-alertor/maps-engine/internal/marketdata"
	"github.com/krx-alertor/maps-engine/internal/simulator"
	"github.com/krx-alertor/maps-engine/internal/stats"
	"github.com/krx-alertor/maps-engine/pkg/types"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (YAML)")
		dataDir    = flag.String("data", "./data", "market data directory")
		serve      = flag.Bool("serve", false, "start the HTTP API instead of a one-shot run")
		addr       = flag.String("addr", ":8080", "HTTP listen address")
		sample     = flag.Bool("sample", false, "generate sample market data before running")
		sampleDays = flag.Int("sample-days", 500, "trading days of sample data to generate")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	logger, err := setupLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath, logger)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	store, err := marketdata.NewStore(*dataDir, logger)
	if err != nil {
		logger.Fatal("failed to open market data store", zap.Error(err))
	}

	if *sample {
		if err := generateSampleData(store, cfg, *sampleDays); err != nil {
			logger.Fatal("failed to generate sample data", zap.Error(err))
		}
		logger.Info("sample data generated",
			zap.Strings("tickers", cfg.Tickers),
			zap.Int("days", *sampleDays))
	}

	if *serve {
		runServer(store, logger, *addr)
		return
	}

	runOnce(store, cfg, logger)
}

func runOnce(store *marketdata.Store, cfg *types.SimulationConfig, logger *zap.Logger) {
	table, err := store.LoadTable(cfg.Tickers, cfg.IndexTicker)
	if err != nil {
		logger.Fatal("failed to load market data", zap.Error(err))
	}

	engine, err := simulator.NewEngine(*cfg, table, stats.NopSink{}, logger)
	if err != nil {
		logger.Fatal("failed to build engine", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result := engine.Run(ctx)
	printSummary(result)
}

func runServer(store *marketdata.Store, logger *zap.Logger, addr string) {
	server := api.NewServer(store, logger)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func generateSampleData(store *marketdata.Store, cfg *types.SimulationConfig, days int) error {
	start := time.Now().AddDate(0, 0, -days*2).Truncate(24 * time.Hour)
	tickers := cfg.Tickers
	if cfg.IndexTicker != "" {
		tickers = append(append([]string{}, tickers...), cfg.IndexTicker)
	}
	for _, ticker := range tickers {
		if err := store.SaveSeries(marketdata.GenerateSampleSeries(ticker, start, days)); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(result *types.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Simulation " + result.RunID)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Period", fmt.Sprintf("%s .. %s",
			result.StartDate.Format("2006-01-02"), result.EndDate.Format("2006-01-02"))},
		{"Initial Capital", result.InitialCapital.StringFixed(0)},
		{"Final Value", result.FinalValue.StringFixed(0)},
		{"Total Return", fmt.Sprintf("%.2f%%", result.TotalReturnPct)},
		{"CAGR", fmt.Sprintf("%.2f%%", result.CAGRPct)},
		{"Volatility (ann.)", fmt.Sprintf("%.2f%%", result.Volatility)},
		{"Sharpe Ratio", fmt.Sprintf("%.2f", result.SharpeRatio)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", result.MaxDrawdownPct)},
		{"Trades", result.NumTrades},
	})
	t.Render()

	if result.RegimeStats == nil {
		return
	}

	st := table.NewWriter()
	st.SetOutputMirror(os.Stdout)
	st.SetStyle(table.StyleLight)
	st.SetTitle("Risk Subsystems")
	st.AppendHeader(table.Row{"Subsystem", "Detail", "Value"})
	st.AppendRows([]table.Row{
		{"Regime", "Bull / Bear / Neutral days", fmt.Sprintf("%d / %d / %d",
			result.RegimeStats.BullDays, result.RegimeStats.BearDays, result.RegimeStats.NeutralDays)},
		{"Regime", "Transitions", result.RegimeStats.RegimeChanges},
		{"Crash", "Market crashes", result.CrashStats.MarketCrashCount},
		{"Crash", "Portfolio declines", result.CrashStats.PortfolioDeclineCount},
		{"Crash", "Defense mode days", result.CrashStats.DefenseModeDays},
		{"Volatility", "Low / Normal / High days", fmt.Sprintf("%d / %d / %d",
			result.VolatilityStats.LowVolatilityDays,
			result.VolatilityStats.NormalVolatilityDays,
			result.VolatilityStats.HighVolatilityDays)},
		{"Defense", "Fixed / Trailing / Portfolio stops", fmt.Sprintf("%d / %d / %d",
			result.DefenseStats.FixedStopCount,
			result.DefenseStats.TrailingStopCount,
			result.DefenseStats.PortfolioStopCount)},
		{"Defense", "Cooldowns recorded", result.DefenseStats.CooldownCount},
	})
	st.Render()
}

func setupLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
