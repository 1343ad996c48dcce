package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tradesim/src/config"
	"tradesim/src/database"
	"tradesim/src/datamodels"
	"tradesim/src/engine"
	"tradesim/src/marketdata"
	"tradesim/src/results"
	"tradesim/src/stages"
	"tradesim/src/utils/general"
	"tradesim/src/utils/symbols"
	"tradesim/src/version"
)

func main() {
	initializeLogging()

	mode := flag.String("mode", "", "execution mode: sequential, sharedmem or rabbitmq (overrides config)")
	stage := flag.String("stage", "", "run a single distributed stage: a, b or c (rabbitmq mode only)")
	backtestID := flag.String("backtest", "", "backtest id (defaults to a fresh uuid)")
	periods := flag.Int("periods", 0, "number of periods (overrides config)")
	seed := flag.Int64("seed", 0, "rng seed, 0 seeds from the clock (overrides config)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tradesimConfig, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if *mode != "" {
		tradesimConfig.BacktestConfig.Mode = datamodels.ExecutionMode(*mode)
	}
	if *periods > 0 {
		tradesimConfig.BacktestConfig.Periods = *periods
	}
	if *seed != 0 {
		tradesimConfig.BacktestConfig.Seed = *seed
	}
	if err := tradesimConfig.BacktestConfig.Validate(); err != nil {
		slog.Error("Invalid backtest config", "error", err)
		os.Exit(1)
	}

	slog.Info("Ramping up tradesim", "build", version.GetBuildInfo())

	params := buildRunParams(&tradesimConfig.BacktestConfig, *backtestID)
	slog.Info("Backtest run",
		"run", params.RunKey(),
		"mode", string(tradesimConfig.BacktestConfig.Mode),
		"periods", params.Periods,
		"seed", params.Seed)

	provider, err := symbols.NewProviderFromConfig(&tradesimConfig.SymbolsConfig)
	if err != nil {
		slog.Error("Failed to load symbols", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded symbols", "count", provider.Len())

	coldStart := marketdata.NewColdStart(
		tradesimConfig.MarketDataConfig.SnapshotPath,
		provider,
		marketdata.NewSyntheticAcquirer(params.Seed),
	).WithBatchSize(tradesimConfig.MarketDataConfig.BatchSize)
	snapshot, err := coldStart.Load(ctx, func(fraction float64) {
		slog.Info("Acquiring market data", "progress", fraction)
	})
	if err != nil {
		slog.Error("Failed to load market data", "error", err)
		os.Exit(1)
	}

	// Only a process that settles periods needs the results sink.
	var writer results.ResultsWriter
	if *stage == "" || strings.ToLower(*stage) == "c" {
		writer = buildWriter(tradesimConfig)
		if writer != nil {
			defer writer.Close()
		}
	}

	pipeline, err := engine.NewPipelineBuilder(params).
		WithLogger(slog.Default()).
		WithProvider(provider).
		WithInitialFrame(snapshot.Frame()).
		WithSelector(universeSelector(tradesimConfig.BacktestConfig.Universe)).
		WithResultsWriter(writer).
		Build()
	if err != nil {
		slog.Error("Failed to build pipeline", "error", err)
		os.Exit(1)
	}

	if *stage != "" {
		runSingleStage(ctx, pipeline, tradesimConfig, *stage)
		return
	}

	var eng engine.Engine
	switch tradesimConfig.BacktestConfig.Mode {
	case datamodels.ModeSequential:
		eng = engine.NewSequentialEngine(pipeline)
	case datamodels.ModeSharedMem:
		eng = engine.NewSharedMemEngine(pipeline)
	case datamodels.ModeRabbitMQ:
		eng = engine.NewDistributedEngine(pipeline, tradesimConfig.RabbitConfig.URL)
	}

	result, err := eng.Run(ctx)
	if err != nil {
		slog.Error("Backtest failed", "error", err)
		os.Exit(1)
	}
	result.Log(slog.Default())

	reportResults(tradesimConfig, params, result.Stats)
}

func universeSelector(name string) stages.UniverseSelector {
	if name == "all" {
		return stages.AllSymbolsSelector
	}
	return stages.SingleCharSelector
}

func buildRunParams(backtestConfig *datamodels.BacktestConfig, backtestID string) datamodels.RunParams {
	userID := backtestConfig.UserID
	if userID == "" {
		userID = "local"
	}
	strategyID := backtestConfig.StrategyID
	if strategyID == "" {
		strategyID = "random"
	}
	if backtestID == "" {
		seed := fmt.Sprintf("%s-%s-%d", userID, strategyID, time.Now().UnixNano())
		backtestID = general.GenerateUUID5StringFromByteArray([]byte(seed))
	}
	return datamodels.RunParams{
		UserID:             userID,
		StrategyID:         strategyID,
		BacktestID:         backtestID,
		Periods:            backtestConfig.Periods,
		InitialFunds:       backtestConfig.InitialFunds,
		TransactionCost:    backtestConfig.TransactionCost,
		MaxStockPercentage: backtestConfig.MaxStockPercentage,
		Seed:               backtestConfig.Seed,
	}
}

// runSingleStage hosts one distributed stage runner, for deployments where
// each stage lives in its own process. The settlement stage also writes the
// run results.
func runSingleStage(ctx context.Context, pipeline *engine.Pipeline, tradesimConfig *datamodels.TradesimConfig, stage string) {
	if tradesimConfig.BacktestConfig.Mode != datamodels.ModeRabbitMQ {
		slog.Error("Single-stage runs require rabbitmq mode", "mode", string(tradesimConfig.BacktestConfig.Mode))
		os.Exit(1)
	}
	eng := engine.NewDistributedEngine(pipeline, tradesimConfig.RabbitConfig.URL)

	var err error
	switch strings.ToLower(stage) {
	case "a":
		err = eng.RunSelectionStage(ctx)
	case "b":
		err = eng.RunStrategyStage(ctx)
	case "c":
		var result *engine.RunResult
		result, err = eng.RunSettlementStage(ctx)
		if err == nil {
			result.Log(slog.Default())
			// Report from the persisted result file, the authoritative
			// record of the run once the stage process exits.
			stats, readErr := results.ReadRunFile(tradesimConfig.ResultsConfig.BaseDir, pipeline.Params)
			if readErr != nil {
				slog.Warn("Failed to read back result file, reporting from memory", "error", readErr)
				stats = result.Stats
			}
			reportResults(tradesimConfig, pipeline.Params, stats)
		}
	default:
		slog.Error("Unknown stage", "stage", stage)
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Stage failed", "stage", stage, "error", err)
		os.Exit(1)
	}
}

// buildWriter assembles the results sink the settlement path writes to after
// every period.
func buildWriter(tradesimConfig *datamodels.TradesimConfig) results.ResultsWriter {
	var db database.TradesimDatabase
	if tradesimConfig.ResultsConfig.DbWriter {
		var err error
		db, err = database.NewDBConnection(tradesimConfig.DatabaseConfig)
		if err != nil {
			slog.Error("Failed to connect to database, skipping db writer", "error", err)
		}
	}

	writer, err := results.BuildResultsWriter(&tradesimConfig.ResultsConfig, db)
	if err != nil {
		slog.Error("Failed to build results writer", "error", err)
		os.Exit(1)
	}
	return writer
}

func reportResults(tradesimConfig *datamodels.TradesimConfig, params datamodels.RunParams, stats []datamodels.PeriodStats) {
	summary, err := results.Summarize(stats)
	if err != nil {
		slog.Error("Failed to summarize results", "error", err)
		return
	}
	slog.Info("Backtest summary",
		"periods", summary.Periods,
		"final_balance", summary.FinalBalance,
		"net", summary.Net,
		"mean_return", summary.MeanReturn,
		"return_std_dev", summary.ReturnStdDev,
		"max_drawdown", summary.MaxDrawdown,
		"buys", summary.TotalBuys,
		"sells", summary.TotalSells)

	if plotPath := tradesimConfig.ResultsConfig.PlotPath; plotPath != "" {
		plotFile := filepath.Join(plotPath, params.RunKey()+".png")
		if err := results.NewResultPlotter().
			WithHistory(stats).
			WithFileOutput(plotFile).
			Plot(); err != nil {
			slog.Error("Failed to plot results", "error", err)
		}
	}
}

func initializeLogging() {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}
	switch strings.ToLower(logLevel) {
	case "debug":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true})))
	case "info":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelInfo})))
	default:
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelInfo})))
	}
}
