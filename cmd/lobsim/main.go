// Command lobsim replays recorded order book snapshots through a trading
// strategy and prints a performance report.
//
// Usage:
//
//	lobsim run --config config.yaml
//	lobsim record --exchange bybit --symbol BTCUSDT --out snapshots.jsonl
//	lobsim setup
//
// Recording from Binance optionally uses BINANCE_API_KEY and
// BINANCE_API_SECRET; public depth endpoints work without them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	"go.uber.org/zap"

	"github.com/vadiminshakov/lobsim/config"
	"github.com/vadiminshakov/lobsim/internal/backtest"
	"github.com/vadiminshakov/lobsim/internal/dashboard"
	"github.com/vadiminshakov/lobsim/internal/recorder"
	"github.com/vadiminshakov/lobsim/internal/setup"
	"github.com/vadiminshakov/lobsim/internal/source"
	"github.com/vadiminshakov/lobsim/internal/storage/journal"
	"github.com/vadiminshakov/lobsim/internal/strategy"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runBacktest(os.Args[2:])
	case "record":
		err = runRecorder(os.Args[2:])
	case "setup":
		err = setup.RunTUI("config.yaml")
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: lobsim <run|record|setup> [flags]")
}

func runBacktest(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to YAML config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	src, err := source.NewJSONLSource(cfg.DataFile, cfg.Backtest.OnDataError, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	strat, err := strategy.New(cfg.Strategy.Name, cfg.Symbol, cfg.Strategy, logger)
	if err != nil {
		return err
	}

	driver, err := backtest.NewDriver(cfg.Backtest, strat, src, logger)
	if err != nil {
		return err
	}

	if cfg.JournalDir != "" {
		store, err := journal.NewWALStore(cfg.JournalDir)
		if err != nil {
			return err
		}
		defer store.Close()
		driver.WithFillSink(store)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := driver.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println(dashboard.Render(cfg.Symbol, report, driver.EquityCurve()))
	return nil
}

func runRecorder(args []string) error {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	exchange := fs.String("exchange", "bybit", "bybit or binance")
	symbol := fs.String("symbol", "BTCUSDT", "symbol to record")
	out := fs.String("out", "snapshots.jsonl", "output JSONL file")
	interval := fs.Duration("interval", time.Second, "poll interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	var fetcher recorder.Fetcher
	switch *exchange {
	case "bybit":
		fetcher = recorder.NewBybitFetcher(bybit.NewClient(), *symbol)
	case "binance":
		client := binance.NewClient(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"))
		fetcher = recorder.NewBinanceFetcher(client, *symbol)
	default:
		return fmt.Errorf("unsupported exchange %q", *exchange)
	}

	writer, err := recorder.NewJSONLWriter(*out)
	if err != nil {
		return err
	}
	defer writer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return recorder.New(fetcher, writer, *interval, logger).Run(ctx)
}
