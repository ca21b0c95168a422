package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"synthd/config"
	"synthd/core/events"
	"synthd/crypto"
	nativecommon "synthd/native/common"
	"synthd/native/oracle"
	"synthd/native/synth"
	"synthd/native/token"
	"synthd/observability/logging"
	"synthd/rpc"
	"synthd/state"
	"synthd/storage"
)

const issuedSymbol = "susd"

// eventLogger bridges engine events into the structured log stream.
type eventLogger struct {
	log *slog.Logger
}

func (l eventLogger) Emit(evt events.Event) {
	attrs := make([]any, 0, 8)
	for key, value := range evt.Attributes() {
		attrs = append(attrs, slog.String(key, value))
	}
	l.log.Info(evt.EventType(), attrs...)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup(logging.Config{
		Service:    "synthd",
		Env:        cfg.Environment,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	registry, err := synth.NewRegistry(cfg.Symbols(), cfg.Feeds())
	if err != nil {
		logger.Error("Failed to build collateral registry", slog.Any("error", err))
		os.Exit(1)
	}

	manual := oracle.NewManualSource()
	prices := oracle.NewAggregator(cfg.OraclePriority, cfg.OracleMaxAge())
	prices.Register("manual", manual)

	// The custody account is derived from a fixed label so every node agrees
	// on where locked collateral lives.
	custody := crypto.MustNewAddress(crypto.ModulePrefix, ethcrypto.Keccak256([]byte("synthd/custody"))[:20])

	bank := token.NewBank()
	engine, err := synth.NewEngine(custody, registry, bank.BindIssuer(issuedSymbol, custody), prices)
	if err != nil {
		logger.Error("Failed to build engine", slog.Any("error", err))
		os.Exit(1)
	}
	engine.SetState(state.NewLedger(db))
	for _, asset := range registry.Assets() {
		if err := engine.BindCollateral(asset.Symbol, bank.Bind(asset.Symbol, custody)); err != nil {
			logger.Error("Failed to bind collateral token", slog.String("asset", asset.Symbol), slog.Any("error", err))
			os.Exit(1)
		}
	}
	engine.SetPauses(nativecommon.NewPauses())
	engine.SetEmitter(eventLogger{log: logger})

	server := rpc.NewServer(engine, logger)
	server.SetQuoteSource(manual)

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()
	go func() {
		if err := server.Start(cfg.RPCAddress); err != nil {
			logger.Error("RPC server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	logger.Info("synthd started",
		slog.String("rpc", cfg.RPCAddress),
		slog.String("metrics", cfg.MetricsAddress),
		slog.String("custody", custody.String()),
		slog.Int("collateralAssets", len(registry.Assets())),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("RPC shutdown failed", slog.Any("error", err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics shutdown failed", slog.Any("error", err))
	}
}
