package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"synthdollar/config"
	"synthdollar/core/events"
	"synthdollar/native/collateral"
	"synthdollar/native/oracle"
	"synthdollar/native/token"
	"synthdollar/observability"
	"synthdollar/observability/logging"
	"synthdollar/observability/otel"
	"synthdollar/services/synthd"
	"synthdollar/storage/audit"
	"synthdollar/storage/ledgerdb"
)

const serviceName = "synthd"

// logEmitter mirrors every engine event into the structured log stream.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	l.logger.Info("engine event", "type", evt.EventType(), "payload", fmt.Sprintf("%+v", evt))
}

func main() {
	configFile := flag.String("config", "./synthd.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Options{
		Service:     serviceName,
		Environment: cfg.Environment,
		FilePath:    cfg.LogFile,
		MaxSizeMB:   100,
		MaxBackups:  5,
	})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: serviceName,
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	engine, feeds, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	checkpoints, err := ledgerdb.Open(cfg.CheckpointPath())
	if err != nil {
		logger.Error("failed to open checkpoint store", "error", err)
		os.Exit(1)
	}
	defer checkpoints.Close()

	state, err := checkpoints.Load()
	switch {
	case err == nil:
		if err := engine.ImportState(state); err != nil {
			logger.Error("failed to restore ledger state", "error", err)
			os.Exit(1)
		}
		logger.Info("ledger state restored",
			"collateral_rows", len(state.Collateral),
			"debt_rows", len(state.Debt),
		)
	case errors.Is(err, ledgerdb.ErrNoCheckpoint):
		logger.Info("no ledger checkpoint found, starting fresh")
	default:
		logger.Error("failed to load ledger checkpoint", "error", err)
		os.Exit(1)
	}

	trail, err := audit.Open(cfg.AuditPath())
	if err != nil {
		logger.Error("failed to open audit store", "error", err)
		os.Exit(1)
	}
	defer trail.Close()

	limits := make(map[string]synthd.RateLimit, len(cfg.Limits))
	for class, limit := range cfg.Limits {
		limits[class] = synthd.RateLimit{RequestsPerMinute: limit.RequestsPerMinute, Burst: limit.Burst}
	}
	server := synthd.NewServer(synthd.Config{
		Engine: engine,
		Feeds:  feeds,
		Audit:  trail,
		Logger: logger,
		Limits: limits,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(server.Router(), serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go runCheckpoints(ctx, engine, checkpoints, time.Duration(cfg.CheckpointSeconds)*time.Second, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.ListenAddress)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
	if err := checkpoints.Save(engine.ExportState()); err != nil {
		logger.Error("final checkpoint failed", "error", err)
	} else {
		logger.Info("final checkpoint written")
	}
}

// buildEngine materialises the feeds, tokens, and engine from configuration.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*collateral.Engine, map[string]*oracle.ManualFeed, error) {
	assets := make([]common.Address, 0, len(cfg.Assets))
	priceFeeds := make([]oracle.PriceFeed, 0, len(cfg.Assets))
	tokens := make([]token.Fungible, 0, len(cfg.Assets))
	feeds := make(map[string]*oracle.ManualFeed, len(cfg.Assets))

	for _, asset := range cfg.Assets {
		feed := oracle.NewManualFeed(asset.FeedDecimals)
		if raw := strings.TrimSpace(asset.InitialAnswer); raw != "" {
			answer, ok := new(big.Int).SetString(raw, 10)
			if !ok {
				return nil, nil, fmt.Errorf("asset %s: invalid InitialAnswer %q", asset.Symbol, raw)
			}
			feed.Set(answer)
		}
		symbol := strings.ToUpper(strings.TrimSpace(asset.Symbol))
		feeds[symbol] = feed
		assets = append(assets, common.HexToAddress(asset.Address))
		priceFeeds = append(priceFeeds, feed)
		tokens = append(tokens, token.NewToken(symbol))
	}

	params, err := cfg.Engine.RiskParameters()
	if err != nil {
		return nil, nil, err
	}
	quota, err := cfg.Engine.Quota.MintQuota()
	if err != nil {
		return nil, nil, err
	}

	engine, err := collateral.NewEngine(
		cfg.Custody(),
		assets,
		priceFeeds,
		tokens,
		token.NewSynthDollar(),
		collateral.WithRiskParameters(params),
		collateral.WithMintQuota(quota),
		collateral.WithEmitter(events.MultiEmitter{
			observability.Events(),
			logEmitter{logger: logger},
		}),
	)
	if err != nil {
		return nil, nil, err
	}
	return engine, feeds, nil
}

// runCheckpoints persists the ledger snapshot on a fixed cadence until the
// context is cancelled.
func runCheckpoints(ctx context.Context, engine *collateral.Engine, store *ledgerdb.Store, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Save(engine.ExportState()); err != nil {
				logger.Error("checkpoint failed", "error", err)
			}
		}
	}
}
