package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"MarginPool/internal/event"
	"MarginPool/internal/ingestion"
	"MarginPool/internal/observability"
	"MarginPool/internal/persistence"
	"MarginPool/internal/pool"
	"MarginPool/internal/position"
	"MarginPool/internal/risk"
	"MarginPool/internal/saga"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	PostgresURL   string
	NATSURL       string
	MetricsAddr   string
	MigrationsDir string

	// Comma-separated asset seed list, e.g. "usdt:0.95,near:0.75".
	Assets string

	CallbackChanSize int
	PersistChanSize  int
	PublishChanSize  int

	PersistBatchSize    int
	PersistFlushTimeout time.Duration

	DedupLRUCapacity int
	DedupWarmLimit   int

	SnapshotInterval time.Duration
	SnapshotKeep     int
}

func DefaultConfig() Config {
	return Config{
		PostgresURL:   envOrDefault("MARGIN_POSTGRES_DSN", "postgres://localhost:5432/marginpool?sslmode=disable"),
		NATSURL:       envOrDefault("MARGIN_NATS_URL", "nats://localhost:4222"),
		MetricsAddr:   envOrDefault("MARGIN_METRICS_ADDR", ":9091"),
		MigrationsDir: envOrDefault("MARGIN_MIGRATIONS_DIR", "migrations"),

		Assets: envOrDefault("MARGIN_ASSETS", "usdt:0.95,near:0.75"),

		CallbackChanSize: envIntOrDefault("MARGIN_CALLBACK_CHAN_SIZE", 1024),
		PersistChanSize:  envIntOrDefault("MARGIN_PERSIST_CHAN_SIZE", 4096),
		PublishChanSize:  envIntOrDefault("MARGIN_PUBLISH_CHAN_SIZE", 4096),

		PersistBatchSize:    envIntOrDefault("MARGIN_PERSIST_BATCH_SIZE", 100),
		PersistFlushTimeout: time.Duration(envIntOrDefault("MARGIN_PERSIST_FLUSH_MS", 200)) * time.Millisecond,

		DedupLRUCapacity: envIntOrDefault("MARGIN_DEDUP_LRU_CAPACITY", 10000),
		DedupWarmLimit:   envIntOrDefault("MARGIN_DEDUP_WARM_LIMIT", 5000),

		SnapshotInterval: time.Duration(envIntOrDefault("MARGIN_SNAPSHOT_INTERVAL_S", 60)) * time.Second,
		SnapshotKeep:     envIntOrDefault("MARGIN_SNAPSHOT_KEEP", 10),
	}
}

func main() {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	if err := run(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

func run() error {
	cfg := DefaultConfig()
	logger := observability.NewLogger("main")
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(rootCtx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	if err := persistence.NewMigrator(db, cfg.MigrationsDir).Up(rootCtx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info().Msg("migrations applied")

	// --- State: seed assets, then restore the latest snapshot over them ---
	ledger := pool.NewLedger()
	positions := position.NewStore()
	if err := seedAssets(ledger, cfg.Assets); err != nil {
		return fmt.Errorf("seed assets: %w", err)
	}

	snapshots := persistence.NewSnapshotManager(db)
	snap, err := snapshots.LoadLatest(rootCtx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snap != nil {
		if err := persistence.Apply(snap, ledger, positions); err != nil {
			return fmt.Errorf("apply snapshot: %w", err)
		}
		logger.Info().Time("created_at", snap.CreatedAt).Msg("state restored from snapshot")
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()
	if err := ingestion.EnsureStreams(rootCtx, js); err != nil {
		return err
	}
	if err := ingestion.EnsureOutboundStream(rootCtx, js); err != nil {
		return err
	}

	// --- Channels ---
	callbackChan := make(chan ingestion.RawCallback, cfg.CallbackChanSize)
	persistChan := make(chan *event.Result, cfg.PersistChanSize)
	publishChan := make(chan *event.Result, cfg.PublishChanSize)

	// --- Engine ---
	processedStore := persistence.NewProcessedCallbackStore(db)
	dedup := saga.NewDeduper(cfg.DedupLRUCapacity, processedStore)
	if keys, err := processedStore.RecentKeys(rootCtx, cfg.DedupWarmLimit); err != nil {
		logger.Warn().Err(err).Msg("dedup warm skipped")
	} else {
		dedup.Warm(keys)
	}

	recordStore := persistence.NewPostgresRecordStore(db)

	// The outcome journal write must not be lost, so the persist send blocks
	// under backpressure. Publishing to NATS is best-effort and drops when
	// the buffer is full.
	emit := func(r *event.Result) {
		persistChan <- r
		select {
		case publishChan <- r:
		default:
			metrics.PublishDrops.Inc()
		}
	}

	engine := saga.NewEngine(ledger, positions, saga.DefaultConfig(), saga.Deps{
		Dex:     ingestion.NewNATSDex(js, ""),
		Records: recordStore,
		Dedup:   dedup,
		Emit:    emit,
		Logger:  observability.NewLogger("engine"),
		Metrics: metrics,
	})

	openRecords, err := recordStore.LoadOpen()
	if err != nil {
		return fmt.Errorf("load open sagas: %w", err)
	}
	engine.Restore(openRecords)
	logger.Info().Int("count", len(openRecords)).Msg("saga continuations restored")

	// --- Workers ---
	errChan := make(chan error, 8)

	outcomeWorker := persistence.NewOutcomeWorker(db, persistChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics)
	go func() {
		if err := outcomeWorker.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("outcome worker: %w", err)
		}
	}()

	publisher := ingestion.NewOutboundPublisher(js, publishChan)
	go func() {
		if err := publisher.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("outbound publisher: %w", err)
		}
	}()

	go ingestionLoop(rootCtx, callbackChan, engine, processedStore, metrics, observability.NewLogger("ingestion"))
	go snapshotLoop(rootCtx, engine, snapshots, cfg, logger)

	subscriber := ingestion.NewNATSSubscriber(js, callbackChan)
	if err := subscriber.Subscribe(rootCtx, ingestion.DefaultSubjects()); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer subscriber.Stop()

	// --- Metrics and health endpoints ---
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.LivenessHandler)
	mux.HandleFunc("/readyz", health.ReadinessHandler)
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	health.SetReady(true)
	logger.Info().Str("metrics_addr", cfg.MetricsAddr).Msg("margin engine running")

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("fatal worker error, shutting down")
	}
	health.SetReady(false)

	// Stop intake first so in-flight callbacks drain, then snapshot final
	// state before cancelling the workers.
	subscriber.Stop()
	time.Sleep(500 * time.Millisecond)
	saveSnapshot(context.Background(), engine, snapshots, cfg.SnapshotKeep, logger)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics server shutdown")
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

// ingestionLoop drains raw NATS messages: decode, hand to the engine, record
// the processed key, then ACK. An exact fill that lands before its resolve
// callback is NAKed so redelivery retries it after the resolve has been
// applied; everything else is ACKed, since redelivery cannot change the
// outcome.
func ingestionLoop(
	ctx context.Context,
	callbackChan <-chan ingestion.RawCallback,
	engine *saga.Engine,
	processed *persistence.ProcessedCallbackStore,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-callbackChan:
			if !ok {
				return
			}
			metrics.CallbacksReceived.WithLabelValues(raw.Kind).Inc()

			if raw.Kind == ingestion.KindOpRequest {
				handleOpRequest(ctx, raw, engine, logger)
				continue
			}

			ev, err := ingestion.ParseRawCallback(raw)
			if err != nil {
				metrics.ParseErrors.WithLabelValues(raw.Kind).Inc()
				logger.Warn().Err(err).Str("subject", raw.Subject).Msg("callback parse failed")
				raw.AckFunc()
				continue
			}

			switch e := ev.(type) {
			case *event.TradeResolved:
				err = engine.OnResolveTransfer(e)
			case *event.ExactFill:
				err = engine.OnExactFill(e)
			default:
				err = fmt.Errorf("unhandled event type %T", ev)
			}

			switch {
			case err == nil:
				if rerr := processed.Record(ctx, ev.EventType().String(), ev.IdempotencyKey()); rerr != nil {
					logger.Warn().Err(rerr).Msg("record processed callback")
				}
				raw.AckFunc()
			case errors.Is(err, saga.ErrUnexpectedCallback) && raw.Kind == ingestion.KindExactFill:
				logger.Warn().Str("subject", raw.Subject).Msg("fill before resolve, requeueing")
				raw.NakFunc()
			default:
				logger.Error().Err(err).Str("subject", raw.Subject).Msg("callback rejected")
				raw.AckFunc()
			}
		}
	}
}

// handleOpRequest dispatches an operation request from the ops subject. Ops
// are always ACKed: a validation failure is final and a retry cannot help.
func handleOpRequest(ctx context.Context, raw ingestion.RawCallback, engine *saga.Engine, logger zerolog.Logger) {
	defer raw.AckFunc()

	req, err := ingestion.ParseOpRequest(raw.Data)
	if err != nil {
		logger.Warn().Err(err).Str("subject", raw.Subject).Msg("op request parse failed")
		return
	}

	prices := make(risk.Prices, len(req.Prices))
	for sym, p := range req.Prices {
		prices[sym] = p
	}

	switch req.Action {
	case ingestion.ActionOpen:
		_, err = engine.OpenPosition(ctx, req.AccountID, req.MarginAsset, req.MarginAmount, req.DebtAsset, req.DebtAmount, req.PositionAsset, req.MinAmountOut, prices)
	case ingestion.ActionIncrease:
		err = engine.IncreasePosition(ctx, req.AccountID, req.PosID, req.DebtAmount, req.MinAmountOut, prices)
	case ingestion.ActionDecrease:
		err = engine.DecreasePosition(ctx, req.AccountID, req.PosID, req.Amount, req.MinAmountOut, prices)
	case ingestion.ActionClose:
		err = engine.ClosePosition(ctx, req.AccountID, req.PosID, req.MinAmountOut, prices)
	case ingestion.ActionIncreaseCollateral:
		err = engine.IncreaseCollateral(req.AccountID, req.PosID, req.Amount)
	case ingestion.ActionDecreaseCollateral:
		err = engine.DecreaseCollateral(req.AccountID, req.PosID, req.Amount, prices)
	case ingestion.ActionDeposit:
		_, err = engine.DepositSupply(req.AccountID, req.Asset, req.Amount)
	case ingestion.ActionWithdraw:
		_, err = engine.WithdrawSupply(req.AccountID, req.Asset, req.Amount)
	default:
		err = fmt.Errorf("unknown action %q", req.Action)
	}

	if err != nil {
		logger.Warn().Err(err).
			Str("action", req.Action).
			Str("account_id", req.AccountID).
			Str("request_id", req.RequestID).
			Msg("op request rejected")
		return
	}
	logger.Info().
		Str("action", req.Action).
		Str("account_id", req.AccountID).
		Str("request_id", req.RequestID).
		Msg("op request accepted")
}

// snapshotLoop periodically persists the full pool and position state so a
// restart does not have to replay history.
func snapshotLoop(ctx context.Context, engine *saga.Engine, snapshots *persistence.SnapshotManager, cfg Config, logger zerolog.Logger) {
	ticker := time.NewTicker(cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saveSnapshot(ctx, engine, snapshots, cfg.SnapshotKeep, logger)
		}
	}
}

func saveSnapshot(ctx context.Context, engine *saga.Engine, snapshots *persistence.SnapshotManager, keep int, logger zerolog.Logger) {
	var data *persistence.SnapshotData
	engine.WithState(func(led *pool.Ledger, positions *position.Store) {
		data = persistence.Capture(led, positions)
	})
	if err := snapshots.Save(ctx, data); err != nil {
		logger.Error().Err(err).Msg("save snapshot")
		return
	}
	if err := snapshots.Prune(ctx, keep); err != nil {
		logger.Warn().Err(err).Msg("prune snapshots")
	}
}

// seedAssets parses "symbol:fluctuation_rate,..." and registers any asset the
// restored snapshot does not already carry.
func seedAssets(led *pool.Ledger, list string) error {
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("malformed asset entry %q", entry)
		}
		rate, err := decimal.NewFromString(parts[1])
		if err != nil {
			return fmt.Errorf("asset %s: parse rate: %w", parts[0], err)
		}
		led.AddAsset(pool.NewAsset(parts[0], rate))
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: invalid %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}
