package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcheckout "github.com/oakmall/storefront/internal/application/checkout"
	apporders "github.com/oakmall/storefront/internal/application/orders"
	appreconciliation "github.com/oakmall/storefront/internal/application/reconciliation"
	"github.com/oakmall/storefront/internal/config"
	domaincatalog "github.com/oakmall/storefront/internal/domain/catalog"
	domainorder "github.com/oakmall/storefront/internal/domain/order"
	auditworker "github.com/oakmall/storefront/internal/infrastructure/audit/worker"
	"github.com/oakmall/storefront/internal/infrastructure/gateway"
	"github.com/oakmall/storefront/internal/infrastructure/id"
	"github.com/oakmall/storefront/internal/infrastructure/memory"
	obsprovider "github.com/oakmall/storefront/internal/infrastructure/observability"
	"github.com/oakmall/storefront/internal/infrastructure/observability/oteltrace"
	"github.com/oakmall/storefront/internal/infrastructure/observability/prometrics"
	"github.com/oakmall/storefront/internal/infrastructure/observability/zaplogger"
	"github.com/oakmall/storefront/internal/infrastructure/outbox"
	"github.com/oakmall/storefront/internal/infrastructure/postgres"
	reconworker "github.com/oakmall/storefront/internal/infrastructure/reconciliation/worker"
	"github.com/oakmall/storefront/internal/observability"
	"github.com/oakmall/storefront/internal/pkg/logging"
	httppresentation "github.com/oakmall/storefront/internal/presentation/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	baseLogger := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)

	tel := buildObservability(cfg)

	catalogStore, orderRepo := buildStores(cfg, systemLogger)

	idGenerator := id.NewUUIDGenerator()
	journal := memory.NewJournal()

	gatewayClient := gateway.NewClient(cfg.GatewayAPIKey, cfg.GatewayFailureRate, cfg.GatewayLatency)
	gatewayAdapter := gateway.NewAdapter(gatewayClient, tel)

	bus := outbox.NewBus(tel.Logger(), tel)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	settleUseCase := appcheckout.NewSettleUseCase(
		catalogStore,
		catalogStore,
		orderRepo,
		gatewayAdapter,
		idGenerator,
		bus,
		tel,
	)
	ordersService := apporders.NewService(orderRepo)
	reconciliationService := appreconciliation.NewService(journal, idGenerator, tel)

	reconWorker := reconworker.New(bus, reconciliationService, tel)
	auditWorker := auditworker.New(bus, tel)
	reconWorker.Start()
	auditWorker.Start()

	handler := httppresentation.NewHandler(settleUseCase, ordersService, tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", otelhttp.NewHandler(handler.Router(), "storefront.http"))

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextWithLogger(ctx, systemLogger)

	go func() {
		systemLogger.Info("http_server_start",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.Store),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error",
				zap.Error(err),
			)
		}
	}()

	<-ctx.Done()
	logging.FromContext(ctx).Info("shutdown_signal_received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error",
			zap.Error(err),
		)
	} else {
		systemLogger.Info("http_server_stopped")
	}
}

func buildStores(cfg *config.Config, logger *zap.Logger) (domaincatalog.Store, domainorder.Repository) {
	if cfg.Store == config.StorePostgres {
		db := mustOpenPostgres(cfg, logger)
		return postgres.NewCatalogStore(db), postgres.NewOrderRepository(db)
	}

	store := memory.NewCatalogStore()
	seedCatalog(cfg, store, logger)
	return store, memory.NewOrderRepository()
}

func mustOpenPostgres(cfg *config.Config, logger *zap.Logger) *sql.DB {
	cred := &postgres.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		SSLMode:           cfg.DBSSLMode,
		MigrationsDirPath: cfg.MigrationsDir,
	}
	db, err := postgres.Open(cred)
	if err != nil {
		logger.Fatal("postgres_open_failed", zap.Error(err))
	}
	if err := postgres.RunMigrations(db, cred); err != nil {
		logger.Fatal("postgres_migrate_failed", zap.Error(err))
	}
	logger.Info("postgres_connected", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
	return db
}

type seedProduct struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PriceCents     int64  `json:"price_cents"`
	QuantityOnHand int    `json:"quantity_on_hand"`
}

// seedCatalog loads demo products into the memory store so a fresh process
// can settle checkouts immediately.
func seedCatalog(cfg *config.Config, store domaincatalog.Store, logger *zap.Logger) {
	seeds := []seedProduct{
		{ID: "sku-espresso-cup", Name: "Espresso Cup", PriceCents: 1250, QuantityOnHand: 40},
		{ID: "sku-burr-grinder", Name: "Burr Grinder", PriceCents: 8900, QuantityOnHand: 12},
		{ID: "sku-kettle", Name: "Gooseneck Kettle", PriceCents: 5400, QuantityOnHand: 25},
	}

	if cfg.CatalogSeedPath != "" {
		data, err := os.ReadFile(cfg.CatalogSeedPath)
		if err != nil {
			logger.Fatal("catalog_seed_read_failed", zap.Error(err))
		}
		seeds = nil
		if err := json.Unmarshal(data, &seeds); err != nil {
			logger.Fatal("catalog_seed_parse_failed", zap.Error(err))
		}
	}

	for _, s := range seeds {
		product, err := domaincatalog.NewProduct(s.ID, s.Name, s.PriceCents, s.QuantityOnHand)
		if err != nil {
			logger.Fatal("catalog_seed_invalid", zap.String("product_id", s.ID), zap.Error(err))
		}
		if err := store.Save(context.Background(), product); err != nil {
			logger.Fatal("catalog_seed_save_failed", zap.String("product_id", s.ID), zap.Error(err))
		}
	}
	logger.Info("catalog_seeded", zap.Int("products", len(seeds)))
}

func buildObservability(cfg *config.Config) observability.Observability {
	registry := prometrics.New(cfg.ServiceName, "")

	counters := map[observability.MetricKey]observability.Counter{
		observability.MSettlementRequests: registry.Counter(
			string(observability.MSettlementRequests),
			"Total number of settlement attempts by outcome.",
			"outcome",
		),
		observability.MHTTPRequests: registry.Counter(
			string(observability.MHTTPRequests),
			"Total number of HTTP requests.",
			"method", "route", "status",
		),
		observability.MGatewayRequests: registry.Counter(
			string(observability.MGatewayRequests),
			"Total number of payment gateway calls by outcome.",
			"peer", "endpoint", "outcome",
		),
		observability.MReconciliationEvents: registry.Counter(
			string(observability.MReconciliationEvents),
			"Total number of reconciliation journal entries.",
			"reason",
		),
		observability.MPriceMismatches: registry.Counter(
			string(observability.MPriceMismatches),
			"Total number of client price mismatches (tampering signals).",
		),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MSettlementDuration: registry.Histogram(
			string(observability.MSettlementDuration),
			"Duration of settlement execution in seconds.",
			nil,
		),
		observability.MHTTPRequestDuration: registry.Histogram(
			string(observability.MHTTPRequestDuration),
			"Duration of HTTP requests in seconds.",
			nil,
			"method", "route",
		),
		observability.MGatewayDuration: registry.Histogram(
			string(observability.MGatewayDuration),
			"Duration of payment gateway calls in seconds.",
			nil,
			"peer", "endpoint",
		),
	}

	return obsprovider.New(
		oteltrace.New(cfg.ServiceName),
		zaplogger.New(
			observability.F("service", cfg.ServiceName),
			observability.F("env", cfg.Env),
		),
		counters,
		histograms,
	)
}
