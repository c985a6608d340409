package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vibelux-energy/internal/alerts"
	"vibelux-energy/internal/audit"
	"vibelux-energy/internal/auth"
	baselineapp "vibelux-energy/internal/baseline/application"
	baselinepg "vibelux-energy/internal/baseline/infrastructure/postgres"
	baselineinterfaces "vibelux-energy/internal/baseline/interfaces"
	baselinehttp "vibelux-energy/internal/baseline/interfaces/http"
	billingapp "vibelux-energy/internal/billing/application"
	billingpg "vibelux-energy/internal/billing/infrastructure/postgres"
	billinghttp "vibelux-energy/internal/billing/interfaces/http"
	curtailmentadapters "vibelux-energy/internal/curtailment/adapters"
	curtailmentapp "vibelux-energy/internal/curtailment/application"
	curtailment "vibelux-energy/internal/curtailment/domain"
	curtailmentpg "vibelux-energy/internal/curtailment/infrastructure/postgres"
	curtailmenthttp "vibelux-energy/internal/curtailment/interfaces/http"
	"vibelux-energy/internal/eventing"
	"vibelux-energy/internal/eventing/eventbus"
	eventingpg "vibelux-energy/internal/eventing/infrastructure/postgres"
	masterdataapp "vibelux-energy/internal/masterdata/application"
	masterdatapg "vibelux-energy/internal/masterdata/infrastructure/postgres"
	masterdatahttp "vibelux-energy/internal/masterdata/interfaces/http"
	"vibelux-energy/internal/observability/metrics"
	savingsadapters "vibelux-energy/internal/savings/adapters"
	savingsapp "vibelux-energy/internal/savings/application"
	savingshttp "vibelux-energy/internal/savings/interfaces/http"
	telemetryapp "vibelux-energy/internal/telemetry/application"
	"vibelux-energy/internal/telemetry/connectors"
	telemetrypg "vibelux-energy/internal/telemetry/infrastructure/postgres"
	telemetryhttp "vibelux-energy/internal/telemetry/interfaces/http"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("ping database: %v", err)
	}

	metrics.Init(db, logger)

	auditRepo := audit.NewRepository(db)

	registry := eventing.NewRegistry()
	registry.Register(telemetryapp.ReadingsIngested{})
	registry.Register(billingapp.InvoiceGenerated{})
	registry.Register(curtailment.CurtailmentStarted{})
	registry.Register(curtailment.CurtailmentCompleted{})
	registry.Register(curtailment.SchedulePreempted{})

	baseBus := eventbus.NewInMemoryBus()
	outboxStore := eventingpg.NewOutboxStore(db)
	processedStore := eventingpg.NewProcessedStore(db)
	dlqStore := eventingpg.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, cfg.TenantID, baseBus)

	facilityRepo := masterdatapg.NewFacilityRepository(db)
	integrationRepo := masterdatapg.NewIntegrationRepository(db)

	if cfg.SeedPath != "" {
		seed, err := masterdataapp.LoadSeedFile(cfg.SeedPath)
		if err != nil {
			logger.Fatalf("seed file: %v", err)
		}
		if err := masterdataapp.ApplySeed(context.Background(), seed, cfg.TenantID, facilityRepo, integrationRepo, logger); err != nil {
			logger.Fatalf("apply seed: %v", err)
		}
	}

	readingRepo := telemetrypg.NewReadingRepository(db)
	readingQuery := telemetrypg.NewReadingQuery(db)
	ingestService, err := telemetryapp.NewIngestService(readingRepo, publisher, telemetryapp.WithIngestLogger(logger))
	if err != nil {
		logger.Fatalf("ingest service: %v", err)
	}
	ingestHandler, err := telemetryhttp.NewIngestHandler(ingestService, logger)
	if err != nil {
		logger.Fatalf("ingest handler: %v", err)
	}

	var alerter connectors.Alerter
	if cfg.AlertWebhookURL != "" {
		alerter = alerts.NewWebhookNotifier(cfg.AlertWebhookURL)
	} else {
		alerter = alerts.NewLogNotifier(logger)
	}
	connectorManager, err := connectors.NewManager(integrationRepo, ingestService, alerter, logger)
	if err != nil {
		logger.Fatalf("connector manager: %v", err)
	}
	go func() {
		if err := connectorManager.Run(context.Background()); err != nil {
			logger.Printf("connector manager stopped: %v", err)
		}
	}()

	snapshots, err := baselinepg.NewSnapshotSource(db)
	if err != nil {
		logger.Fatalf("baseline snapshots: %v", err)
	}
	curveRepo := baselinepg.NewCurveRepository(db)
	adjustmentRepo := baselinepg.NewAdjustmentRepository(db)
	exclusionRepo := baselinepg.NewExclusionRepository(db)
	baselineService, err := baselineapp.NewService(snapshots, curveRepo, facilityRepo, auditRepo, logger)
	if err != nil {
		logger.Fatalf("baseline service: %v", err)
	}
	baselineHandler, err := baselinehttp.NewHandler(baselineService, adjustmentRepo, auth.NewFacilityChecker(db), auditRepo, logger)
	if err != nil {
		logger.Fatalf("baseline handler: %v", err)
	}
	exclusionConsumer, err := baselineinterfaces.NewCurtailmentCompletedConsumer(exclusionRepo, logger)
	if err != nil {
		logger.Fatalf("exclusion consumer: %v", err)
	}
	exclusionConsumer.Register(baseBus, processedStore)

	actuals, err := savingsadapters.NewTelemetryActuals(readingQuery)
	if err != nil {
		logger.Fatalf("savings actuals: %v", err)
	}
	savingsService, err := savingsapp.NewService(baselineService, actuals, logger)
	if err != nil {
		logger.Fatalf("savings service: %v", err)
	}
	savingsHandler, err := savingshttp.NewHandler(savingsService, logger)
	if err != nil {
		logger.Fatalf("savings handler: %v", err)
	}

	invoiceRepo := billingpg.NewInvoiceRepository(db)
	invoiceService, err := billingapp.NewInvoiceService(savingsService, invoiceRepo, facilityRepo, publisher, auditRepo, logger,
		billingapp.WithNetTerms(cfg.InvoiceNetTermsDays))
	if err != nil {
		logger.Fatalf("invoice service: %v", err)
	}
	invoiceHandler, err := billinghttp.NewHandler(invoiceService, invoiceRepo, logger)
	if err != nil {
		logger.Fatalf("invoice handler: %v", err)
	}
	monthlyRun, err := billingapp.NewMonthlyRun(invoiceService, facilityRepo, cfg.TenantID, logger)
	if err != nil {
		logger.Fatalf("monthly run: %v", err)
	}
	go func() {
		if err := monthlyRun.Loop(context.Background(), cfg.InvoiceRunInterval); err != nil {
			logger.Printf("monthly run stopped: %v", err)
		}
	}()

	scheduleRepo := curtailmentpg.NewScheduleRepository(db)
	estimator, err := curtailmentadapters.NewTelemetryEstimator(readingQuery)
	if err != nil {
		logger.Fatalf("reduction estimator: %v", err)
	}
	scheduler, err := curtailmentapp.NewScheduler(scheduleRepo, estimator, publisher, auditRepo, logger)
	if err != nil {
		logger.Fatalf("scheduler: %v", err)
	}
	scheduleHandler, err := curtailmenthttp.NewHandler(scheduler, logger)
	if err != nil {
		logger.Fatalf("schedule handler: %v", err)
	}
	go func() {
		if err := scheduler.SweepLoop(context.Background(), cfg.SweepInterval); err != nil {
			logger.Printf("sweep loop stopped: %v", err)
		}
	}()

	adminHandler, err := masterdatahttp.NewHandler(facilityRepo, integrationRepo, logger)
	if err != nil {
		logger.Fatalf("admin handler: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.IngestSecret), time.Duration(cfg.IngestSkewSeconds)*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/ingest/readings", ingestAuth.Wrap(ingestHandler))
	mux.Handle("/api/v1/ingest", ingestHandler)
	mux.HandleFunc("/api/v1/baseline", baselineHandler.GetBaseline)
	mux.HandleFunc("/api/v1/baseline/recompute", baselineHandler.Recompute)
	mux.HandleFunc("/api/v1/baseline/adjustments", baselineHandler.Adjustments)
	mux.Handle("/api/v1/savings", savingsHandler)
	mux.HandleFunc("/api/v1/invoices", invoiceHandler.Invoices)
	mux.HandleFunc("/api/v1/invoices/", invoiceHandler.InvoiceByID)
	mux.HandleFunc("/api/v1/schedules", scheduleHandler.Schedules)
	mux.HandleFunc("/api/v1/schedules/", scheduleHandler.Cancel)
	mux.HandleFunc("/api/v1/facilities", adminHandler.Facilities)
	mux.HandleFunc("/api/v1/integrations", adminHandler.Integrations)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL         string
	HTTPAddr            string
	TenantID            string
	JWTSecret           string
	IngestSecret        string
	IngestSkewSeconds   int
	AlertWebhookURL     string
	SeedPath            string
	SweepInterval       time.Duration
	InvoiceRunInterval  time.Duration
	InvoiceNetTermsDays int
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:         getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:            getenvDefault("HTTP_ADDR", ":8080"),
		TenantID:            getenvDefault("TENANT_ID", "tenant-demo"),
		JWTSecret:           getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestSecret:        getenvDefault("INGEST_HMAC_SECRET", ""),
		IngestSkewSeconds:   getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
		AlertWebhookURL:     getenvDefault("ALERT_WEBHOOK_URL", ""),
		SeedPath:            getenvDefault("SEED_CONFIG", ""),
		SweepInterval:       getenvDuration("SWEEP_INTERVAL", curtailmentapp.DefaultSweepInterval),
		InvoiceRunInterval:  getenvDuration("INVOICE_RUN_INTERVAL", time.Hour),
		InvoiceNetTermsDays: getenvIntDefault("INVOICE_NET_TERMS_DAYS", 30),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
