package main

import (
	"context"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"peerprep/interview/internal/cache"
	"peerprep/interview/internal/config"
	"peerprep/interview/internal/detection"
	"peerprep/interview/internal/events"
	"peerprep/interview/internal/evidence"
	"peerprep/interview/internal/handlers"
	"peerprep/interview/internal/interview"
	"peerprep/interview/internal/jobs"
	"peerprep/interview/internal/llm"
	_ "peerprep/interview/internal/llm/gemini"
	"peerprep/interview/internal/metrics"
	"peerprep/interview/internal/middleware"
	"peerprep/interview/internal/proctoring"
	"peerprep/interview/internal/prompts"
	mongorepo "peerprep/interview/internal/repositories/mongo"
	sqlrepo "peerprep/interview/internal/repositories/sql"
	"peerprep/interview/internal/routers"
	"peerprep/interview/internal/scoring"
	"peerprep/interview/internal/telemetry"
	"peerprep/interview/internal/utils"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

var (
	connectMongo = mongorepo.NewClient
	openLedgerDB = sqlrepo.Open
)

var allowedOrigins = []string{"http://localhost:5173", "https://d1z9c2graxigrz.cloudfront.net"}

func registerRoutes(router *chi.Mux, cfg *config.Config, interviewHandler *handlers.InterviewHandler, proctoringHandler *handlers.ProctoringHandler, healthHandler *handlers.HealthHandler) {
	routers.HealthRoutes(router, healthHandler)
	routers.InterviewRoutes(router, cfg.JWTSecret, interviewHandler, proctoringHandler, routers.RateLimits{
		Global:     middleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, 0),
		VerifyFace: middleware.PerWindow(100, 15*time.Minute),
		Violations: middleware.PerWindow(50, 15*time.Minute),
	})
	routers.EvidenceRoutes(router, cfg.JWTSecret, cfg.EvidenceBaseURL, cfg.EvidenceDir)
}

// newRouter builds the root mux. Forwarding headers are only believed when
// the peer is one of trustedProxies, since the rate limiters key on RemoteAddr.
func newRouter(trustedProxies []netip.Prefix) *chi.Mux {
	router := chi.NewRouter()

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	router.Use(chimw.RequestID, middleware.RealIP(trustedProxies), chimw.Logger, chimw.Recoverer, chimw.Timeout(60*time.Second))
	router.Use(metrics.Middleware("interview"))
	return router
}

// buildCache layers the in-process LRU in front of redis when redis is configured.
func buildCache(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) proctoring.EmbeddingCache {
	local := cache.NewLocalEmbeddings(cfg.EmbeddingCacheSize, cfg.EmbeddingCacheTTL)
	if rdb == nil {
		return local
	}
	return cache.NewTiered(local, cache.NewRedisEmbeddings(rdb, cfg.EmbeddingCacheTTL, logger))
}

func buildPublisher(rdb *redis.Client, logger *zap.Logger) proctoring.EventPublisher {
	if rdb == nil {
		return events.Nop{}
	}
	return events.NewRedisPublisher(rdb, logger)
}

// buildLedger returns the postgres ledger when configured, otherwise the mongo one.
func buildLedger(ctx context.Context, cfg *config.Config, mongoLedger *mongorepo.ViolationRepo, logger *zap.Logger) (proctoring.ViolationLedger, func(), error) {
	if !cfg.PostgresEnabled() {
		return mongoLedger, func() {}, nil
	}
	dsn := sqlrepo.DSN(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresSSLMode)
	db, err := openLedgerDB(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Violation ledger backed by postgres", zap.String("host", cfg.PostgresHost), zap.String("db", cfg.PostgresDB))
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return sqlrepo.NewViolationLedger(db), closeDB, nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, err := utils.NewLogger(cfg.LogFile)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "interview-service",
		Version:     version,
		Insecure:    true,
	})
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}

	mongoClient, err := connectMongo(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	db, err := mongoClient.DB()
	if err != nil {
		logger.Fatal("Failed to open MongoDB database", zap.Error(err))
	}

	sessionRepo := mongorepo.NewSessionRepo(db)
	userRepo := mongorepo.NewUserRepo(db)
	violationRepo := mongorepo.NewViolationRepo(db)
	reportRepo := mongorepo.NewReportRepo(db)

	indexCtx, cancelIndexes := context.WithTimeout(ctx, 30*time.Second)
	for name, ensure := range map[string]func(context.Context) error{
		"interview_sessions": sessionRepo.EnsureIndexes,
		"violations":         violationRepo.EnsureIndexes,
		"interview_reports":  reportRepo.EnsureIndexes,
	} {
		if err := ensure(indexCtx); err != nil {
			logger.Warn("Failed to ensure indexes", zap.String("collection", name), zap.Error(err))
		}
	}
	cancelIndexes()

	ledger, closeLedger, err := buildLedger(ctx, cfg, violationRepo, logger)
	if err != nil {
		logger.Fatal("Failed to initialize violation ledger", zap.Error(err))
	}
	defer closeLedger()

	var rdb *redis.Client
	var cachePinger handlers.Pinger
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		cachePinger = handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		logger.Info("Redis enabled for embedding cache and events", zap.String("addr", cfg.RedisAddr))
	}

	detector := detection.NewClient(cfg.DetectorURL, cfg.DetectorTimeout)

	deps := proctoring.Dependencies{
		Sessions: sessionRepo,
		Ledger:   ledger,
		Users:    userRepo,
		Cache:    buildCache(cfg, rdb, logger),
		Detector: detector,
		Events:   buildPublisher(rdb, logger),
		Reports:  reportRepo,
		Logger:   logger,
	}
	if store, err := evidence.NewFileStore(cfg.EvidenceDir, cfg.EvidenceBaseURL); err != nil {
		logger.Error("Evidence storage disabled", zap.Error(err))
	} else {
		deps.Evidence = store
	}

	settings := proctoring.DefaultSettings()
	settings.MatchThreshold = cfg.FaceMatchThreshold
	settings.PenaltyPerIncident = cfg.PenaltyPerIncident
	settings.MaxEvidenceImages = cfg.MaxEvidenceImages
	proctoringService := proctoring.NewService(deps, settings)

	promptManager, err := prompts.NewPromptManager()
	if err != nil {
		logger.Fatal("Failed to initialize prompt manager", zap.Error(err))
	}
	// answers still get a fallback score without a provider
	var aiProvider llm.Provider
	if p, err := llm.NewProvider(cfg.Provider); err != nil {
		logger.Error("AI provider unavailable, answers will receive fallback scores", zap.String("provider", cfg.Provider), zap.Error(err))
	} else {
		aiProvider = p
	}
	scorer := scoring.NewAnswerScorer(aiProvider, promptManager, cfg.LLMTimeout, logger)
	interviewService := interview.NewService(sessionRepo, scorer, logger)

	finalizer := jobs.NewSessionFinalizerJob(sessionRepo, proctoringService.Projector(), jobs.FinalizerConfig{
		Schedule: cfg.FinalizerSchedule,
		MaxAge:   cfg.SessionMaxAge,
	}, logger)
	if err := finalizer.Start(); err != nil {
		logger.Error("Failed to start session finalizer", zap.Error(err))
	}

	router := newRouter(cfg.TrustedProxies)
	registerRoutes(router, cfg,
		handlers.NewInterviewHandler(interviewService, logger),
		handlers.NewProctoringHandler(proctoringService, logger),
		handlers.NewHealthHandler(version, mongoClient, cachePinger, detector))

	serverAddr := ":" + cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Interview service starting",
			zap.String("addr", serverAddr),
			zap.String("ledger", cfg.LedgerBackend),
			zap.String("version", version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownChan

	logger.Info("Interview service shutting down...")
	finalizer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Failed to flush traces", zap.Error(err))
	}
	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		logger.Warn("Failed to disconnect from MongoDB", zap.Error(err))
	}

	logger.Info("Interview service exited")
}
