package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"peerprep/interview/internal/cache"
	"peerprep/interview/internal/config"
	"peerprep/interview/internal/events"
	"peerprep/interview/internal/handlers"
	mongorepo "peerprep/interview/internal/repositories/mongo"
	sqlrepo "peerprep/interview/internal/repositories/sql"
	"peerprep/interview/internal/testhelpers"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		JWTSecret:          "secret",
		EvidenceDir:        t.TempDir(),
		EvidenceBaseURL:    "/uploads/cheating",
		EmbeddingCacheSize: 16,
		EmbeddingCacheTTL:  time.Minute,
		RateLimitRPS:       5,
		RateLimitBurst:     5,
		LedgerBackend:      config.LedgerMongo,
	}
}

func TestRegisterRoutes(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.EvidenceDir, "frame.jpg"), []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("write evidence: %v", err)
	}

	router := chi.NewRouter()
	registerRoutes(router, cfg,
		handlers.NewInterviewHandler(nil, zap.NewNop()),
		handlers.NewProctoringHandler(nil, zap.NewNop()),
		handlers.NewHealthHandler("test", nil, nil, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected /healthz to be registered, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/cheating/frame.jpg", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected evidence behind auth, got %d", rec.Code)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"userId": "64b7f0c2a1b2c3d4e5f60718"}).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/uploads/cheating/frame.jpg", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "jpeg" {
		t.Fatalf("expected evidence file to be served, got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/interview/finish", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected interview routes behind auth, got %d", rec.Code)
	}
}

func TestNewRouterHandlesPreflight(t *testing.T) {
	router := newRouter(nil)
	router.Get("/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", allowedOrigins[0])
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != allowedOrigins[0] {
		t.Fatalf("expected CORS origin header, got %q", got)
	}
}

func TestNewRouterTrustsOnlyConfiguredProxies(t *testing.T) {
	router := newRouter([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")})
	var seen string
	router.Get("/who", func(w http.ResponseWriter, r *http.Request) { seen = r.RemoteAddr })

	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	router.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "203.0.113.9:4000" {
		t.Fatalf("header from untrusted peer was honoured: %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/who", nil)
	req.RemoteAddr = "10.1.2.3:4000"
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	router.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "198.51.100.7" {
		t.Fatalf("expected client address from trusted proxy, got %q", seen)
	}
}

func TestBuildCache(t *testing.T) {
	cfg := testConfig(t)
	if _, ok := buildCache(cfg, nil, zap.NewNop()).(*cache.LocalEmbeddings); !ok {
		t.Fatal("expected local cache without redis")
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := buildCache(cfg, rdb, zap.NewNop())
	if _, ok := c.(*cache.Tiered); !ok {
		t.Fatalf("expected tiered cache with redis, got %T", c)
	}
	c.Set(context.Background(), "user-1", []float64{1, 2})
	if !mr.Exists(cache.EmbeddingKeyPrefix + "user-1") {
		t.Fatal("expected embedding written through to redis")
	}
}

func TestBuildPublisher(t *testing.T) {
	if _, ok := buildPublisher(nil, zap.NewNop()).(events.Nop); !ok {
		t.Fatal("expected no-op publisher without redis")
	}
	rdb := redis.NewClient(&redis.Options{Addr: miniredis.RunT(t).Addr()})
	defer rdb.Close()
	if _, ok := buildPublisher(rdb, zap.NewNop()).(*events.RedisPublisher); !ok {
		t.Fatal("expected redis publisher")
	}
}

func TestBuildLedger(t *testing.T) {
	cfg := testConfig(t)
	mongoLedger := &mongorepo.ViolationRepo{}

	ledger, closeLedger, err := buildLedger(context.Background(), cfg, mongoLedger, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	closeLedger()
	if ledger != mongoLedger {
		t.Fatal("expected mongo ledger by default")
	}

	cfg.LedgerBackend = config.LedgerPostgres
	cfg.PostgresUser, cfg.PostgresDB = "interview", "interview"

	original := openLedgerDB
	t.Cleanup(func() { openLedgerDB = original })

	openLedgerDB = func(context.Context, string) (*gorm.DB, error) { return nil, errors.New("connection refused") }
	if _, _, err := buildLedger(context.Background(), cfg, mongoLedger, zap.NewNop()); err == nil {
		t.Fatal("expected open error to propagate")
	}

	var gotDSN string
	openLedgerDB = func(_ context.Context, dsn string) (*gorm.DB, error) {
		gotDSN = dsn
		db := testhelpers.SetupTestDB(t)
		return db, sqlrepo.Migrate(db)
	}
	ledger, closeLedger, err = buildLedger(context.Background(), cfg, mongoLedger, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeLedger()
	if _, ok := ledger.(*sqlrepo.ViolationLedger); !ok {
		t.Fatalf("expected sql ledger, got %T", ledger)
	}
	if gotDSN == "" {
		t.Fatal("expected a DSN to be passed to the driver")
	}
}
