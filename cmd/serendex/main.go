package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/seren-labs/serendex/internal/config"
	"github.com/seren-labs/serendex/internal/db"
	dbRedis "github.com/seren-labs/serendex/internal/db/redis"
	"github.com/seren-labs/serendex/internal/domain"
	domrank "github.com/seren-labs/serendex/internal/domain/ranking"
	"github.com/seren-labs/serendex/internal/domain/search/mode"
	logpkg "github.com/seren-labs/serendex/internal/logger"
	"github.com/seren-labs/serendex/internal/metrics"
	"github.com/seren-labs/serendex/internal/repository/embcache"
	vectorrepo "github.com/seren-labs/serendex/internal/repository/vector"
	"github.com/seren-labs/serendex/internal/tokenizer"
	chiTransport "github.com/seren-labs/serendex/internal/transport/chi"
	openaiEmb "github.com/seren-labs/serendex/internal/transport/openai"
	clusteruc "github.com/seren-labs/serendex/internal/usecase/cluster"
	engineuc "github.com/seren-labs/serendex/internal/usecase/engine"
	healthuc "github.com/seren-labs/serendex/internal/usecase/health"
	"github.com/seren-labs/serendex/internal/usecase/perturb"
	rankinguc "github.com/seren-labs/serendex/internal/usecase/ranking"
	similarityuc "github.com/seren-labs/serendex/internal/usecase/similarity"
	"github.com/seren-labs/serendex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting serendex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register engine metrics explicitly (no init())
	metrics.RegisterEngineMetrics()

	docEmbedder := buildEmbedder(
		cfg.Embedding, cfg.Embedding.DocInstruction, cfg.Engine.Dimensions, store, logger,
	)
	queryEmbedder := buildEmbedder(
		cfg.Embedding, cfg.Embedding.QueryInstruction, cfg.Engine.Dimensions, store, logger,
	)
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", embeddingModel(cfg.Embedding)),
		zap.Int("dimensions", cfg.Engine.Dimensions),
	)

	vectors := vectorrepo.New(store, cfg.Engine.Dimensions).
		WithCache(cfg.Engine.CacheSize, time.Duration(cfg.Engine.CacheTTLSec)*time.Second)

	sim := similarityuc.New(vectors, perturb.New()).WithModes(modeTable(cfg.Engine.Modes))

	scorer := rankinguc.NewScorer().WithWeights(initialWeights(cfg.Engine.Weights, logger))
	text := rankinguc.NewTextScorer(tokenizer.New())

	engine := engineuc.New(vectors, sim, scorer, text, docEmbedder, logger).
		WithQueryEmbedder(queryEmbedder).
		WithLimits(cfg.Engine.TextWindow, cfg.Engine.ReindexWorkers, cfg.Engine.ReindexLimit)

	clusters := clusteruc.New(vectors).WithMaxVectors(cfg.Engine.ClusterWindow)

	health := healthuc.New(store, newEmbeddingHealthChecker(docEmbedder))

	server := chiTransport.NewServer(engine, clusters, scorer, health, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instruction
func buildEmbedder(
	cfg config.EmbeddingConfig,
	instruction string,
	dimensions int,
	store db.Store,
	logger *zap.Logger,
) domain.Embedder {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      embeddingModel(cfg),
		Dimensions: dimensions,
		Provider:   cfg.Provider,
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if store != nil {
		embedder = embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)
	}

	// Instruction prefix (outermost — cache key includes instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}

	return embedder
}

func embeddingModel(cfg config.EmbeddingConfig) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return domain.DefaultVectorConfig().Model
}

// modeTable overlays configured mode tuning on the built-in defaults.
func modeTable(overrides map[string]config.ModeConfig) mode.Table {
	t := mode.DefaultTable()
	for name, m := range overrides {
		t[mode.Mode(name)] = mode.Settings{
			NoiseLevel: m.NoiseLevel,
			PoolSize:   m.PoolSize,
		}
	}
	return t
}

// initialWeights builds the starting weight vector from config. An
// all-zero config falls back to the engine defaults.
func initialWeights(cfg config.WeightsConfig, logger *zap.Logger) domrank.Weights {
	w, err := domrank.New(cfg.Vector, cfg.Text, cfg.Temporal, cfg.Diversity, cfg.Project, cfg.Type)
	if err != nil {
		logger.Warn("Invalid configured weights, using defaults", zap.Error(err))
		return domrank.Default()
	}
	return w
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
