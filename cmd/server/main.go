package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"solace/internal/agent"
	"solace/internal/auth"
	"solace/internal/config"
	"solace/internal/handler"
	"solace/internal/middleware"
	"solace/internal/repository/cache"
	"solace/internal/repository/postgres"
	"solace/internal/service/conversation"
	"solace/internal/service/history"
	"solace/internal/service/streaming"
	"solace/internal/techniques"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	var logOutput io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, 5)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logOutput = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
		"cache_trust_ttl", cfg.CacheTrustTTL,
	)

	// Create JWT verifier for Supabase authentication
	jwtVerifier, err := auth.NewJWTVerifier(cfg.SupabaseJWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.SupabaseDBURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	// Connect to Redis. A cache outage is not fatal: every cache path
	// degrades to the durable store, so the server starts either way.
	redisCache := cache.NewRedisCache(&cache.Config{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     10,
		MinIdleConns: 2,
	}, logger)
	if err := redisCache.Connect(ctx); err != nil {
		logger.Warn("redis unavailable, serving from durable store only", "error", err)
	} else {
		logger.Info("redis connected", "addr", cfg.RedisAddr)
	}
	defer redisCache.Close()

	// Create table names
	tables := postgres.NewTableNames(cfg.TablePrefix)

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	conversationRepo := postgres.NewConversationRepository(repoConfig)
	messageRepo := postgres.NewMessageRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// Load the technique catalog (embedded at build time)
	registry, err := techniques.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load technique registry: %v", err)
	}
	logger.Info("technique registry loaded", "count", len(registry.List()))

	// Agent backend client + streaming pipeline
	agentClient := agent.NewClient(cfg.AgentBaseURL, cfg.AgentAPIKey, logger)
	normalizer := streaming.NewNormalizer(registry.RoutingSentinels(), logger)
	streamer := streaming.NewSession(agentClient, normalizer, messageRepo, conversationRepo, redisCache, logger)

	// Services
	historyService := history.NewService(redisCache, messageRepo, cfg.CacheTrustTTL, logger)
	conversationService := conversation.NewService(conversationRepo, messageRepo, txManager, redisCache, logger)

	// Handlers
	chatHandler := handler.NewChatHandler(conversationService, historyService, streamer, nil, logger)
	techniquesHandler := handler.NewTechniquesHandler(registry, logger)

	// Setup routes using Go 1.22+ enhanced ServeMux
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Conversation routes
	mux.HandleFunc("POST /api/conversations", chatHandler.CreateConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", chatHandler.DeleteConversation)
	mux.HandleFunc("GET /api/conversations/{id}/messages", chatHandler.ListMessages)
	mux.HandleFunc("POST /api/conversations/{id}/messages", chatHandler.StreamMessage)
	mux.HandleFunc("POST /api/conversations/{id}/resume", chatHandler.ResumeInterrupt)

	// Technique catalog routes
	mux.HandleFunc("GET /api/techniques", techniquesHandler.ListTechniques)
	mux.HandleFunc("GET /api/techniques/{id}", techniquesHandler.GetTechnique)

	// Build middleware chain
	var httpHandler http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	httpHandler = middleware.Auth(jwtVerifier, logger)(httpHandler)
	httpHandler = middleware.Recovery(logger)(httpHandler)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	})
	httpHandler = corsHandler.Handler(httpHandler)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
