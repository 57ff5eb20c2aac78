package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"termslens/internal/config"
	"termslens/internal/database"
	"termslens/internal/handlers"
	"termslens/internal/middleware"
	"termslens/internal/repository"
	"termslens/internal/router"
	"termslens/internal/services"
	"termslens/internal/websocket"
)

func main() {
	log.Println("🚀 Starting termslens...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize Session Store ────
	var (
		sessionRepo repository.SessionRepo
		redisClient *redis.Client
	)
	if cfg.UseRedis() {
		client, err := database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		defer client.Close()
		redisClient = client
		sessionRepo = repository.NewRedisSessionRepo(client, cfg.SessionTTL)
		log.Printf("✓ Redis session store connected (ttl %s)", cfg.SessionTTL)
	} else {
		memRepo := repository.NewMemorySessionRepo(cfg.SessionTTL)
		defer memRepo.Close()
		sessionRepo = memRepo
		log.Printf("✓ In-memory session store ready (ttl %s)", cfg.SessionTTL)
	}

	// ──── Step 3: Initialize Metrics ────
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewMetrics(registry)
	log.Println("✓ Metrics registered")

	// ──── Step 4: Initialize Analysis Client ────
	analysisService := services.NewAnalysisService(
		cfg.AnalysisAPIURL,
		services.WithTimeout(cfg.AnalysisTimeout),
		services.WithMetrics(metrics),
	)
	log.Printf("✓ Analysis service client initialized (%s)", analysisService.BaseURL())

	// ──── Step 5: Start WebSocket Hub ────
	wsHub := websocket.NewHub(sessionRepo, redisClient)
	log.Println("✓ WebSocket hub started")

	// ──── Initialize Handlers ────
	analyzeHandler := handlers.NewAnalyzeHandler(analysisService, sessionRepo, services.NewDocumentExtractor())
	sessionHandler := handlers.NewSessionHandler(sessionRepo, analysisService, wsHub, metrics)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMin, time.Minute)
	defer limiter.Close()

	// ──── Step 6: Start Panel Pruning ────
	pruneCtx, stopPrune := context.WithCancel(context.Background())
	defer stopPrune()
	go func() {
		ticker := time.NewTicker(cfg.SessionTTL)
		defer ticker.Stop()
		for {
			select {
			case <-pruneCtx.Done():
				return
			case <-ticker.C:
				if n := sessionHandler.Prune(pruneCtx); n > 0 {
					log.Printf("Pruned %d expired chat panels", n)
				}
			}
		}
	}()

	// ──── Step 7: Start HTTP Server ────
	r := router.New(analyzeHandler, sessionHandler, wsHub, limiter, registry)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		stopPrune()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ termslens ready on http://localhost:%s (%s)", cfg.Port, cfg.Env)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/sessions/{id}/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
