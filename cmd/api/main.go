package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/snacc/snacc-api/internal/config"
	"github.com/snacc/snacc-api/internal/domain/moderation"
	"github.com/snacc/snacc-api/internal/domain/relationships"
	"github.com/snacc/snacc-api/internal/middleware"
	"github.com/snacc/snacc-api/internal/pkg/database"
	"github.com/snacc/snacc-api/internal/pkg/eventbus"
	"github.com/snacc/snacc-api/internal/pkg/jwt"
	"github.com/snacc/snacc-api/internal/pkg/logger"
	pkgresponse "github.com/snacc/snacc-api/internal/pkg/response"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("store", cfg.StoreDriver).
		Msg("Starting snacc API")

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	stores, err := openStores(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("Failed to open edge store")
	}
	defer stores.close()

	publisher, err := eventbus.NewNatsPublisher(cfg.NatsURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer publisher.Close()

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- Events ----------
	hub := relationships.NewHub(redisClient)
	go hub.Run()
	defer hub.Shutdown()

	notifiers := relationships.Notifiers{hub}
	if publisher != nil {
		notifiers = append(notifiers, relationships.NewStreamNotifier(publisher))
	}

	// ---------- Services ----------
	relationshipService := relationships.NewService(
		stores.edges,
		stateCache(redisClient, cfg),
		notifiers,
	)
	moderationService := moderation.NewService(stores.reports)

	// ---------- Handlers ----------
	r := newRouter(routerDeps{
		relationships:  relationships.NewHandler(relationshipService, hub, cfg.AllowedOrigins),
		reports:        moderation.NewHandler(moderationService),
		auth:           middleware.Auth(jwtService),
		allowedOrigins: cfg.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

type routerDeps struct {
	relationships  *relationships.Handler
	reports        *moderation.Handler
	auth           func(http.Handler) http.Handler
	allowedOrigins []string
}

func newRouter(d routerDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(d.allowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		// WebSocket stream is mounted outside the compressed group
		r.Mount("/ws", d.relationships.StreamRoutes(d.auth))

		r.Group(func(r chi.Router) {
			r.Use(chimw.Compress(5))
			r.Mount("/relationships", d.relationships.Routes(d.auth))
			r.Mount("/users", d.relationships.UserRoutes(d.auth))
			r.Mount("/reports", d.reports.Routes(d.auth))
		})
	})

	return r
}

type stores struct {
	edges   relationships.Repository
	reports moderation.Repository
	close   func()
}

// openStores connects the edge store selected by STORE_DRIVER. Reports live in
// Postgres when it is available and in memory otherwise.
func openStores(cfg *config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &stores{
			edges:   relationships.NewRepository(db),
			reports: moderation.NewRepository(db),
			close:   func() { database.ClosePostgres(db) },
		}, nil

	case config.StoreDriverNeo4j:
		driver, err := database.NewNeo4j(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return nil, err
		}
		graph := relationships.NewNeo4jRepository(driver)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := graph.EnsureSchema(ctx); err != nil {
			database.CloseNeo4j(driver)
			return nil, fmt.Errorf("neo4j schema: %w", err)
		}
		return &stores{
			edges:   graph,
			reports: moderation.NewMemoryRepository(),
			close:   func() { database.CloseNeo4j(driver) },
		}, nil

	case config.StoreDriverMemory:
		log.Warn().Msg("Using in-memory edge store, data is lost on restart")
		return &stores{
			edges:   relationships.NewMemoryRepository(),
			reports: moderation.NewMemoryRepository(),
			close:   func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// stateCache prefers Redis. Without it only the single-process memory store
// gets a cache, since other stores may be shared by several instances.
func stateCache(client *redis.Client, cfg *config.Config) relationships.StateCache {
	if client != nil {
		return relationships.NewRedisStateCache(client, cfg.StateCacheTTL)
	}
	if cfg.StoreDriver == config.StoreDriverMemory {
		return relationships.NewMemoryStateCache(cfg.StateCacheTTL)
	}
	return nil
}
