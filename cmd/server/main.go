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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/otcheredev/emergency-dispatch/internal/auth"
	"github.com/otcheredev/emergency-dispatch/internal/cache"
	"github.com/otcheredev/emergency-dispatch/internal/config"
	"github.com/otcheredev/emergency-dispatch/internal/database"
	"github.com/otcheredev/emergency-dispatch/internal/handlers"
	"github.com/otcheredev/emergency-dispatch/internal/metrics"
	"github.com/otcheredev/emergency-dispatch/internal/middleware"
	"github.com/otcheredev/emergency-dispatch/internal/models"
	"github.com/otcheredev/emergency-dispatch/internal/realtime"
	"github.com/otcheredev/emergency-dispatch/internal/repository"
	"github.com/otcheredev/emergency-dispatch/internal/services"
	"github.com/otcheredev/emergency-dispatch/pkg/logger"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("Starting emergency dispatch service")

	if err := database.Connect(database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		LogLevel:        cfg.Database.LogLevel,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	checks := map[string]handlers.Check{
		"database": func(context.Context) error { return database.Ping() },
	}

	// Ambulance positions; the database row remains the fallback when the
	// cache is cold or disabled.
	var locations cache.Cache
	switch {
	case cfg.Cache.Enabled && cfg.Cache.Type == "redis":
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		checks["cache"] = rc.Ping
		locations = rc
		log.Info().Str("addr", cfg.Redis.Addr()).Msg("Redis location cache initialized")
	case cfg.Cache.Enabled:
		locations = cache.NewMemoryCache(time.Minute)
		log.Info().Msg("Memory location cache initialized")
	default:
		log.Info().Msg("Location cache disabled")
	}
	if locations != nil {
		defer locations.Close()
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Leeway)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize token service")
	}

	// Repositories
	db := database.DB
	emergencyRepo := repository.NewEmergencyRepository(db)
	ambulanceRepo := repository.NewAmbulanceRepository(db)
	hospitalRepo := repository.NewHospitalRepository(db)
	bedRepo := repository.NewBedRepository(db)
	messageRepo := repository.NewCommunicationRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry)

	emergencyService := services.NewEmergencyService(emergencyRepo, ambulanceRepo, hospitalRepo, userRepo, auditRepo, locations, dispatcher)
	fleetService := services.NewFleetService(emergencyRepo, ambulanceRepo, hospitalRepo, bedRepo, locations, cfg.Cache.LocationTTL, dispatcher)
	chatService := services.NewChatService(emergencyRepo, ambulanceRepo, hospitalRepo, messageRepo, dispatcher)

	healthHandler := handlers.NewHealthHandler(checks)
	emergencyHandler := handlers.NewEmergencyHandler(emergencyService)
	communicationHandler := handlers.NewCommunicationHandler(chatService)
	ambulanceHandler := handlers.NewAmbulanceHandler(fleetService)
	hospitalHandler := handlers.NewHospitalHandler(fleetService)
	pushHandler := realtime.NewHandler(registry, tokens, fleetService, chatService, realtime.HandlerConfig{
		SendBuffer:     cfg.Push.SendBuffer,
		WriteWait:      cfg.Push.WriteWait,
		MaxMessageSize: cfg.Push.MaxMessageSize,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	if cfg.Metrics.Enabled {
		metrics.Register()
		r.Use(metrics.Instrument)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", metrics.Handler())
	}

	// Push channel; authenticates from the query string and must not sit
	// behind compression.
	r.Get("/ws", pushHandler.ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(cfg.Server.WriteTimeout))
		r.Use(chimiddleware.Compress(5))
		r.Use(middleware.Authenticate(tokens))

		r.Route("/emergencies", func(r chi.Router) {
			r.With(middleware.RequireRole(models.RolePatient)).Post("/", emergencyHandler.Create)
			r.Get("/", emergencyHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", emergencyHandler.Get)
				r.Patch("/", emergencyHandler.Update)
				r.Delete("/", emergencyHandler.Delete)
				r.With(middleware.RequireRole(models.RoleAmbulance)).Post("/accept", emergencyHandler.Accept)
				r.With(middleware.RequireRole(models.RoleAmbulance)).Post("/eta", emergencyHandler.AssignETA)
				r.Post("/status", emergencyHandler.ChangeStatus)
				r.Get("/messages", communicationHandler.List)
				r.Post("/messages", communicationHandler.Send)
			})
		})

		r.Post("/messages/{id}/read", communicationHandler.MarkRead)

		r.Route("/ambulances", func(r chi.Router) {
			r.Get("/nearby", ambulanceHandler.Nearby)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAmbulance))
				r.Put("/me/location", ambulanceHandler.ReportLocation)
				r.Put("/me/status", ambulanceHandler.SetStatus)
			})
		})

		r.Route("/hospitals", func(r chi.Router) {
			r.Get("/nearby", hospitalHandler.Nearby)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleHospital))
				r.Put("/me/status", hospitalHandler.SetStatus)
				r.Get("/me/beds", hospitalHandler.ListBeds)
				r.Post("/me/beds", hospitalHandler.SeedBeds)
				r.Post("/me/admissions", hospitalHandler.Admit)
				r.Post("/me/beds/{bedNumber}/release", hospitalHandler.ReleaseBed)
			})
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	// No server-wide WriteTimeout: it would also cut hijacked push
	// connections. The API group carries its own timeout.
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Int("push_connections", registry.Count()).Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	registry.CloseAll()

	log.Info().Msg("Server stopped")
}
