package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mdshare/config"
	"mdshare/config/database"
	"mdshare/internal/document/repository"
	"mdshare/internal/document/service"
	"mdshare/internal/identity"
	"mdshare/internal/seed"
	"mdshare/middleware"
	"mdshare/pkg/logger"
	"mdshare/pkg/metrics"
	"mdshare/router"
	"mdshare/socket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Sugar.Fatalf("Could not connect to database. Check your internet or Supabase status: %v", err)
	}
	defer db.Close()

	repo := repository.NewPostgresRepository(db)
	svc := service.NewDocumentService(repo, cfg.Autosave.Debounce)

	// The hub owns the editor sessions; the service closes them on delete
	// and revoke.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := socket.NewHub(svc)
	svc.SetSessions(hub)
	go hub.Run(hubCtx)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Sugar.Warnf("Redis unavailable, using in-memory rate limiting: %v", err)
			rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	idp := identity.NewClient(cfg.Supabase)
	handler, err := router.Setup(router.Deps{
		Config:   cfg,
		Service:  svc,
		Hub:      hub,
		Auth:     middleware.NewAuthenticator(cfg.Supabase.JWTSecret),
		Sessions: idp,
		Seed:     seed.NewInitializer(repo, idp, cfg.Demo),
		DB:       db,
		Redis:    rdb,
	})
	if err != nil {
		logger.Sugar.Fatalf("Failed to set up routes: %v", err)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Sugar.Infof("Markdown editor listening on :%s", cfg.Server.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar.Errorf("Server error: %v", err)
		}
	case <-ctx.Done():
		logger.Sugar.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Sugar.Errorf("Graceful shutdown failed: %v", err)
		}
	}

	// Edits still inside their quiet period are written before exit.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.Close(flushCtx); err != nil {
		logger.Sugar.Errorf("Failed to flush pending edits: %v", err)
	}
	logger.Sugar.Info("Server stopped")
}
