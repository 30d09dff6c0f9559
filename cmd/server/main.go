package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pitchside/pitchside/internal/auth"
	"github.com/pitchside/pitchside/internal/cache"
	"github.com/pitchside/pitchside/internal/config"
	"github.com/pitchside/pitchside/internal/game"
	"github.com/pitchside/pitchside/internal/ranking"
	"github.com/pitchside/pitchside/internal/room"
	"github.com/pitchside/pitchside/internal/server"
	"github.com/pitchside/pitchside/internal/store"
	"github.com/pitchside/pitchside/internal/store/migrations"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect db", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.Up(cfg.DatabaseURL); err != nil {
		logger.Error("run migrations", "err", err)
		os.Exit(1)
	}

	rdb, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Stores and services
	userStore := store.NewUserStore(db)
	statsStore := store.NewStatsStore(db)
	authSvc := auth.NewService(userStore, cfg.JWTSecret)
	rankingSvc := ranking.NewService(statsStore, ranking.NewRedisCache(rdb), logger)

	// Room manager backed by the Redis coordination store
	rooms := room.NewManager(room.NewRedisStore(rdb), logger)

	// Wire engine and hub (circular dependency resolved via SetHub)
	metrics := server.NewMetrics()
	engine := game.NewEngine(rooms, rankingSvc, authSvc, metrics, logger)
	hub := server.NewHub(cfg.WSReadLimit, cfg.WSPingInterval, logger)
	hub.SetHandler(engine)
	engine.SetHub(hub)

	srv := server.New(cfg, db, rdb, hub, metrics, logger)
	srv.SetAuthService(authSvc)
	srv.SetRankingService(rankingSvc)
	srv.SetStatsStore(statsStore)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}
