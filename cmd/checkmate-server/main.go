package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/IPandragonI/checkmate-sub000/internal/bot"
	"github.com/IPandragonI/checkmate-sub000/internal/config"
	"github.com/IPandragonI/checkmate-sub000/internal/game"
	"github.com/IPandragonI/checkmate-sub000/internal/obslog"
	"github.com/IPandragonI/checkmate-sub000/internal/rating"
	"github.com/IPandragonI/checkmate-sub000/internal/session"
	"github.com/IPandragonI/checkmate-sub000/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		panic(err)
	}
	log := obslog.L()
	log.Info("server_boot", zap.String("listen", cfg.ListenAddr))

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal("store_open_error", zap.Error(err))
	}
	defer store.Close()

	games := game.NewManager(store)

	var ratingRepo rating.Repository = rating.NewMemoryRepository()
	if cfg.DatabaseURL != "" {
		archive, err := openArchive(cfg)
		if err != nil {
			log.Fatal("archive_open_error", zap.Error(err))
		}
		defer archive.Close()
		games.AttachArchive(archive)
		sqlRepo, err := rating.NewSQLRepository(archive.DB())
		if err != nil {
			log.Fatal("rating_repo_error", zap.Error(err))
		}
		ratingRepo = sqlRepo
	} else {
		log.Warn("archive_disabled", zap.String("reason", "DATABASE_URL not set"))
	}
	defer ratingRepo.Close()

	registry := session.NewRegistry()
	selector := bot.NewSelector(cfg.BotSearchDepth, nil)
	ratings := rating.NewUpdater(ratingRepo)
	handler := session.NewHandler(games, registry, selector, ratings, time.Duration(cfg.GracePeriodSec)*time.Second)
	ws := transport.NewServer(handler)

	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http_serve_error", zap.Error(err))
		}
	}()

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics_serve_error", zap.Error(err))
		}
	}()

	log.Info("server_ready",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("server_shutdown_begin")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = metricsSrv.Shutdown(ctx)
	ws.Close()
	log.Info("server_shutdown_done")
}

// openStore prefers Redis when configured, retrying the initial connect
// with exponential backoff, and falls back to the in-memory store.
func openStore(cfg *config.AppConfig) (game.Store, error) {
	if cfg.RedisURL == "" {
		obslog.L().Warn("store_memory_fallback", zap.String("reason", "REDIS_URL not set"))
		return game.NewMemoryStore(), nil
	}
	ttl := time.Duration(cfg.SessionTTLSec) * time.Second
	var store *game.RedisStore
	op := func() error {
		s, err := game.NewRedisStore(cfg.RedisURL, ttl)
		if err != nil {
			return err
		}
		store = s
		return nil
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return store, nil
}

func openArchive(cfg *config.AppConfig) (*game.Archive, error) {
	var archive *game.Archive
	op := func() error {
		a, err := game.NewArchive(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		archive = a
		return nil
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return archive, nil
}
