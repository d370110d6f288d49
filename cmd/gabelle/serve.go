package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/alecgard/gabelle/internal/api"
	"github.com/alecgard/gabelle/internal/auth"
	"github.com/alecgard/gabelle/internal/cache"
	"github.com/alecgard/gabelle/internal/config"
	"github.com/alecgard/gabelle/internal/crypto"
	"github.com/alecgard/gabelle/internal/metrics"
	"github.com/alecgard/gabelle/internal/ratelimit"
	"github.com/alecgard/gabelle/internal/usage"
	"github.com/alecgard/gabelle/internal/user"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Gabelle analytics server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	var cipher *crypto.Cipher
	if cfg.Encryption.Key != "" {
		cipher, err = crypto.NewCipher(cfg.Encryption.Key)
		if err != nil {
			return err
		}
	} else {
		slog.Warn("no encryption key configured, provider keys will be stored unencrypted")
	}

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		stat := pool.Stat()
		return stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns()
	})

	usageStore := usage.NewStore(pool)
	recorder := usage.NewRecorder(usageStore, cfg.Recorder.BatchSize, cfg.Recorder.FlushInterval)
	recorder.SetObserver(m)
	go recorder.Start(ctx)

	userStore := user.NewStore(pool, cipher)
	sessions := auth.NewSessionManager(pool, cfg.Session.Lifetime, cfg.Session.Secure)

	limiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)

	responseCache := cache.New(cfg.Cache.TTL, cfg.Cache.SweepInterval)
	go responseCache.Start(ctx)

	router := api.NewRouter(api.RouterDeps{
		Users:          userStore,
		UsageStore:     usageStore,
		Recorder:       recorder,
		Sessions:       sessions,
		Limiter:        limiter,
		Cache:          responseCache,
		Metrics:        m,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Ping:           pool.Ping,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Flush any buffered usage records before the pool closes.
	recorder.Stop()

	return srv.Shutdown(shutdownCtx)
}
