// Command shellserver runs the offline caching proxy in front of an
// application shell. With no upstream configured it hosts the embedded
// shell origin on a loopback listener and fronts that, which is enough
// to exercise install, activation and offline fallback end to end.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/spdeepak/shellcache"
	"github.com/spdeepak/shellcache/cache"
	"github.com/spdeepak/shellcache/shell"
)

type config struct {
	Addr         string `env:"SHELLCACHE_ADDR" envDefault:":8080"`
	Upstream     string `env:"SHELLCACHE_UPSTREAM"`
	CachePath    string `env:"SHELLCACHE_DB" envDefault:"shellcache.db"`
	CacheVersion string `env:"SHELLCACHE_VERSION" envDefault:"shell-v1"`
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		logger.Fatal("failed to parse environment", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	upstream := cfg.Upstream
	if upstream == "" {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			logger.Fatal("failed to start shell origin", zap.Error(err))
		}
		origin := &http.Server{Handler: shell.NewHandler(logger).Routes()}
		go func() {
			if err := origin.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("shell origin stopped", zap.Error(err))
			}
		}()
		defer origin.Close()
		upstream = "http://" + listener.Addr().String()
	}

	upstreamURL, err := url.Parse(upstream)
	if err != nil {
		logger.Fatal("invalid upstream", zap.String("upstream", upstream), zap.Error(err))
	}

	store, err := cache.OpenBolt(cfg.CachePath)
	if err != nil {
		logger.Fatal("failed to open cache store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	proxy := shellcache.New(store, http.DefaultClient, &shellcache.Config{
		Version:  cfg.CacheVersion,
		Precache: shell.PrecacheManifest(),
		Upstream: upstreamURL,
	}, logger)

	if err := proxy.Install(ctx); err != nil {
		logger.Fatal("install failed", zap.Error(err))
	}
	if err := proxy.Activate(ctx); err != nil {
		logger.Fatal("activate failed", zap.Error(err))
	}

	router := chi.NewRouter()
	router.Handle("/*", proxy)

	server := &http.Server{Addr: cfg.Addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("shellserver listening",
		zap.String("addr", cfg.Addr),
		zap.String("upstream", upstream),
		zap.String("cache_version", cfg.CacheVersion))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}
