package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierhq/atelier/internal/app/migrate"
	"github.com/atelierhq/atelier/internal/bridge"
	"github.com/atelierhq/atelier/internal/docker"
	httpx "github.com/atelierhq/atelier/internal/http"
	"github.com/atelierhq/atelier/internal/netport"
	"github.com/atelierhq/atelier/internal/repository/postgres"
	"github.com/atelierhq/atelier/internal/route"
	"github.com/atelierhq/atelier/internal/service/lifecycle"
	"github.com/atelierhq/atelier/internal/subdomain"
	"github.com/atelierhq/atelier/internal/ws"
	"github.com/atelierhq/atelier/pkg/config"
	"github.com/atelierhq/atelier/pkg/logger"
)

func main() {
	cfg := config.LoadOrchestratorConfig()
	log := logger.New("orchestrator", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	runtime, err := docker.New(cfg.DockerHost)
	if err != nil {
		log.Error("failed to create container runtime client", "error", err)
		os.Exit(1)
	}
	defer runtime.Close()
	if err := runtime.Ping(ctx); err != nil {
		log.Error("container runtime ping failed", "error", err)
		os.Exit(1)
	}
	if _, err := runtime.EnsureProxyNetwork(ctx, cfg.ProxyNetwork); err != nil {
		log.Error("failed to ensure proxy network", "network", cfg.ProxyNetwork, "error", err)
		os.Exit(1)
	}

	allocator, err := netport.New(cfg.PortRangeMin, cfg.PortRangeMax)
	if err != nil {
		log.Error("invalid port range", "error", err)
		os.Exit(1)
	}

	generator := subdomain.NewGenerator(repo)
	publisher := route.NewPublisher(repo, cfg.ProxyEntryPoint, cfg.ProxyCertResolver, log)
	eventHub := ws.NewHub()
	bridgeMgr := bridge.NewManager(cfg.BridgeTimeout, log)
	defer bridgeMgr.Shutdown()

	lifecycleSvc := lifecycle.New(repo, repo, repo, runtime, allocator, generator, publisher, bridgeMgr, eventHub, log, cfg)
	if err := lifecycleSvc.RestoreLeases(ctx); err != nil {
		log.Error("failed to restore port leases", "error", err)
		os.Exit(1)
	}

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, lifecycleSvc, bridgeMgr, allocator, eventHub, limiter, cfg.InternalAPIToken, pool.Ping, runtime.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("orchestrator starting", "addr", cfg.Addr, "port_range_min", cfg.PortRangeMin, "port_range_max", cfg.PortRangeMax)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("orchestrator stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
