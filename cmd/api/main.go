package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/dinutri/internal/auth"
	"github.com/geocoder89/dinutri/internal/config"
	"github.com/geocoder89/dinutri/internal/db"
	httpx "github.com/geocoder89/dinutri/internal/http"
	"github.com/geocoder89/dinutri/internal/http/middlewares"
	"github.com/geocoder89/dinutri/internal/notifications"
	"github.com/geocoder89/dinutri/internal/observability"
	"github.com/geocoder89/dinutri/internal/redisclient"
	"github.com/geocoder89/dinutri/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const version = "1.0.0"

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: "dinutri-api",
		Version:     version,
		Env:         cfg.Env,
		Endpoint:    cfg.OTELEndpoint,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(reg)

	// never fails: an unreachable database leaves us on the memory store
	store := db.OpenStore(ctx, cfg, prom, log)

	seedCtx, cancelSeed := config.WithTimeout(ctx, 10*time.Second)
	created, err := db.EnsureDefaultNutritionist(seedCtx, store, cfg)
	cancelSeed()
	if err != nil {
		log.Error("seed nutritionist failed", "err", err)
	} else if created {
		log.Info("seeded default nutritionist", "email", cfg.SeedEmail)
	}

	var limiter middlewares.WindowCounter
	var rdb *redisclient.Client
	if cfg.RedisAddr != "" {
		rdb = redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		pingCtx, cancel := config.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx); err != nil {
			log.Warn("redis unreachable, rate limits fail open until it recovers", "addr", cfg.RedisAddr, "err", err)
		}
		cancel()
		limiter = rdb
	}

	tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTTTL())
	notifier := notifications.NewProtectedNotifier(
		notifications.NewLogNotifier(log),
		notifications.ProtectedNotifierConfig{},
	)

	router := httpx.NewRouter(httpx.Deps{
		Log:      log,
		Cfg:      cfg,
		Version:  version,
		Store:    store,
		Prom:     prom,
		Gatherer: reg,
		Limiter:  limiter,

		Auth:          service.NewAuthService(store, tokens, log),
		Patients:      service.NewPatientService(store, log),
		Prescriptions: service.NewPrescriptionService(store, store, cfg.LatestCacheTTL(), prom, log),
		Invites: service.NewInviteService(store, notifier, service.InviteServiceConfig{
			DefaultTTL: cfg.InviteDefaultTTL(),
			PublicURL:  cfg.PublicURL,
		}, prom, log),
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router.Engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// start server using a concurrent go-routine driven anonymous function.

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", store.Driver())
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	router.Health.MarkShuttingDown()

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		if err := store.Close(ctx); err != nil {
			log.Error("store close failed", "err", err)
		}

		if rdb != nil {
			_ = rdb.Close()
		}

		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Warn("shutdown timed out")
	}
}
