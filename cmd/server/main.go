package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	jwttoken "trustrails/internal/jwt_token"
	"trustrails/internal/platform/config"
	"trustrails/internal/platform/httpserver"
	"trustrails/internal/platform/logger"
	platformmetrics "trustrails/internal/platform/metrics"
	"trustrails/internal/rollover/app"
	"trustrails/internal/rollover/handler"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal/rollover.
func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".")
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rollover, err := app.Build(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer rollover.Close()

	jwt := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer)
	h := handler.New(rollover.Service, jwttoken.NewJWTServiceAdapter(jwt), log,
		handler.WithMetrics(platformmetrics.New(reg)),
		handler.WithTimeout(cfg.Reconciliation.LockTTL),
	)

	r := chi.NewRouter()
	r.Get("/health", healthHandler(rollover))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	h.Register(r)

	log.InfoContext(ctx, "starting trustrails",
		"addr", cfg.Server.Addr,
		"contract_version", cfg.Contract.Version,
		"postgres", cfg.Database.URL != "",
		"redis", cfg.Redis.URL != "",
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(ctx, httpserver.New(cfg.Server.Addr, r), cfg.Server.ShutdownTimeout, log)
	})
	g.Go(func() error {
		return rollover.RunBackground(ctx)
	})
	return g.Wait()
}

func healthHandler(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		checks := make(map[string]string)
		for name, err := range a.Health(r.Context()) {
			if err != nil {
				status = http.StatusServiceUnavailable
				checks[name] = err.Error()
				continue
			}
			checks[name] = "ok"
		}
		body := map[string]any{"status": "ok", "checks": checks}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
