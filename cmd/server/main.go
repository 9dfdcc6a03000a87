package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/anonto42/nano-midea/memberhub/internal/push"
	"github.com/anonto42/nano-midea/memberhub/internal/router"
	"github.com/anonto42/nano-midea/memberhub/pkg/config"
	"github.com/anonto42/nano-midea/memberhub/pkg/firebase"
	"github.com/anonto42/nano-midea/memberhub/validators"
)

func main() {
	flag.Parse()
	defer glog.Flush()

	// Load configuration
	config.LoadEnv()
	cfg := config.Load()

	// Initialize database connections
	db, err := config.InitDB(cfg)
	if err != nil {
		glog.Fatalf("Failed to initialize databases: %v", err)
	}
	defer db.CloseDB() // Ensure database connections are closed when main exits

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := router.Deps{
		Postgres:  db.Postgres,
		Mongo:     db.Mongo.Database(cfg.MongoDB),
		JWTSecret: cfg.JWTSecret,
	}

	// Firebase is optional; without credentials the API verifies HMAC JWTs
	if cfg.FirebaseCredentialsPath != "" {
		firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			glog.Fatalf("Failed to initialize Firebase: %v", err)
		}
		deps.Firebase = firebaseApp.AuthClient
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	hubSettings := push.DefaultSettings()
	hubSettings.SendBuffer = cfg.PushBuffer
	deps.Hub = push.NewHub(hubSettings, push.NewMetrics(reg))

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()

	// Setup global middleware
	config.SetupMiddleware(e)

	// Setup routes and dependencies
	if err := router.SetupRoutes(e, deps); err != nil {
		glog.Fatalf("Failed to set up routes: %v", err)
	}

	metrics := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		glog.Infof("API listening on :%s (%s)\n", cfg.Port, cfg.Env)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		glog.Infof("Metrics listening on :%s\n", cfg.MetricsPort)
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(e.Shutdown(shutdownCtx), metrics.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		glog.Errorf("Server stopped: %v", err)
	}
}
