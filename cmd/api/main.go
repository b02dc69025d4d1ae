package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/quiet-hours/internal/app"
	"github.com/jwalitptl/quiet-hours/internal/config"
	blockHandler "github.com/jwalitptl/quiet-hours/internal/handler/block"
	cronHandler "github.com/jwalitptl/quiet-hours/internal/handler/cron"
	healthHandler "github.com/jwalitptl/quiet-hours/internal/handler/health"
	promHandler "github.com/jwalitptl/quiet-hours/internal/handler/prometheus"
	reminderHandler "github.com/jwalitptl/quiet-hours/internal/handler/reminder"
	"github.com/jwalitptl/quiet-hours/internal/middleware"
	"github.com/jwalitptl/quiet-hours/internal/router"
	"github.com/jwalitptl/quiet-hours/internal/service/reminder"
	"github.com/jwalitptl/quiet-hours/pkg/auth"
	"github.com/jwalitptl/quiet-hours/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	if cfg.Auth.JWTSecret == "" {
		log.Fatal(errors.New("auth.jwt_secret is empty"), "Invalid configuration")
	}
	if cfg.Cron.Secret == "" {
		log.Warn("cron.secret is empty, the trigger endpoint will reject every request")
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal(err, "Failed to initialize")
	}
	defer a.Close()

	// Initialize services
	reminderSvc := reminder.NewService(a.Store, cfg.Reminder.LeadTime, log)
	jwtSvc := auth.NewJWTService(cfg.Auth.JWTSecret)

	// Setup router
	gin.SetMode(gin.ReleaseMode)
	r := router.NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		router.Routes{
			Health:     healthHandler.NewHandler(a.Store),
			Prometheus: promHandler.New(a.Registry).Handler(),
			Cron:       cronHandler.NewHandler(a.Dispatcher, log),
			Protected: []router.Handler{
				reminderHandler.NewHandler(reminderSvc, a.Store.Blocks(), a.Metrics),
				blockHandler.NewHandler(a.Store.Blocks(), reminderSvc, a.Metrics),
			},
		},
		log,
		a.Metrics,
		router.RouterConfig{
			RateLimit:  rate.Limit(cfg.Server.RequestsPerSecond),
			RateBurst:  cfg.Server.Burst,
			CronSecret: cfg.Cron.Secret,
		},
	)
	r.Setup()

	timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		// a trigger tick can take up to the delivery timeout per batch
		WriteTimeout: timeout + cfg.Dispatcher.DeliveryTimeout,
	}

	// Start server
	go func() {
		log.Info("Starting server", "port", cfg.Server.Port, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	log.Info("Server exited properly")
}
