package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/carbonmrv/pkg/config"
	"github.com/diagnosis/carbonmrv/pkg/database"
	"github.com/diagnosis/carbonmrv/pkg/events"
	"github.com/diagnosis/carbonmrv/pkg/logger"
	mw "github.com/diagnosis/carbonmrv/pkg/middleware"
	"github.com/diagnosis/carbonmrv/services/auth/internal/handlers"
	"github.com/diagnosis/carbonmrv/services/auth/internal/mailer"
	"github.com/diagnosis/carbonmrv/services/auth/internal/repository"
	"github.com/diagnosis/carbonmrv/services/auth/internal/service"
)

func main() {
	if err := run(); err != nil {
		logger.Error("Auth service error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if cfg.Auth.EchoOTP && cfg.IsProduction() {
		logger.Warn("AUTH_ECHO_OTP is enabled in production; one-time codes would be returned to clients")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.Pinger{}

	// Storage
	store := repository.NewMemoryStore()
	checks["store"] = handlers.PingFunc(func(context.Context) error { return nil })

	if cfg.Storage.Driver == config.DriverPostgres {
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(cfg.Database.URL); err != nil {
				return err
			}
		}
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = repository.NewPostgresStore(pool)
		checks["store"] = pool
	}

	if cfg.Storage.SessionDriver == config.DriverRedis {
		client, err := database.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		store = store.WithRedis(client)
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	// Event bus
	var eventBus events.Publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		bus, err := events.NewNATSEventBus(cfg.NATS.URL, cfg.App.Name)
		if err != nil {
			return err
		}
		eventBus = bus
		checks["nats"] = handlers.PingFunc(func(context.Context) error { return bus.Ping() })
	}
	defer eventBus.Close()

	mail, err := mailer.New(cfg.Email)
	if err != nil {
		return err
	}

	// Services
	clock := service.RealClock{}
	sessions := service.NewSessionService(store, eventBus, clock, cfg)
	adminService := service.NewAdminService(store, sessions, eventBus, clock, cfg)
	svc := handlers.Services{
		OTP:      service.NewOTPService(store, sessions, mail, eventBus, clock, cfg),
		Sessions: sessions,
		Admin:    adminService,
		Profile:  service.NewProfileService(store, sessions, eventBus, clock),
		Farmers:  service.NewFarmerAuthService(store, sessions, eventBus, clock, cfg),
	}

	admin, err := adminService.EnsureBootstrapAdmin(ctx)
	if err != nil {
		return err
	}
	logger.Info("Admin account ready", "admin_id", admin.ID, "email", admin.Email)

	limiter := mw.NewRateLimiter(cfg.RateLimit.OTPPerMinute, cfg.RateLimit.Burst, cfg.RateLimit.TTL)
	h := handlers.New(svc, limiter, checks, cfg)

	// Router
	r := chi.NewRouter()
	r.Use(mw.TrustProxy(cfg.Server.TrustProxy))
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName(cfg.App.Name))
	r.Use(mw.Logging)
	r.Use(chimw.Recoverer)
	r.Use(mw.CORS(cfg.CORS.AllowedOrigins))
	r.Use(mw.Health)
	r.Use(mw.Metrics)

	r.Handle("/metrics", mw.MetricsHandler())
	r.Mount("/api", h.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting auth service",
			"port", cfg.Server.Port,
			"env", cfg.App.Env,
			"store", cfg.Storage.Driver,
			"sessions", cfg.Storage.SessionDriver,
			"email", cfg.Email.Provider,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down auth service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Auth service stopped", "at", time.Now().UTC())
	return nil
}
