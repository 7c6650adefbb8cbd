package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/safecircle/safecircle-backend/internal/http/handlers"
	"github.com/safecircle/safecircle-backend/internal/platform/mailer"
	"github.com/safecircle/safecircle-backend/internal/platform/sms"
	"github.com/safecircle/safecircle-backend/internal/repo/postgres"
	"github.com/safecircle/safecircle-backend/internal/service"
	"github.com/safecircle/safecircle-backend/pkg/cache"
	"github.com/safecircle/safecircle-backend/pkg/config"
	"github.com/safecircle/safecircle-backend/pkg/database"
	"github.com/safecircle/safecircle-backend/pkg/events"
	"github.com/safecircle/safecircle-backend/pkg/logger"
	"github.com/safecircle/safecircle-backend/pkg/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment")
	}

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Redis and NATS are supporting infrastructure; the API stays up
	// without them, just without idempotency replay and events.
	var idemStore middleware.IdempotencyStore
	if store, err := cache.NewStore(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		logger.Warn("Redis unavailable, idempotency replay disabled", "error", err)
	} else {
		idemStore = store
		defer store.Close()
	}

	var bus events.Publisher
	if natsBus, err := events.NewNATSEventBus(cfg.NATS.URL); err != nil {
		logger.Warn("NATS unavailable, events disabled", "error", err)
	} else {
		bus = natsBus
		defer natsBus.Close()
	}

	userRepo := postgres.NewUserRepository(pool)
	otpRepo := postgres.NewOTPRepository(pool)
	circleRepo := postgres.NewCircleRepository(pool)
	journeyRepo := postgres.NewJourneyRepository(pool)
	webLinkRepo := postgres.NewWebLinkRepository(pool)
	messageLogRepo := postgres.NewMessageLogRepository(pool)
	rateRepo := postgres.NewRequestRateRepository(pool)

	var sender sms.Sender
	if cfg.SMS.DevMode {
		sender = sms.NewDevSender()
		logger.Info("SMS dev mode enabled, messages go to stdout")
	} else {
		sender = sms.NewTermiiClient(cfg.SMS.BaseURL, cfg.SMS.APIKey, cfg.SMS.SenderID)
	}

	var mail mailer.Service
	if cfg.Email.DevMode {
		mail = mailer.NewDevMailer()
	} else {
		mail = mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromEmail)
	}

	issuer := service.NewOTPIssuer(userRepo, otpRepo, sender, bus, cfg)
	verifier := service.NewOTPVerifier(userRepo, otpRepo, bus, cfg)
	minter := service.NewWebLinkMinter(webLinkRepo)
	alerts := service.NewAlertService(userRepo, journeyRepo, circleRepo, messageLogRepo, minter, sender, mail, bus, cfg)

	router := handlers.NewRouter(handlers.RouterDeps{
		Auth:      handlers.NewAuthHandler(issuer, verifier),
		Circle:    handlers.NewCircleHandler(circleRepo, alerts),
		Journey:   handlers.NewJourneyHandler(journeyRepo, messageLogRepo, alerts, bus),
		WebAccess: handlers.NewWebAccessHandler(webLinkRepo, journeyRepo, cfg),
		RateRepo:  rateRepo,
		IdemStore: idemStore,
		Cfg:       cfg,
	})

	go sweep(ctx, otpRepo, rateRepo)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
}

// sweep expires stale OTP rows and prunes idle rate counters in the
// background so neither table accumulates dead rows.
func sweep(ctx context.Context, otpRepo postgres.OTPRepository, rateRepo postgres.RequestRateRepository) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := otpRepo.ExpireStale(ctx); err != nil {
				logger.Warn("OTP expiry sweep failed", "error", err)
			} else if n > 0 {
				logger.Info("Expired stale OTP rows", "count", n)
			}
			if _, err := rateRepo.Prune(ctx, 24*time.Hour); err != nil {
				logger.Warn("Rate counter prune failed", "error", err)
			}
		}
	}
}
