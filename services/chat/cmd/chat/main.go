package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"maatje/internal/ratelimit"
	"maatje/internal/usertoken"
	"maatje/internal/util"
	"maatje/pkg/assistant"
	"maatje/services/chat/internal/app"
	"maatje/services/chat/internal/config"
	"maatje/services/chat/internal/server"
)

func main() {
	// Local development keeps secrets in .env; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var threads assistant.ThreadStore
	if cfg.RedisAddr != "" {
		threads = assistant.NewRedisThreadStore(cfg.RedisAddr, cfg.RedisPassword, "maatje:threads", 24*time.Hour)
	}

	appCore, err := app.New(app.Config{
		AssistantAPIKey:  cfg.OpenAIAPIKey,
		AssistantID:      cfg.AssistantID,
		AssistantBaseURL: cfg.AssistantBaseURL,
		DatabaseURL:      cfg.DatabaseURL,
		Threads:          threads,
		PollInterval:     time.Duration(cfg.PollIntervalSeconds) * time.Second,
		WaitBudget:       time.Duration(cfg.WaitBudgetSeconds) * time.Second,
		Logger:           logger,
	})
	if err != nil {
		logger.Error("failed to init app", "err", err)
		os.Exit(1)
	}
	defer appCore.Close()

	// Startup credentials check, informational only.
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if info, err := appCore.CheckAssistant(checkCtx); err != nil {
		logger.Error("assistant unavailable, serving degraded", "err", err)
	} else {
		logger.Info("assistant loaded", "name", info.Name)
	}
	cancel()

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RateLimit > 0 && cfg.RedisAddr != "" {
		window := time.Duration(cfg.RateLimitWindow) * time.Second
		if window <= 0 {
			window = time.Minute
		}
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "maatje:ratelimit", cfg.RateLimit, window)
		if err != nil {
			logger.Error("failed to init rate limiter", "err", err)
			os.Exit(1)
		}
	}

	var verifier *usertoken.Verifier
	if cfg.AuthJWKSURL != "" {
		verifier, err = usertoken.NewVerifier(usertoken.Config{
			JWKSURL:    cfg.AuthJWKSURL,
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
			HTTPClient: &http.Client{Timeout: 5 * time.Second},
		})
		if err != nil {
			// Identity errors never block the chat flow; run without it.
			logger.Error("failed to init token verifier, identities stay unverified", "err", err)
			verifier = nil
		}
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Error("invalid trusted proxies", "err", err)
		os.Exit(1)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		TokenVerifier:  verifier,
		Limiter:        limiter,
		TrustedProxies: trusted,
		Logger:         logger,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		// The chat handler can legitimately hold the connection for the
		// full run wait budget.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("chat server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
