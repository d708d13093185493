package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hjin-me/wechatmp/internal/api"
	"github.com/hjin-me/wechatmp/internal/config"
	"github.com/hjin-me/wechatmp/internal/token"
	"github.com/hjin-me/wechatmp/internal/wechat"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	aesKey, err := wechat.DecodeAESKey(cfg.AESKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid WECHAT_AES_KEY")
	}

	// Initialize the token store: redis when configured, in-process
	// otherwise (single-instance development mode)
	var tokens token.Store
	var redisStore *token.RedisStore
	if cfg.RedisURL != "" {
		redisStore, err = token.NewRedisStore(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		tokens = redisStore
		logger.Info().Msg("connected to Redis")
	} else {
		tokens = token.NewMemoryStore()
		logger.Info().Msg("using in-process token cache")
	}

	resolver := wechat.NewConstResolver(wechat.Config{
		EchoToken:        cfg.EchoToken,
		AESKey:           aesKey,
		AppID:            cfg.AppID,
		AppSecret:        cfg.AppSecret,
		OAuthRedirectURL: cfg.OAuthRedirectURL,
	})

	wc := wechat.New(resolver, tokens, wechat.NewAPIIssuer(), logger)

	// Create router
	router := api.NewRouter(logger, wc, redisStore)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting wechatmp server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
