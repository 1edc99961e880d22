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

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"realtime-core/auth"
	"realtime-core/infrastructure/ws"
	"realtime-core/internal"
	"realtime-core/moderation"
	"realtime-core/ratelimit"
	"realtime-core/repositories"
	"realtime-core/runtime"
	"realtime-core/services"
)

// Exit codes to provide meaningful status to the operating system or
// service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// main is a thin wrapper: run() owns initialization and shutdown
	// so deferred cleanup executes before the process exits.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := internal.NewLogger(config.LogLevel)

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLogger(nil))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("closing BadgerDB")
		_ = db.Close()
	}()

	var censor *moderation.Censor
	if config.CensoredWordsPath != "" {
		mask, err := internal.CharacterRune(config.CharReplacement)
		if err != nil {
			return exitConfig, err
		}
		words, err := moderation.LoadWordList(config.CensoredWordsPath)
		if err != nil {
			return exitConfig, fmt.Errorf("loading censored words: %w", err)
		}
		if censor, err = moderation.NewCensor(words, mask); err != nil {
			return exitConfig, fmt.Errorf("building censor: %w", err)
		}
		logger.Info("moderation enabled", "words", len(words))
	}

	users := repositories.NewUserRepository(db, logger)
	messages := repositories.NewMessageRepository(db, logger)
	calls := repositories.NewCallRepository(db, logger)

	registry := runtime.NewRegistry()
	notifier := runtime.NewNotifier(logger, registry)
	verifier := auth.NewTokenVerifier(config.TokenSecret)
	gatekeeper := runtime.NewGatekeeper(logger, verifier, users, registry, notifier)

	guard := ratelimit.NewGuard(config.RateWindow, config.RateCap)
	admission := ratelimit.NewMapLimiter(config.HandshakeRPS, config.HandshakeBurst, config.HandshakeTTL)

	messageService := services.NewMessageService(logger, registry, guard, messages, notifier, censor)
	callService := services.NewCallService(logger, registry, calls)
	gatekeeper.AddDisconnectObserver(callService)

	router := ws.NewRouter(logger)
	ws.RegisterHandlers(router, registry, messageService, callService, config.HistoryLimit)

	server := ws.NewServer(logger, gatekeeper, router, admission,
		config.ConnectionBufferSize, config.DeliveryTimeout)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: server.Routes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Periodically reclaim idle rate-guard counters.
	go func() {
		ticker := time.NewTicker(config.RateSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := guard.Sweep(); removed > 0 {
					logger.Debug("rate guard sweep", "removed", removed)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitRuntime, err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitRuntime, err
		}
	}

	return exitOK, nil
}
