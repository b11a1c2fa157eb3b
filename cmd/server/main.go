package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Roulette/internal/adapters/http"
	wsignal "github.com/dkeye/Roulette/internal/adapters/signal"
	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/app/orch"
	"github.com/dkeye/Roulette/internal/app/sfu"
	"github.com/dkeye/Roulette/internal/config"
	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/store/memory"
	"github.com/dkeye/Roulette/internal/store/sqlite"
)

func openStore(ctx context.Context, cfg *config.Config) (core.RoomStore, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return memory.New(), nil
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.SetupLogging(cfg.LogLevel)

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open room store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("close room store")
		}
	}()

	lifecycle := app.NewLifecycle(store)
	matchmaker := app.NewMatchmaker(store, lifecycle, cfg.Retries)
	tokens := app.NewTokenIssuer(cfg.Secret, cfg.TokenTTL)

	o := &orch.Orchestrator{
		Registry:  app.NewRegistry(),
		Channels:  app.NewChannelManager(),
		Policy:    app.SimplePolicy{},
		Relays:    sfu.NewRelayManager(),
		Lifecycle: lifecycle,
	}

	ws := &wsignal.SignalWSController{
		Orch:       o,
		Tokens:     tokens,
		Limiter:    wsignal.NewRoomRateLimiter(cfg.RateLimit.Messages, cfg.RateLimit.Interval),
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		ICEServers: cfg.ICEServers,
	}
	rooms := &router.RoomHandlers{
		Matchmaker: matchmaker,
		Lifecycle:  lifecycle,
		Tokens:     tokens,
		Orch:       o,
	}

	r := router.SetupRouter(ctx, cfg, rooms, ws)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Roulette server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
