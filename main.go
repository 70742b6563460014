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

	"github.com/joho/godotenv"

	"phalanx/api"
	"phalanx/auth"
	"phalanx/config"
	"phalanx/history"
	"phalanx/loghandler"
	"phalanx/match"
	"phalanx/queue"
	"phalanx/registry"
	"phalanx/transport"
)

func main() {
	slog.SetDefault(slog.New(loghandler.NewCompactHandler(os.Stdout, slog.LevelInfo)))

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found; using environment variables", "tag", "main")
	}

	cfg := config.Load()

	mode, err := cfg.ResolveMode()
	if err != nil {
		slog.Error("invalid game mode configuration", "tag", "main", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded", "tag", "main", "gameMode", mode.Name, "tickRate", cfg.TickRate, "port", cfg.Port)

	if cfg.Auth.Enabled {
		slog.Info("auth configured", "tag", "main", "jwksUrl", cfg.Auth.JWKSURL)
	} else {
		slog.Info("auth disabled; connections are anonymous", "tag", "main")
	}

	validator, err := auth.FromConfig(cfg.Auth)
	if err != nil {
		slog.Error("failed to build auth validator", "tag", "main", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	historyStore, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to history database", "tag", "main", "error", err)
		os.Exit(1)
	}
	if historyStore != nil {
		defer historyStore.Close()
	}

	bus := match.NewEventBus(slog.Default())
	reg := registry.New(cfg, bus, slog.Default())

	if historyStore != nil {
		bus.Subscribe(match.EventMatchEnded, func(e match.Event) {
			recordOutcome(ctx, historyStore, e)
		})
	}

	q := queue.New(mode, cfg, func(formed queue.FormedMatch) { reg.Create(formed) }, slog.Default())
	go q.Run()
	defer q.Stop()

	hub := transport.NewHub(cfg, q, reg, validator, slog.Default())
	go hub.Run(ctx)

	apiHandler := api.NewHandler(reg, historyStore, cfg.CORS, slog.Default())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/healthz", apiHandler.Healthz)
	mux.HandleFunc("/api/matches", apiHandler.Matches)
	mux.HandleFunc("/api/history", apiHandler.History)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}

	go func() {
		slog.Info("phalanx listening", "tag", "main", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "tag", "main", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received", "tag", "main")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := reg.Shutdown(shutdownCtx); err != nil {
		slog.Warn("registry shutdown did not complete cleanly", "tag", "main", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown did not complete cleanly", "tag", "main", "error", err)
	}
}

// recordOutcome persists a completed match's outcome, best-effort: a
// history write failure never affects the match's own lifecycle since it
// has already ended by the time this listener runs.
func recordOutcome(ctx context.Context, store history.Store, e match.Event) {
	m, ok := e.Payload.(*match.Match)
	if !ok {
		return
	}
	snap := m.Snapshot()
	startedAt := m.StartedAt()
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	outcome := history.Outcome{
		MatchID:   e.MatchID,
		GameMode:  snap.GameMode,
		PlayerIDs: m.PlayerIDs(),
		StartedAt: startedAt,
		EndedAt:   time.Now(),
		EndReason: m.EndReason(),
	}
	if err := store.RecordOutcome(ctx, outcome); err != nil {
		slog.Error("failed to record match outcome", "tag", "main", "matchId", e.MatchID, "error", err)
	}
}
