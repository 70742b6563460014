// Package api implements Phalanx's operational HTTP surface: liveness, a
// registry snapshot, and recent match outcomes. There is no per-user game
// record or rating system here — a game-agnostic engine has no shared
// notion of "win" to rate — so the surface stays ops-facing and
// unauthenticated rather than exposing per-user history or a leaderboard.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"phalanx/config"
	"phalanx/history"
	"phalanx/registry"
)

// Handler holds the dependencies the HTTP surface needs.
type Handler struct {
	Registry     *registry.Registry
	HistoryStore history.Store
	cors         config.CORSConfig
	log          *slog.Logger
}

// NewHandler wires a Handler. historyStore may be nil (treated as "no
// persistence configured", the same convention the history package uses).
func NewHandler(reg *registry.Registry, historyStore history.Store, cors config.CORSConfig, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Registry: reg, HistoryStore: historyStore, cors: cors, log: log.With("tag", "api")}
}

// applyCORS sets the response's CORS headers from the configured origin and
// credentials policy, the same policy transport.Hub applies to the
// websocket upgrade. It reports whether the request was a preflight that
// the caller should stop handling.
func (h *Handler) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	origin := h.cors.Origin
	if origin == "" {
		origin = "*"
	}
	if origin != "*" && origin != r.Header.Get("Origin") {
		origin = "null"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if h.cors.Credentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

// Healthz answers GET /healthz with a liveness check.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.applyCORS(w, r) {
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// matchSummary is one row of GET /api/matches.
type matchSummary struct {
	MatchID     string `json:"matchId"`
	GameMode    string `json:"gameMode"`
	State       string `json:"state"`
	CurrentTick uint32 `json:"currentTick"`
	PlayerCount int    `json:"playerCount"`
}

// Matches answers GET /api/matches with a snapshot of every live match.
func (h *Handler) Matches(w http.ResponseWriter, r *http.Request) {
	if h.applyCORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snaps := h.Registry.Snapshots()
	out := make([]matchSummary, len(snaps))
	for i, s := range snaps {
		out[i] = matchSummary{
			MatchID:     s.MatchID,
			GameMode:    s.GameMode,
			State:       s.State,
			CurrentTick: s.CurrentTick,
			PlayerCount: s.PlayerCount,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		h.log.Error("failed to encode matches response", "error", err)
	}
}

// History answers GET /api/history with recent match outcomes, or an
// empty list when no history store is configured.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.applyCORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records := []history.Record{}
	if h.HistoryStore != nil {
		var err error
		records, err = h.HistoryStore.ListRecent(r.Context(), limit)
		if err != nil {
			h.log.Error("failed to load history", "error", err)
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		h.log.Error("failed to encode history response", "error", err)
	}
}
