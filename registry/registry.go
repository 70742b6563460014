// Package registry owns the set of live matches — the only process-wide
// mutable state besides the matchmaking queue. It creates matches from
// formed queue rosters, routes inbound per-match events to the right Match
// by id, and tears every match down on shutdown.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"phalanx/config"
	"phalanx/match"
	"phalanx/queue"
)

// Registry tracks running matches and the player->match binding used to
// route reconnects.
type Registry struct {
	cfg *config.Config
	bus *match.EventBus
	log *slog.Logger

	mu         sync.RWMutex
	matches    map[string]*match.Match
	playerToID map[string]string // playerId -> matchId, for routing a bare playerId-scoped event
}

// New creates an empty registry. bus is shared by every match it creates.
func New(cfg *config.Config, bus *match.EventBus, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		cfg:        cfg,
		bus:        bus,
		log:        log.With("tag", "registry"),
		matches:    make(map[string]*match.Match),
		playerToID: make(map[string]string),
	}
}

// Create builds a Match from a formed queue roster, registers it, binds the
// formed connections to their slots, and starts it running. It is the
// registry's OnFormed callback for a queue.Queue.
func (r *Registry) Create(formed queue.FormedMatch) *match.Match {
	m := match.New(formed.MatchID, formed.Mode, formed.Roster, formed.Conns, formed.Seed, r.cfg, r.bus, r.log)

	r.mu.Lock()
	r.matches[formed.MatchID] = m
	for _, ros := range formed.Roster {
		r.playerToID[ros.PlayerID] = formed.MatchID
	}
	r.mu.Unlock()

	m.OnEnded = r.remove

	go m.Run()
	r.log.Info("match created", "matchId", formed.MatchID, "gameMode", formed.Mode.Name, "players", len(formed.Roster))
	return m
}

func (r *Registry) remove(m *match.Match) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.matches, m.ID)
	for playerID, mid := range r.playerToID {
		if mid == m.ID {
			delete(r.playerToID, playerID)
		}
	}
	r.log.Info("match removed", "matchId", m.ID, "reason", m.EndReason())
}

// Get returns the match with the given id, if it is still registered.
func (r *Registry) Get(matchID string) (*match.Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[matchID]
	return m, ok
}

// MatchForPlayer returns the id of the match a player is currently bound
// to, if any — used to route a bare disconnect notification.
func (r *Registry) MatchForPlayer(playerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.playerToID[playerID]
	return id, ok
}

// Snapshots returns a point-in-time view of every registered match, for the
// operational HTTP surface.
func (r *Registry) Snapshots() []match.Snapshot {
	r.mu.RLock()
	matches := make([]*match.Match, 0, len(r.matches))
	for _, m := range r.matches {
		matches = append(matches, m)
	}
	r.mu.RUnlock()

	out := make([]match.Snapshot, len(matches))
	for i, m := range matches {
		out[i] = m.Snapshot()
	}
	return out
}

// Shutdown stops every registered match concurrently, each with reason
// EndServerShutdown, and waits for all of their Run loops to exit or for ctx
// to be cancelled.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	matches := make([]*match.Match, 0, len(r.matches))
	for _, m := range r.matches {
		matches = append(matches, m)
	}
	r.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range matches {
		m := m
		g.Go(func() error {
			m.Stop(match.EndServerShutdown)
			select {
			case <-m.Done():
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	return g.Wait()
}
