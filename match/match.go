package match

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"phalanx/config"
)

const (
	actionQueueSize = 256
)

// action is the single inbound message shape processed serially by a
// Match's owning goroutine: one goroutine per match, everything else
// communicates with it only through this queue. Every mutation of match
// state happens inside handle* methods invoked from Run.
type action struct {
	kind actionKind

	playerID string
	tick     uint32
	commands []RawCommand
	hash     string
	newConn  Conn
	reason   string
}

type actionKind int

const (
	actCountdownTick actionKind = iota
	actTick
	actSubmitCommands
	actStateHash
	actReconnectRequest
	actPlayerActivity
	actPlayerDisconnected
	actStop
)

// Match coordinates a single lockstep match end to end.
type Match struct {
	ID   string
	Mode config.GameMode
	Seed uint32

	cfg *config.Config
	log *slog.Logger
	bus *EventBus

	slots        []*PlayerSlot
	slotByID     map[string]*PlayerSlot
	buffer       *commandBuffer
	history      *broadcastHistory
	desync       *desyncOracle
	tickDuration time.Duration

	state               State
	currentTick         uint32
	endReason           string
	countdownRemaining  int
	startMonotonic      time.Time

	actions chan action
	done    chan struct{}
	stopCh  chan struct{} // closed once, stops the scheduler/countdown goroutines

	snapMu       sync.RWMutex
	snapState    State
	snapTick     uint32
	snapPlayers  int

	// OnEnded is invoked once, from the Match's own goroutine, right
	// before Run returns. Used by the registry to deregister the match.
	OnEnded func(m *Match)
}

// Roster is the (playerId, username, teamId) tuple the queue hands to NewMatch.
type Roster struct {
	PlayerID string
	Username string
	TeamID   int
}

// New creates a Match for the given mode and roster, binding each slot to
// its connection from conns (missing entries start disconnected). seed is
// chosen by the caller (the queue/registry), forwarded to every client
// unchanged.
func New(id string, mode config.GameMode, roster []Roster, conns map[string]Conn, seed uint32, cfg *config.Config, bus *EventBus, log *slog.Logger) *Match {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("tag", "match", "matchId", id)

	slots := make([]*PlayerSlot, 0, len(roster))
	slotByID := make(map[string]*PlayerSlot, len(roster))
	now := time.Now()
	for _, r := range roster {
		s := &PlayerSlot{
			PlayerID:              r.PlayerID,
			Username:              r.Username,
			TeamID:                r.TeamID,
			Conn:                  conns[r.PlayerID],
			LastActivityMonotonic: now,
			ActivityState:         ActivityActive,
		}
		slots = append(slots, s)
		slotByID[r.PlayerID] = s
	}

	tickMs, err := cfg.TickDuration()
	if err != nil {
		tickMs = 50
	}

	m := &Match{
		ID:                 id,
		Mode:               mode,
		Seed:               seed,
		cfg:                cfg,
		log:                log,
		bus:                bus,
		slots:              slots,
		slotByID:           slotByID,
		buffer:             newCommandBuffer(),
		history:            newBroadcastHistory(cfg.ReconnectHistoryTicks),
		desync:             newDesyncOracle(cfg.HashWindowTicks),
		tickDuration:       time.Duration(tickMs) * time.Millisecond,
		state:              StateCountdown,
		countdownRemaining: cfg.CountdownSeconds,
		actions:            make(chan action, actionQueueSize),
		done:               make(chan struct{}),
		stopCh:             make(chan struct{}),
	}
	m.updateSnapshot()
	return m
}

// Done returns a channel closed once the match's Run loop exits.
func (m *Match) Done() <-chan struct{} { return m.done }

// --- cross-goroutine read surface: a Match's own fields are single-writer,
// so reads from other goroutines go through this small mirrored snapshot. ---

// Snapshot is a stable, lock-protected view for ops/observability endpoints.
type Snapshot struct {
	MatchID     string
	GameMode    string
	State       string
	CurrentTick uint32
	PlayerCount int
}

func (m *Match) Snapshot() Snapshot {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return Snapshot{MatchID: m.ID, GameMode: m.Mode.Name, State: m.snapState.String(), CurrentTick: m.snapTick, PlayerCount: m.snapPlayers}
}

func (m *Match) updateSnapshot() {
	m.snapMu.Lock()
	m.snapState = m.state
	m.snapTick = m.currentTick
	count := 0
	for _, s := range m.slots {
		if s.Connected() {
			count++
		}
	}
	m.snapPlayers = count
	m.snapMu.Unlock()
}

// --- public thread-safe entry points; each enqueues an action and returns
// immediately. Once the match has ended or its queue is full the enqueue is
// dropped silently — equivalent to the call never having arrived. ---

func (m *Match) enqueue(a action) {
	select {
	case m.actions <- a:
	case <-m.done:
	default:
		// Queue saturated: drop rather than block the caller's goroutine.
		// A saturated per-match queue under normal load indicates the
		// scheduler is stalled; dropping here preserves liveness for
		// every other match sharing the process.
		m.log.Warn("action queue saturated, dropping", "tag", "match")
	}
}

// SubmitCommands enqueues a submit-commands event from playerID for tick.
func (m *Match) SubmitCommands(playerID string, tick uint32, commands []RawCommand) {
	m.enqueue(action{kind: actSubmitCommands, playerID: playerID, tick: tick, commands: commands})
}

// SubmitStateHash enqueues a state-hash event.
func (m *Match) SubmitStateHash(playerID string, tick uint32, hash string) {
	m.enqueue(action{kind: actStateHash, playerID: playerID, tick: tick, hash: hash})
}

// RequestReconnect enqueues a reconnect-match request binding newConn to
// playerID's existing slot, if valid.
func (m *Match) RequestReconnect(playerID string, newConn Conn) {
	m.enqueue(action{kind: actReconnectRequest, playerID: playerID, newConn: newConn})
}

// NotifyActivity enqueues a liveness ping for playerID — called for every
// inbound event, known or unknown.
func (m *Match) NotifyActivity(playerID string) {
	m.enqueue(action{kind: actPlayerActivity, playerID: playerID})
}

// NotifyDisconnected enqueues a transport-level disconnect for playerID.
func (m *Match) NotifyDisconnected(playerID string) {
	m.enqueue(action{kind: actPlayerDisconnected, playerID: playerID})
}

// Stop enqueues a forced termination (e.g. server shutdown).
func (m *Match) Stop(reason string) {
	m.enqueue(action{kind: actStop, reason: reason})
}

// --- the Run loop: the only place Match state is mutated. ---

// Run drives the match through countdown, running, and ended. It must run
// as its own goroutine; it returns once the match has ended.
func (m *Match) Run() {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("internal scheduler error", "tag", "match", "panic", r)
			m.endMatch(EndInternalError)
		}
		if m.OnEnded != nil {
			m.OnEnded(m)
		}
		close(m.done)
	}()

	m.bus.Emit(Event{Kind: EventMatchCreated, MatchID: m.ID, Payload: m})
	m.startCountdown()

	for a := range m.actions {
		switch a.kind {
		case actCountdownTick:
			m.handleCountdownTick()
		case actTick:
			m.handleTick()
		case actSubmitCommands:
			m.handleSubmitCommands(a.playerID, a.tick, a.commands)
		case actStateHash:
			m.handleStateHash(a.playerID, a.tick, a.hash)
		case actReconnectRequest:
			m.handleReconnect(a.playerID, a.newConn)
		case actPlayerActivity:
			m.handlePlayerActivity(a.playerID)
		case actPlayerDisconnected:
			m.handlePlayerDisconnected(a.playerID)
		case actStop:
			m.endMatch(a.reason)
		}
		m.updateSnapshot()
		if m.state == StateEnded {
			return
		}
	}
}

// --- FSM transitions ---

func (m *Match) startCountdown() {
	stopCh := m.stopCh
	go func() {
		t := time.NewTicker(1 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				select {
				case m.actions <- action{kind: actCountdownTick}:
				case <-m.done:
					return
				}
			case <-stopCh:
				return
			}
		}
	}()
}

func (m *Match) handleCountdownTick() {
	if m.state != StateCountdown {
		return
	}
	m.broadcast(mustMarshal(CountdownMsg{Type: "countdown", Seconds: m.countdownRemaining}))
	m.bus.Emit(Event{Kind: EventCountdown, MatchID: m.ID, Payload: m.countdownRemaining})
	if m.countdownRemaining <= 0 {
		m.enterRunning()
		return
	}
	m.countdownRemaining--
}

func (m *Match) enterRunning() {
	m.state = StateRunning
	m.startMonotonic = time.Now()

	players := make([]PlayerInfo, len(m.slots))
	for i, s := range m.slots {
		players[i] = PlayerInfo{PlayerID: s.PlayerID, Username: s.Username}
	}
	tickRate := m.cfg.TickRate
	for _, s := range m.slots {
		msg := GameStartMsg{Type: "game-start", MatchID: m.ID, Seed: m.Seed, TickRate: tickRate, Players: players, YourTeamID: s.TeamID}
		m.sendTo(s, mustMarshal(msg))
	}
	m.bus.Emit(Event{Kind: EventMatchStarted, MatchID: m.ID, Payload: m})
	m.startTicker()
}

func (m *Match) startTicker() {
	stop := m.stopCh
	go func() {
		t := time.NewTicker(m.tickDuration)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				select {
				case m.actions <- action{kind: actTick}:
				case <-m.done:
					return
				}
			case <-stop:
				return
			}
		}
	}()
}

// handleTick implements the fixed per-tick sequence: drain buffered
// commands, broadcast them with the tick sync, archive, then sweep
// activity and desync state.
func (m *Match) handleTick() {
	if m.state != StateRunning {
		return
	}
	tick := m.currentTick + 1

	ordered := sortedPlayerIDs(m.slots)
	commands := m.buffer.drain(tick, ordered)

	batch := mustMarshal(CommandsBatchMsg{Type: "commands-batch", Tick: tick, Commands: commands})
	m.broadcast(batch)
	tickSync := mustMarshal(TickSyncMsg{Type: "tick-sync", Tick: tick, ServerTimeMs: time.Now().UnixMilli()})
	m.broadcast(tickSync)

	m.history.append(tick, commands)

	m.currentTick = tick

	m.runActivitySweep()
	m.runDesyncSweep()
}

func (m *Match) runActivitySweep() {
	transitions := sweepActivity(m.slots, time.Now(), m.tickDuration, m.cfg.TimeoutTicks, m.cfg.DisconnectTicks)
	for _, t := range transitions {
		if t.Lagging {
			m.broadcastTo(t.Slot, mustMarshal(PlayerLaggingMsg{Type: "player-lagging", PlayerID: t.Slot.PlayerID, MsSinceLastMessage: t.MsSinceLastActive}))
			m.bus.Emit(Event{Kind: EventPlayerLagging, MatchID: m.ID, Payload: t.Slot.PlayerID})
		}
		if t.TimedOut {
			m.broadcast(mustMarshal(PlayerTimeoutMsg{Type: "player-timeout", PlayerID: t.Slot.PlayerID, MsSinceLastMessage: t.MsSinceLastActive}))
			m.bus.Emit(Event{Kind: EventPlayerTimeout, MatchID: m.ID, Payload: t.Slot.PlayerID})
			m.disconnectSlot(t.Slot)
		}
	}
}

// broadcastTo is a placeholder hook for per-player delivery of lagging
// events; there's no recipient restriction today, so it just broadcasts.
func (m *Match) broadcastTo(_ *PlayerSlot, data []byte) {
	m.broadcast(data)
}

func (m *Match) runDesyncSweep() {
	var live []string
	for _, s := range m.slots {
		if s.Connected() {
			live = append(live, s.PlayerID)
		}
	}
	for _, r := range m.desync.ready(live, m.currentTick) {
		if !r.Mismatch {
			continue
		}
		m.broadcast(mustMarshal(DesyncDetectedMsg{Type: "desync-detected", Tick: r.Tick, Hashes: r.Hashes}))
		m.bus.Emit(Event{Kind: EventDesyncDetected, MatchID: m.ID, Payload: r})
	}
}

// --- command buffer ---

func (m *Match) handleSubmitCommands(playerID string, tick uint32, commands []RawCommand) {
	slot, ok := m.slotByID[playerID]
	if !ok {
		return // wrong-match: caller shouldn't route here without a slot, nothing to ack on
	}
	ack := SubmitCommandsAckMsg{Type: "submit-commands-ack", Tick: tick}
	switch {
	case tick <= m.currentTick:
		ack.Reason = "late"
	case tick > m.currentTick+uint32(m.cfg.MaxFutureTicks):
		ack.Reason = "too-far-future"
	case m.state != StateRunning:
		ack.Reason = "match-ended"
	default:
		m.buffer.store(tick, playerID, commands)
		ack.Accepted = true
	}
	if slot.Connected() {
		m.sendTo(slot, mustMarshal(ack))
	}
	if ack.Accepted {
		m.touchActivity(slot)
	}
}

func (m *Match) handleStateHash(playerID string, tick uint32, hash string) {
	if _, ok := m.slotByID[playerID]; !ok {
		return
	}
	m.desync.submit(tick, playerID, hash, m.currentTick)
	m.touchActivity(m.slotByID[playerID])
}

// --- activity tracking ---

func (m *Match) touchActivity(slot *PlayerSlot) {
	if slot == nil {
		return
	}
	if slot.ActivityState == ActivityDisconnected || slot.ActivityState == ActivityTimedOut {
		return
	}
	slot.LastActivityMonotonic = time.Now()
}

func (m *Match) handlePlayerActivity(playerID string) {
	m.touchActivity(m.slotByID[playerID])
}

// --- disconnect / reconnect ---

func (m *Match) handlePlayerDisconnected(playerID string) {
	slot, ok := m.slotByID[playerID]
	if !ok || slot.ActivityState == ActivityDisconnected {
		return
	}
	m.disconnectSlot(slot)
}

func (m *Match) disconnectSlot(slot *PlayerSlot) {
	slot.Conn = nil
	slot.ActivityState = ActivityDisconnected
	slot.DisconnectedAtTick = m.currentTick
	msg := mustMarshal(PlayerDisconnectedMsg{Type: "player-disconnected", PlayerID: slot.PlayerID, MatchID: m.ID})
	for _, other := range m.slots {
		if other != slot && other.Connected() {
			m.sendTo(other, msg)
		}
	}
	m.bus.Emit(Event{Kind: EventPlayerDisconnected, MatchID: m.ID, Payload: slot.PlayerID})

	allGone := true
	for _, s := range m.slots {
		if s.Connected() {
			allGone = false
			break
		}
	}
	if allGone {
		m.endMatch(EndAllDisconnected)
	}
}

func (m *Match) handleReconnect(playerID string, newConn Conn) {
	slot, ok := m.slotByID[playerID]
	if !ok {
		m.replyReconnect(newConn, false, "not a slot owner")
		return
	}
	if m.state == StateEnded {
		m.replyReconnect(newConn, false, "match not found")
		return
	}
	if slot.Connected() {
		m.replyReconnect(newConn, false, "already connected")
		return
	}
	if m.currentTick-slot.DisconnectedAtTick > uint32(m.cfg.ReconnectHistoryTicks) {
		m.replyReconnect(newConn, false, "state too old")
		return
	}

	slot.Conn = newConn
	slot.ActivityState = ActivityActive
	slot.LastActivityMonotonic = time.Now()

	m.replyReconnect(newConn, true, "")

	teamAssignment := make(map[string]int, len(m.slots))
	for _, s := range m.slots {
		teamAssignment[s.PlayerID] = s.TeamID
	}
	from := uint32(0)
	if m.currentTick > uint32(m.cfg.ReconnectHistoryTicks) {
		from = m.currentTick - uint32(m.cfg.ReconnectHistoryTicks)
	}
	entries := m.history.since(from, m.currentTick)
	hist := make([]TickCommands, len(entries))
	for i, e := range entries {
		hist[i] = TickCommands{Tick: e.Tick, Commands: e.Commands}
	}
	state := ReconnectStateMsg{
		Type:                "reconnect-state",
		MatchID:             m.ID,
		CurrentTick:         m.currentTick,
		Seed:                m.Seed,
		TeamAssignment:      teamAssignment,
		TickCommandsHistory: hist,
	}
	m.sendTo(slot, mustMarshal(state))

	reconnected := mustMarshal(PlayerReconnectedMsg{Type: "player-reconnected", PlayerID: playerID, MatchID: m.ID})
	for _, other := range m.slots {
		if other != slot && other.Connected() {
			m.sendTo(other, reconnected)
		}
	}
	m.bus.Emit(Event{Kind: EventPlayerReconnected, MatchID: m.ID, Payload: playerID})
}

func (m *Match) replyReconnect(conn Conn, success bool, reason string) {
	if conn == nil {
		return
	}
	data := mustMarshal(ReconnectStatusMsg{Type: "reconnect-status", Success: success, Reason: reason})
	if err := conn.Send(data); err != nil {
		m.log.Warn("reconnect-status send failed", "tag", "match", "error", err)
	}
}

// --- termination ---

func (m *Match) endMatch(reason string) {
	if m.state == StateEnded {
		return
	}
	m.state = StateEnded
	m.endReason = reason
	close(m.stopCh)

	var durationMs int64
	if !m.startMonotonic.IsZero() {
		durationMs = time.Since(m.startMonotonic).Milliseconds()
	}
	m.log.Info("match ended", "tag", "match", "reason", reason, "durationMs", durationMs, "tick", m.currentTick)

	msg := mustMarshal(MatchEndMsg{Type: "match-end", MatchID: m.ID, Reason: reason})
	m.broadcast(msg)
	m.bus.Emit(Event{Kind: EventMatchEnded, MatchID: m.ID, Payload: m})
}

// EndReason returns the terminal reason, or "" if the match has not ended.
func (m *Match) EndReason() string { return m.endReason }

// StartedAt returns the wall-clock instant the match entered StateRunning,
// or the zero Time if it never left countdown. Safe to call from an
// EventMatchEnded listener, which runs synchronously on the Match's own
// goroutine before any further mutation can occur.
func (m *Match) StartedAt() time.Time { return m.startMonotonic }

// PlayerIDs returns the match's roster player ids in slot order. Same
// safety note as StartedAt.
func (m *Match) PlayerIDs() []string {
	ids := make([]string, len(m.slots))
	for i, s := range m.slots {
		ids[i] = s.PlayerID
	}
	return ids
}

// --- delivery helpers ---

func (m *Match) sendTo(slot *PlayerSlot, data []byte) {
	if !slot.Connected() {
		return
	}
	if err := slot.Conn.Send(data); err != nil {
		m.log.Warn("send failed, marking disconnected", "tag", "match", "playerId", slot.PlayerID, "error", err)
		m.disconnectSlot(slot)
	}
}

func (m *Match) broadcast(data []byte) {
	for _, s := range m.slots {
		m.sendTo(s, data)
	}
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("match: failed to marshal outbound message: %v", err))
	}
	return data
}
