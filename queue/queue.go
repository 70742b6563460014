// Package queue implements the FIFO matchmaking queue: players
// join by game mode, a periodic formation task pops a connected prefix once
// it reaches the mode's match size, and every formed player receives a
// match-found event.
package queue

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"

	"phalanx/config"
	"phalanx/match"
	"phalanx/matcherrors"
)

// Entrant is one player waiting in the queue.
type Entrant struct {
	PlayerID   string
	Username   string
	Conn       match.Conn
	EnqueuedAt time.Time
}

func (e *Entrant) connected() bool { return e.Conn != nil }

// QueueStatus answers a joinQueue call.
type QueueStatus struct {
	Position  int `json:"position"`
	QueueSize int `json:"queueSize"`
}

// FormedMatch is handed to the registry once a full prefix is popped, ready
// to be turned into a running match.Match.
type FormedMatch struct {
	MatchID string
	Mode    config.GameMode
	Roster  []match.Roster
	Conns   map[string]match.Conn
	Seed    uint32
}

// OnFormed is invoked once per formed match, from the queue's own formation
// goroutine — never concurrently with itself.
type OnFormed func(FormedMatch)

// Queue is a FIFO matchmaking queue for a single, fixed game mode.
type Queue struct {
	mode config.GameMode
	cfg  *config.Config
	log  *slog.Logger

	mu      sync.Mutex
	order   []string
	waiting map[string]*Entrant

	onFormed OnFormed
	stop     chan struct{}
}

// New creates a queue for mode. onFormed is called from the formation
// goroutine started by Run.
func New(mode config.GameMode, cfg *config.Config, onFormed OnFormed, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		mode:     mode,
		cfg:      cfg,
		log:      log.With("tag", "queue", "gameMode", mode.Name),
		waiting:  make(map[string]*Entrant),
		onFormed: onFormed,
		stop:     make(chan struct{}),
	}
}

var titleCaser = cases.Title(language.Und)

// NormalizeUsername title-cases and collapses full-width characters in a
// client-submitted username, then truncates it to maxLen runes, before it
// is echoed back in queue-status or match-found, so the same display name
// submitted from different input methods reads identically to every
// recipient.
func NormalizeUsername(raw string, maxLen int) string {
	n := strings.TrimSpace(width.Narrow.String(raw))
	n = titleCaser.String(n)
	if r := []rune(n); maxLen > 0 && len(r) > maxLen {
		n = string(r[:maxLen])
	}
	return n
}

// Run starts the periodic formation task. It blocks until Stop is called.
func (q *Queue) Run() {
	interval := time.Duration(q.cfg.MatchmakingIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			q.tryForm()
		case <-q.stop:
			return
		}
	}
}

// Stop halts the formation task. Safe to call once.
func (q *Queue) Stop() {
	close(q.stop)
}

// Join enqueues playerID, replying with its queue position and size. Joining
// twice is a no-op error.
func (q *Queue) Join(playerID, username string, conn match.Conn) (QueueStatus, error) {
	name := NormalizeUsername(username, q.cfg.MaxNameLength)

	q.mu.Lock()
	if _, exists := q.waiting[playerID]; exists {
		q.mu.Unlock()
		return QueueStatus{}, matcherrors.ErrAlreadyQueued
	}
	q.waiting[playerID] = &Entrant{PlayerID: playerID, Username: name, Conn: conn, EnqueuedAt: time.Now()}
	q.order = append(q.order, playerID)
	status := QueueStatus{Position: len(q.order), QueueSize: len(q.order)}
	q.mu.Unlock()

	q.sendStatus(conn, status)
	return status, nil
}

// Leave removes playerID from the queue, returning ErrNotQueued if it
// wasn't waiting.
func (q *Queue) Leave(playerID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.waiting[playerID]; !ok {
		return matcherrors.ErrNotQueued
	}
	delete(q.waiting, playerID)
	q.order = removeID(q.order, playerID)
	return nil
}

// MarkDisconnected records that a still-queued player's transport connection
// dropped, so formation treats it as unavailable without removing it from
// queue position bookkeeping outright — the formation sweep drops it.
func (q *Queue) MarkDisconnected(playerID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.waiting[playerID]; ok {
		e.Conn = nil
	}
}

// Size reports the current queue length.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// tryForm scans from the head, silently dropping any entrant that has
// gone disconnected while queued,
// until a connected prefix of the mode's match size is found, then remove
// it atomically and hand it to onFormed. Entrants after an incomplete
// prefix are left queued for the next tick.
func (q *Queue) tryForm() {
	matchSize := q.mode.MatchSize()

	q.mu.Lock()
	var prefix []*Entrant
	i := 0
	for i < len(q.order) && len(prefix) < matchSize {
		e := q.waiting[q.order[i]]
		if e == nil || !e.connected() {
			q.log.Info("dropping disconnected queued player", "playerId", q.order[i])
			delete(q.waiting, q.order[i])
			q.order = append(q.order[:i], q.order[i+1:]...)
			continue
		}
		prefix = append(prefix, e)
		i++
	}
	if len(prefix) < matchSize {
		q.mu.Unlock()
		return
	}
	for _, e := range prefix {
		delete(q.waiting, e.PlayerID)
	}
	q.order = q.order[i:]
	q.mu.Unlock()

	formed := q.assemble(prefix)
	q.announce(formed, prefix)
	if q.onFormed != nil {
		q.onFormed(formed)
	}
}

func (q *Queue) assemble(prefix []*Entrant) FormedMatch {
	matchID := fmt.Sprintf("match-%d-%s", time.Now().UnixMilli(), strconv.FormatUint(uint64(randomSeed()), 36))
	seed := randomSeed()

	roster := make([]match.Roster, len(prefix))
	conns := make(map[string]match.Conn, len(prefix))
	for i, e := range prefix {
		teamID := i / q.mode.TeamSize
		roster[i] = match.Roster{PlayerID: e.PlayerID, Username: e.Username, TeamID: teamID}
		conns[e.PlayerID] = e.Conn
	}
	return FormedMatch{MatchID: matchID, Mode: q.mode, Roster: roster, Conns: conns, Seed: seed}
}

// announce sends match-found to every formed player.
func (q *Queue) announce(formed FormedMatch, prefix []*Entrant) {
	for _, e := range prefix {
		teamID := teamIDOf(formed.Roster, e.PlayerID)
		var teammates, opponents []match.PlayerInfo
		for _, r := range formed.Roster {
			if r.PlayerID == e.PlayerID {
				continue
			}
			info := match.PlayerInfo{PlayerID: r.PlayerID, Username: r.Username}
			if r.TeamID == teamID {
				teammates = append(teammates, info)
			} else {
				opponents = append(opponents, info)
			}
		}
		msg := match.MatchFoundMsg{
			Type:      "match-found",
			MatchID:   formed.MatchID,
			PlayerID:  e.PlayerID,
			TeamID:    teamID,
			Teammates: teammates,
			Opponents: opponents,
			GameMode:  formed.Mode.Name,
			Seed:      formed.Seed,
		}
		data, err := json.Marshal(msg)
		if err != nil {
			q.log.Error("failed to marshal match-found", "error", err)
			continue
		}
		if e.Conn != nil {
			if err := e.Conn.Send(data); err != nil {
				q.log.Warn("match-found send failed", "playerId", e.PlayerID, "error", err)
			}
		}
	}
}

func teamIDOf(roster []match.Roster, playerID string) int {
	for _, r := range roster {
		if r.PlayerID == playerID {
			return r.TeamID
		}
	}
	return -1
}

func (q *Queue) sendStatus(conn match.Conn, status QueueStatus) {
	if conn == nil {
		return
	}
	data, err := json.Marshal(struct {
		Type string `json:"type"`
		QueueStatus
	}{Type: "queue-status", QueueStatus: status})
	if err != nil {
		q.log.Error("failed to marshal queue-status", "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		q.log.Warn("queue-status send failed", "error", err)
	}
}

func removeID(order []string, id string) []string {
	for i, v := range order {
		if v == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}

func randomSeed() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint32(b[:])
}
