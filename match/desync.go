package match

// desyncOracle collects per-tick state-hash submissions and reports
// mismatches. It never aborts the match; acting on a reported
// desync is an embedder policy decision made over the public event bus.
type desyncOracle struct {
	// hashes[tick][playerId] = hash
	hashes map[uint32]map[string]string
	// insertedAt[tick] = the tick at which the first hash for that tick
	// arrived; used to bound the grace window in ticks rather than wall time.
	insertedAt  map[uint32]uint32
	windowTicks uint32
}

func newDesyncOracle(windowTicks int) *desyncOracle {
	if windowTicks <= 0 {
		windowTicks = 1
	}
	return &desyncOracle{
		hashes:      make(map[uint32]map[string]string),
		insertedAt:  make(map[uint32]uint32),
		windowTicks: uint32(windowTicks),
	}
}

// submit records a player's hash for tick, creating the per-tick map and
// grace-window anchor on first arrival for that tick.
func (o *desyncOracle) submit(tick uint32, playerID, hash string, currentTick uint32) {
	perPlayer, ok := o.hashes[tick]
	if !ok {
		perPlayer = make(map[string]string)
		o.hashes[tick] = perPlayer
		o.insertedAt[tick] = currentTick
	}
	perPlayer[playerID] = hash
}

// desyncResult is the outcome of comparing one tick's collected hashes.
type desyncResult struct {
	Tick    uint32
	Hashes  map[string]string
	Mismatch bool
}

// ready returns every pending tick that is either complete (every expected
// playerId present) or has aged past the grace window, removing them from
// the oracle's pending set.
func (o *desyncOracle) ready(expectedPlayerIDs []string, currentTick uint32) []desyncResult {
	var out []desyncResult
	for tick, perPlayer := range o.hashes {
		complete := true
		for _, pid := range expectedPlayerIDs {
			if _, ok := perPlayer[pid]; !ok {
				complete = false
				break
			}
		}
		aged := currentTick-o.insertedAt[tick] >= o.windowTicks
		if !complete && !aged {
			continue
		}
		out = append(out, evaluate(tick, perPlayer))
		delete(o.hashes, tick)
		delete(o.insertedAt, tick)
	}
	return out
}

func evaluate(tick uint32, perPlayer map[string]string) desyncResult {
	snapshot := make(map[string]string, len(perPlayer))
	var first string
	mismatch := false
	for pid, h := range perPlayer {
		snapshot[pid] = h
		if first == "" {
			first = h
		} else if h != first {
			mismatch = true
		}
	}
	return desyncResult{Tick: tick, Hashes: snapshot, Mismatch: mismatch}
}
