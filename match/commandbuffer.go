package match

import "sort"

// commandBuffer is the per-match, per-tick, per-player command store. It is
// only ever touched from the Match's single action-processing goroutine, so
// it needs no internal locking.
type commandBuffer struct {
	// byTick[tick][playerId] holds the last-write-wins command list for
	// that player at that tick.
	byTick map[uint32]map[string][]RawCommand
}

func newCommandBuffer() *commandBuffer {
	return &commandBuffer{byTick: make(map[uint32]map[string][]RawCommand)}
}

// store records commands for (tick, playerId), overwriting any prior value
// for the same key (last-write-wins).
func (b *commandBuffer) store(tick uint32, playerID string, commands []RawCommand) {
	perPlayer, ok := b.byTick[tick]
	if !ok {
		perPlayer = make(map[string][]RawCommand)
		b.byTick[tick] = perPlayer
	}
	perPlayer[playerID] = commands
}

// drain returns the flattened, ordered command list for tick across the
// given player ids (in the order given, which callers sort ascending
// first — see sortedPlayerIDs), then deletes the tick's buffer entry.
// Players with no submission contribute no commands, which is itself a
// meaningful signal.
func (b *commandBuffer) drain(tick uint32, orderedPlayerIDs []string) []Command {
	perPlayer := b.byTick[tick]
	delete(b.byTick, tick)

	out := make([]Command, 0, len(orderedPlayerIDs))
	for _, pid := range orderedPlayerIDs {
		var raws []RawCommand
		if perPlayer != nil {
			raws = perPlayer[pid]
		}
		for _, rc := range raws {
			out = append(out, Command{PlayerID: pid, Type: rc.Type, Data: rc.Data})
		}
	}
	return out
}

// sortedPlayerIDs returns playerIds in ascending lexicographic order, the
// ordering the flattened batch is built in.
func sortedPlayerIDs(slots []*PlayerSlot) []string {
	ids := make([]string, len(slots))
	for i, s := range slots {
		ids[i] = s.PlayerID
	}
	sort.Strings(ids)
	return ids
}
