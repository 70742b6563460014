package match

import (
	"encoding/json"
	"testing"
)

func TestCommandBufferLastWriteWins(t *testing.T) {
	b := newCommandBuffer()
	b.store(5, "p1", []RawCommand{{Type: "move", Data: json.RawMessage(`{"x":1}`)}})
	b.store(5, "p1", []RawCommand{{Type: "move", Data: json.RawMessage(`{"x":2}`)}})

	out := b.drain(5, []string{"p1"})
	if len(out) != 1 {
		t.Fatalf("expected 1 command, got %d", len(out))
	}
	if string(out[0].Data) != `{"x":2}` {
		t.Fatalf("expected last write to win, got %s", out[0].Data)
	}
}

func TestCommandBufferEmptyForNonSubmitter(t *testing.T) {
	b := newCommandBuffer()
	b.store(1, "p1", []RawCommand{{Type: "noop"}})

	out := b.drain(1, []string{"p1", "p2"})
	if len(out) != 1 {
		t.Fatalf("expected exactly p1's command, got %d entries", len(out))
	}
	if out[0].PlayerID != "p1" {
		t.Fatalf("expected p1, got %s", out[0].PlayerID)
	}
}

func TestCommandBufferOrdering(t *testing.T) {
	b := newCommandBuffer()
	b.store(1, "zack", []RawCommand{{Type: "a"}})
	b.store(1, "amy", []RawCommand{{Type: "b"}})

	out := b.drain(1, sortedPlayerIDs([]*PlayerSlot{{PlayerID: "zack"}, {PlayerID: "amy"}}))
	if len(out) != 2 || out[0].PlayerID != "amy" || out[1].PlayerID != "zack" {
		t.Fatalf("expected amy before zack, got %+v", out)
	}
}

func TestCommandBufferDrainDeletesTick(t *testing.T) {
	b := newCommandBuffer()
	b.store(1, "p1", []RawCommand{{Type: "a"}})
	b.drain(1, []string{"p1"})

	if _, ok := b.byTick[1]; ok {
		t.Fatalf("expected tick entry to be removed after drain")
	}
}
