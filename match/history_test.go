package match

import "testing"

func TestBroadcastHistoryEviction(t *testing.T) {
	h := newBroadcastHistory(2)
	h.append(1, nil)
	h.append(2, nil)
	h.append(3, nil)

	first, ok := h.firstTick()
	if !ok || first != 2 {
		t.Fatalf("expected oldest retained tick to be 2 after eviction, got %d (ok=%v)", first, ok)
	}
	if len(h.entries) != 2 {
		t.Fatalf("expected capacity-bounded length 2, got %d", len(h.entries))
	}
}

func TestBroadcastHistorySince(t *testing.T) {
	h := newBroadcastHistory(10)
	for tick := uint32(1); tick <= 5; tick++ {
		h.append(tick, nil)
	}

	got := h.since(2, 4)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries in [2,4], got %d", len(got))
	}
	for i, e := range got {
		if e.Tick != uint32(2+i) {
			t.Fatalf("expected ascending ticks starting at 2, got %d at index %d", e.Tick, i)
		}
	}
}

func TestBroadcastHistoryEmpty(t *testing.T) {
	h := newBroadcastHistory(4)
	if _, ok := h.firstTick(); ok {
		t.Fatalf("expected no first tick on empty history")
	}
	if got := h.since(0, 100); len(got) != 0 {
		t.Fatalf("expected no entries from empty history, got %d", len(got))
	}
}
