package match

import "testing"

func TestDesyncOracleReadyWhenComplete(t *testing.T) {
	o := newDesyncOracle(20)
	o.submit(1, "p1", "hash-a", 1)
	o.submit(1, "p2", "hash-a", 1)

	results := o.ready([]string{"p1", "p2"}, 1)
	if len(results) != 1 {
		t.Fatalf("expected 1 ready result, got %d", len(results))
	}
	if results[0].Mismatch {
		t.Fatalf("expected no mismatch for identical hashes")
	}
}

func TestDesyncOracleDetectsMismatch(t *testing.T) {
	o := newDesyncOracle(20)
	o.submit(1, "p1", "hash-a", 1)
	o.submit(1, "p2", "hash-b", 1)

	results := o.ready([]string{"p1", "p2"}, 1)
	if len(results) != 1 || !results[0].Mismatch {
		t.Fatalf("expected a mismatch result, got %+v", results)
	}
}

func TestDesyncOracleWaitsForAllPlayers(t *testing.T) {
	o := newDesyncOracle(20)
	o.submit(1, "p1", "hash-a", 1)

	results := o.ready([]string{"p1", "p2"}, 1)
	if len(results) != 0 {
		t.Fatalf("expected no ready results before all players report, got %d", len(results))
	}
}

func TestDesyncOracleAgesOutIncompleteTick(t *testing.T) {
	o := newDesyncOracle(5)
	o.submit(10, "p1", "hash-a", 10)

	if results := o.ready([]string{"p1", "p2"}, 14); len(results) != 0 {
		t.Fatalf("expected tick to still be pending before the window elapses, got %+v", results)
	}

	results := o.ready([]string{"p1", "p2"}, 15)
	if len(results) != 1 {
		t.Fatalf("expected the tick to age out at the window boundary, got %d", len(results))
	}
	if _, stillPending := o.hashes[10]; stillPending {
		t.Fatalf("expected aged-out tick to be removed from pending set")
	}
}
