package history

import (
	"context"
	"testing"
	"time"
)

func TestOutcomeDurationMs(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o := Outcome{StartedAt: start, EndedAt: start.Add(1500 * time.Millisecond)}
	if got := o.DurationMs(); got != 1500 {
		t.Errorf("DurationMs() = %d, want 1500", got)
	}
}

func TestNewStoreWithEmptyURLReturnsNilStore(t *testing.T) {
	s, err := NewStore(context.Background(), "")
	if err != nil || s != nil {
		t.Fatalf("expected a nil store and no error for an empty database url, got %v, %v", s, err)
	}
}

func TestNilStoreMethodsAreNoOps(t *testing.T) {
	var s *PgStore
	if err := s.RecordOutcome(context.Background(), Outcome{}); err != nil {
		t.Errorf("RecordOutcome on a nil store should be a no-op, got %v", err)
	}
	list, err := s.ListRecent(context.Background(), 10)
	if err != nil || len(list) != 0 {
		t.Errorf("ListRecent on a nil store should return an empty list, got %v, %v", list, err)
	}
	s.Close()
}
