package match

import (
	"testing"
	"time"
)

func TestSweepActivityTransitionsToLagging(t *testing.T) {
	now := time.Now()
	slot := &PlayerSlot{PlayerID: "p1", ActivityState: ActivityActive, LastActivityMonotonic: now.Add(-25 * time.Millisecond)}
	tickDuration := 1 * time.Millisecond

	transitions := sweepActivity([]*PlayerSlot{slot}, now, tickDuration, 20, 60)
	if len(transitions) != 1 || !transitions[0].Lagging {
		t.Fatalf("expected a lagging transition, got %+v", transitions)
	}
	if slot.ActivityState != ActivityLagging {
		t.Fatalf("expected slot state lagging, got %v", slot.ActivityState)
	}
}

func TestSweepActivityTransitionsToTimedOut(t *testing.T) {
	now := time.Now()
	slot := &PlayerSlot{PlayerID: "p1", ActivityState: ActivityActive, LastActivityMonotonic: now.Add(-70 * time.Millisecond)}
	tickDuration := 1 * time.Millisecond

	transitions := sweepActivity([]*PlayerSlot{slot}, now, tickDuration, 20, 60)
	if len(transitions) != 1 || !transitions[0].TimedOut {
		t.Fatalf("expected a timed-out transition, got %+v", transitions)
	}
	if slot.ActivityState != ActivityTimedOut {
		t.Fatalf("expected slot state timedOut, got %v", slot.ActivityState)
	}
}

func TestSweepActivityRecoversFromLagging(t *testing.T) {
	now := time.Now()
	slot := &PlayerSlot{PlayerID: "p1", ActivityState: ActivityLagging, LastActivityMonotonic: now}

	transitions := sweepActivity([]*PlayerSlot{slot}, now, 1*time.Millisecond, 20, 60)
	if len(transitions) != 0 {
		t.Fatalf("expected no event on recovery to active, got %+v", transitions)
	}
	if slot.ActivityState != ActivityActive {
		t.Fatalf("expected recovery to active, got %v", slot.ActivityState)
	}
}

func TestSweepActivityIgnoresDisconnected(t *testing.T) {
	now := time.Now()
	slot := &PlayerSlot{PlayerID: "p1", ActivityState: ActivityDisconnected, LastActivityMonotonic: now.Add(-1 * time.Hour)}

	transitions := sweepActivity([]*PlayerSlot{slot}, now, 1*time.Millisecond, 20, 60)
	if len(transitions) != 0 {
		t.Fatalf("expected disconnected slots to be left alone, got %+v", transitions)
	}
	if slot.ActivityState != ActivityDisconnected {
		t.Fatalf("expected state to remain disconnected, got %v", slot.ActivityState)
	}
}
