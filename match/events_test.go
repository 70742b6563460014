package match

import "testing"

func TestEventBusDispatchesToMatchingKind(t *testing.T) {
	bus := NewEventBus(nil)
	var got []Event
	bus.Subscribe(EventMatchStarted, func(e Event) { got = append(got, e) })
	bus.Subscribe(EventMatchEnded, func(e Event) { t.Fatalf("unexpected dispatch to wrong kind") })

	bus.Emit(Event{Kind: EventMatchStarted, MatchID: "m1"})

	if len(got) != 1 || got[0].MatchID != "m1" {
		t.Fatalf("expected one dispatched event for m1, got %+v", got)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus(nil)
	calls := 0
	token := bus.Subscribe(EventCountdown, func(e Event) { calls++ })

	bus.Emit(Event{Kind: EventCountdown})
	bus.Unsubscribe(token)
	bus.Emit(Event{Kind: EventCountdown})

	if calls != 1 {
		t.Fatalf("expected exactly 1 call before unsubscribe, got %d", calls)
	}
}

func TestEventBusRecoversFromPanickingListener(t *testing.T) {
	bus := NewEventBus(nil)
	bus.Subscribe(EventMatchEnded, func(e Event) { panic("boom") })

	calledSecond := false
	bus.Subscribe(EventMatchEnded, func(e Event) { calledSecond = true })

	bus.Emit(Event{Kind: EventMatchEnded})

	if !calledSecond {
		t.Fatalf("expected a panicking listener not to block dispatch to later listeners")
	}
}
