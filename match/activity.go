package match

import "time"

// activityTransition describes one player's liveness state change produced
// by a sweep, so the caller (Match) can emit the right event and, for
// timeouts, fold into the disconnect policy.
type activityTransition struct {
	Slot              *PlayerSlot
	MsSinceLastActive int64
	TimedOut          bool
	Lagging           bool
}

// sweepActivity implements the per-tick liveness check: for
// every slot in Active or Lagging, compare elapsed time against the
// lagging/timeout thresholds (expressed in ticks, converted to a duration
// via tickDuration so the clock stays tied to the tick cadence, never to
// wall-clock arithmetic). Slots already Disconnected or TimedOut are left
// alone — only a successful reconnect clears those states.
func sweepActivity(slots []*PlayerSlot, now time.Time, tickDuration time.Duration, timeoutTicks, disconnectTicks int) []activityTransition {
	disconnectThreshold := tickDuration * time.Duration(disconnectTicks)
	timeoutThreshold := tickDuration * time.Duration(timeoutTicks)

	var transitions []activityTransition
	for _, s := range slots {
		if s.ActivityState != ActivityActive && s.ActivityState != ActivityLagging {
			continue
		}
		delta := now.Sub(s.LastActivityMonotonic)
		switch {
		case delta >= disconnectThreshold:
			s.ActivityState = ActivityTimedOut
			transitions = append(transitions, activityTransition{Slot: s, MsSinceLastActive: delta.Milliseconds(), TimedOut: true})
		case delta >= timeoutThreshold:
			if s.ActivityState == ActivityActive {
				s.ActivityState = ActivityLagging
				transitions = append(transitions, activityTransition{Slot: s, MsSinceLastActive: delta.Milliseconds(), Lagging: true})
			}
		default:
			if s.ActivityState == ActivityLagging {
				s.ActivityState = ActivityActive
			}
		}
	}
	return transitions
}
