// Package wsutil holds small helpers shared by the transport layer.
package wsutil

import "log/slog"

// SafeSend sends data to a channel without panicking if the channel is closed
// or full. If the channel is full or closed, the send is dropped. Panics are
// recovered and logged for debugging.
func SafeSend(ch chan []byte, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Default().Warn("safe send recovered panic", "tag", "transport", "panic", r)
		}
	}()
	select {
	case ch <- data:
	default:
	}
}
