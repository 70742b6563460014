package transport

import (
	"encoding/json"

	"phalanx/match"
)

// InboundEnvelope is the generic envelope for all client-to-server
// messages. The Type field is used for routing; Raw holds the full JSON
// payload so the specific handler can decode it into the matching struct.
type InboundEnvelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the raw payload alongside the routing type.
func (e *InboundEnvelope) UnmarshalJSON(data []byte) error {
	type typeOnly struct {
		Type string `json:"type"`
	}
	var t typeOnly
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	e.Type = t.Type
	e.Raw = json.RawMessage(data)
	return nil
}

// --- client-to-server payloads ---

// AuthMsg is sent by the client as its first message, carrying the bearer
// token to validate (skipped entirely when auth is disabled).
type AuthMsg struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// QueueJoinMsg enters matchmaking for the given player/username.
type QueueJoinMsg struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
}

// QueueLeaveMsg withdraws from matchmaking.
type QueueLeaveMsg struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

// SubmitCommandsMsg submits one tick's worth of raw commands.
type SubmitCommandsMsg struct {
	Type     string             `json:"type"`
	Tick     uint32             `json:"tick"`
	Commands []match.RawCommand `json:"commands"`
}

// ReconnectMatchMsg asks to rebind this connection to an in-progress match.
type ReconnectMatchMsg struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	MatchID  string `json:"matchId"`
}

// StateHashMsg submits a client-computed state hash for a tick.
type StateHashMsg struct {
	Type string `json:"type"`
	Tick uint32 `json:"tick"`
	Hash string `json:"hash"`
}
