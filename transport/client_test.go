package transport

import (
	"encoding/json"
	"testing"

	"phalanx/config"
	"phalanx/match"
	"phalanx/queue"
	"phalanx/registry"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	cfg := config.Defaults()
	cfg.MaxNameLength = 24
	bus := match.NewEventBus(nil)
	reg := registry.New(cfg, bus, nil)
	q := queue.New(config.Mode1v1, cfg, func(queue.FormedMatch) {}, nil)
	return NewHub(cfg, q, reg, nil, nil)
}

func newTestClient(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := &Client{
		ConnectionID: "test-conn",
		Hub:          h,
		outbox:       make(chan []byte, 16),
		log:          h.log,
	}
	return c
}

func firstMessage(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case raw := <-c.outbox:
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("failed to unmarshal outbox message: %v", err)
		}
		return m
	default:
		t.Fatalf("expected a message in the outbox, got none")
		return nil
	}
}

func TestHandleMessageInvalidJSONSendsError(t *testing.T) {
	c := newTestClient(t, testHub(t))
	c.handleMessage([]byte("not json"))

	msg := firstMessage(t, c)
	if msg["type"] != "error" {
		t.Errorf("expected an error message, got %v", msg)
	}
}

func TestHandleMessageUnknownTypeSendsError(t *testing.T) {
	c := newTestClient(t, testHub(t))
	c.Authenticated = true
	c.handleMessage([]byte(`{"type":"not-a-real-event"}`))

	msg := firstMessage(t, c)
	if msg["type"] != "error" {
		t.Errorf("expected an error message, got %v", msg)
	}
}

func TestHandleAuthWithoutValidatorConfiguredSendsError(t *testing.T) {
	c := newTestClient(t, testHub(t))
	c.handleAuth(json.RawMessage(`{"token":"abc"}`))

	msg := firstMessage(t, c)
	if msg["type"] != "error" {
		t.Errorf("expected an error when auth is not configured, got %v", msg)
	}
}

func TestHandleQueueJoinAddsToQueue(t *testing.T) {
	h := testHub(t)
	c := newTestClient(t, h)
	c.handleQueueJoin(json.RawMessage(`{"playerId":"p1","username":"Alice"}`))

	if h.Queue.Size() != 1 {
		t.Errorf("expected the queue to contain one player, got %d", h.Queue.Size())
	}
	msg := firstMessage(t, c)
	if msg["type"] != "queue-status" {
		t.Errorf("expected a queue-status reply, got %v", msg)
	}
}

func TestHandleQueueJoinTwiceSendsAlreadyQueuedError(t *testing.T) {
	h := testHub(t)
	c1 := newTestClient(t, h)
	c1.handleQueueJoin(json.RawMessage(`{"playerId":"p1","username":"Alice"}`))
	<-c1.outbox // drain the queue-status reply

	c2 := newTestClient(t, h)
	c2.handleQueueJoin(json.RawMessage(`{"playerId":"p1","username":"Alice"}`))

	msg := firstMessage(t, c2)
	if msg["type"] != "queue-error" || msg["message"] != "already-queued" {
		t.Errorf("expected an already-queued queue-error, got %v", msg)
	}
}

func TestHandleSubmitCommandsWithoutMatchSendsError(t *testing.T) {
	c := newTestClient(t, testHub(t))
	c.PlayerID = "p1"
	c.handleSubmitCommands(json.RawMessage(`{"tick":1,"commands":[]}`))

	msg := firstMessage(t, c)
	if msg["type"] != "error" {
		t.Errorf("expected a match-not-found error, got %v", msg)
	}
}

func TestHandleReconnectMatchWithUnknownMatchSendsError(t *testing.T) {
	c := newTestClient(t, testHub(t))
	c.handleReconnectMatch(json.RawMessage(`{"playerId":"p1","matchId":"does-not-exist"}`))

	msg := firstMessage(t, c)
	if msg["type"] != "error" {
		t.Errorf("expected a match-not-found error, got %v", msg)
	}
}
