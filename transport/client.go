package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"phalanx/match"
	"phalanx/matcherrors"
	"phalanx/queue"
	"phalanx/wsutil"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 8192

	// inboundRateLimit bounds how many client events per second a single
	// connection may submit; events over the limit are dropped with an
	// error reply. A flood guard against malformed or abusive clients
	// rather than a gameplay limit.
	inboundRateLimit = rate.Limit(30)
	inboundBurst     = 60
)

// Client is the middleman between one websocket connection and the hub. It
// implements match.Conn so a Match can push outbound events directly.
type Client struct {
	ConnectionID string
	Hub          *Hub
	Conn         *websocket.Conn
	outbox       chan []byte
	log          *slog.Logger
	limiter      *rate.Limiter

	PlayerID      string
	Username      string
	Authenticated bool

	// established flips true once the connection has authenticated or
	// joined the queue, clearing it of the connection-establishment
	// timeout enforced in ServeWS.
	established atomic.Bool
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	id := uuid.NewString()
	return &Client{
		ConnectionID: id,
		Hub:          hub,
		Conn:         conn,
		outbox:       make(chan []byte, 256),
		log:          hub.log.With("connId", id),
		limiter:      rate.NewLimiter(inboundRateLimit, inboundBurst),
	}
}

// Send implements match.Conn's outbound push, queueing data onto the write
// pump without blocking the caller (the match's scheduler goroutine).
func (c *Client) Send(data []byte) error {
	c.safeSend(data)
	return nil
}

// RemoteID implements match.Conn, identifying the recipient for logging.
func (c *Client) RemoteID() string { return c.PlayerID }

// ReadPump pumps inbound messages from the websocket into handleMessage. It
// runs in its own goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read error", "tag", "transport", "error", err)
			}
			break
		}
		if !c.limiter.Allow() {
			c.sendError("rate limit exceeded")
			continue
		}
		c.handleMessage(data)
	}
}

// WritePump pumps queued outbound messages to the websocket connection and
// sends periodic pings to keep the connection alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.outbox:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var envelope InboundEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.sendError("invalid message format")
		return
	}

	if !c.Authenticated && envelope.Type != "auth" {
		if validator := c.Hub.validator(); validator != nil && !c.Hub.cfg.Auth.AllowAnonymous {
			c.sendError("authentication required")
			return
		}
	}

	if m, ok := c.matchForSelf(); ok {
		m.NotifyActivity(c.PlayerID)
	}

	switch envelope.Type {
	case "auth":
		c.handleAuth(envelope.Raw)
	case "queue-join":
		c.handleQueueJoin(envelope.Raw)
	case "queue-leave":
		c.handleQueueLeave(envelope.Raw)
	case "submit-commands":
		c.handleSubmitCommands(envelope.Raw)
	case "reconnect-match":
		c.handleReconnectMatch(envelope.Raw)
	case "state-hash":
		c.handleStateHash(envelope.Raw)
	default:
		c.sendError("unknown message type: " + envelope.Type)
	}
}

func (c *Client) handleAuth(raw json.RawMessage) {
	if c.Authenticated {
		c.sendError("already authenticated")
		return
	}
	var msg AuthMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Token == "" {
		c.sendError("invalid auth message")
		return
	}
	validator := c.Hub.validator()
	if validator == nil {
		c.sendError(matcherrors.ErrAuthNotConfigured.Error())
		return
	}
	identity, err := validator.Validate(context.Background(), msg.Token)
	if err != nil {
		c.sendError(matcherrors.ErrInvalidToken.Error())
		return
	}
	c.PlayerID = identity.PlayerID
	c.Username = identity.Name
	c.Authenticated = true
	c.established.Store(true)
	c.log.Info("authenticated", "tag", "transport", "playerId", c.PlayerID)
}

func (c *Client) handleQueueJoin(raw json.RawMessage) {
	var msg QueueJoinMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("invalid queue-join message")
		return
	}
	if c.PlayerID == "" {
		c.PlayerID = msg.PlayerID
	}
	if c.PlayerID == "" {
		c.sendError("playerId is required")
		return
	}
	username := queue.NormalizeUsername(msg.Username, c.Hub.cfg.MaxNameLength)
	c.Username = username

	if _, err := c.Hub.Queue.Join(c.PlayerID, username, c); err != nil {
		c.sendQueueError(matcherrors.Reason(err))
		return
	}
	c.established.Store(true)
}

func (c *Client) handleQueueLeave(raw json.RawMessage) {
	var msg QueueLeaveMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("invalid queue-leave message")
		return
	}
	playerID := msg.PlayerID
	if playerID == "" {
		playerID = c.PlayerID
	}
	if err := c.Hub.Queue.Leave(playerID); err != nil && err != matcherrors.ErrNotQueued {
		c.sendQueueError(matcherrors.Reason(err))
	}
}

func (c *Client) handleSubmitCommands(raw json.RawMessage) {
	var msg SubmitCommandsMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("invalid submit-commands message")
		return
	}
	m, ok := c.matchForSelf()
	if !ok {
		c.sendError(matcherrors.ErrMatchNotFound.Error())
		return
	}
	m.SubmitCommands(c.PlayerID, msg.Tick, msg.Commands)
}

func (c *Client) handleReconnectMatch(raw json.RawMessage) {
	var msg ReconnectMatchMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("invalid reconnect-match message")
		return
	}
	if msg.PlayerID != "" {
		c.PlayerID = msg.PlayerID
	}
	m, ok := c.Hub.Registry.Get(msg.MatchID)
	if !ok {
		c.sendError(matcherrors.ErrMatchNotFound.Error())
		return
	}
	m.RequestReconnect(c.PlayerID, c)
}

func (c *Client) handleStateHash(raw json.RawMessage) {
	var msg StateHashMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("invalid state-hash message")
		return
	}
	m, ok := c.matchForSelf()
	if !ok {
		c.sendError(matcherrors.ErrMatchNotFound.Error())
		return
	}
	m.SubmitStateHash(c.PlayerID, msg.Tick, msg.Hash)
}

func (c *Client) matchForSelf() (*match.Match, bool) {
	matchID, ok := c.Hub.Registry.MatchForPlayer(c.PlayerID)
	if !ok {
		return nil, false
	}
	return c.Hub.Registry.Get(matchID)
}

func (c *Client) sendError(message string) {
	msg := struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{Type: "error", Message: message}
	data, _ := json.Marshal(msg)
	c.safeSend(data)
}

func (c *Client) sendQueueError(message string) {
	data, _ := json.Marshal(match.QueueErrorMsg{Type: "queue-error", Message: message})
	c.safeSend(data)
}

func (c *Client) safeSend(data []byte) {
	wsutil.SafeSend(c.outbox, data)
}
