package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-commhub/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024

	// Inbound frame budget per connection. SDP and ICE bursts during call
	// setup fit comfortably inside the burst allowance.
	inboundRate  = rate.Limit(25)
	inboundBurst = 50
)

// Client is one live transport connection belonging to an identity.
type Client struct {
	conn          *websocket.Conn
	registry      *ConnectionRegistry
	calls         *CallCoordinator
	log           zerolog.Logger
	identity      types.Identity
	connectionId  string
	establishedAt time.Time
	limiter       *rate.Limiter
	send          chan *ServerMessage
	stop          chan struct{}
}

func NewClient(identity types.Identity, conn *websocket.Conn, registry *ConnectionRegistry, calls *CallCoordinator, logger zerolog.Logger) *Client {
	connectionId := uuid.NewString()
	return &Client{
		conn:          conn,
		registry:      registry,
		calls:         calls,
		log:           logger.With().Str("identity", identity.Id).Str("connection_id", connectionId).Logger(),
		identity:      identity,
		connectionId:  connectionId,
		establishedAt: Now(),
		limiter:       rate.NewLimiter(inboundRate, inboundBurst),
		send:          make(chan *ServerMessage, 256),
		stop:          make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Error().Err(err).Msg("failed to serialize message")
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug().Msg("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Error().Err(err).Msg("ws read")
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Warn().Err(err).Msg("error parsing message")
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		if !c.limiter.Allow() {
			c.queueMessage(ErrTooManyRequests(msg.Id))
			continue
		}

		msg.client = c
		msg.Timestamp = Now()
		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *ClientMessage) {
	switch {
	case msg.Join != nil:
		// Registration happened at upgrade; re-registering is idempotent.
		c.registry.Register(c)
		c.queueMessage(NoErrOK(msg.Id, map[string]any{"connection_id": c.connectionId}))
	case msg.Offer != nil:
		callId, err := c.calls.Offer(c.identity.Id, msg.Offer.CalleeId, msg.Offer.Sdp)
		if err != nil {
			c.queueMessage(callErrorMessage(msg.Id, err))
			return
		}
		c.queueMessage(NoErrOK(msg.Id, map[string]any{"call_id": callId}))
	case msg.Answer != nil:
		if err := c.calls.Answer(c.identity.Id, msg.Answer.CallId, msg.Answer.Sdp); err != nil {
			c.queueMessage(callErrorMessage(msg.Id, err))
			return
		}
		c.queueMessage(NoErrOK(msg.Id, nil))
	case msg.Ice != nil:
		if err := c.calls.Relay(c.identity.Id, msg.Ice.CallId, msg.Ice.Candidate); err != nil {
			c.queueMessage(callErrorMessage(msg.Id, err))
			return
		}
		c.queueMessage(NoErrAccepted(msg.Id))
	case msg.End != nil:
		if err := c.calls.End(c.identity.Id, msg.End.CallId, msg.End.Reason); err != nil {
			c.queueMessage(callErrorMessage(msg.Id, err))
			return
		}
		c.queueMessage(NoErrAccepted(msg.Id))
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func callErrorMessage(id int, err error) *ServerMessage {
	switch {
	case errors.Is(err, ErrCallInProgress):
		return ErrCallInProgressMsg(id)
	case errors.Is(err, ErrInvalidCallee):
		return ErrInvalidCalleeMsg(id)
	case errors.Is(err, ErrUnknownCall):
		return ErrUnknownCallMsg(id)
	default:
		return ErrInternalError(id)
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn().Msg("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Error().Err(err).Msg("write message")
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

func (c *Client) cleanup() {
	c.registry.Unregister(c)
	c.stopClient()
}
