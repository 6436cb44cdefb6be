package client

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/pathlearn/fedclient/internal/config"
	"github.com/pathlearn/fedclient/internal/core/errs"
	"github.com/pathlearn/fedclient/internal/telemetry"
	"github.com/pathlearn/fedclient/pkg/logger"
)

// WSMessage is one frame on the realtime channel, both directions.
type WSMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ReconnectPolicy controls how the channel re-establishes a dropped
// connection. The default is 5 attempts with a fixed 1 second delay.
type ReconnectPolicy struct {
	MaxAttempts int
	NewBackOff  func() backoff.BackOff
}

func defaultReconnectPolicy(cfg config.WebsocketConfig) ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: cfg.ReconnectAttempts,
		NewBackOff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(cfg.ReconnectDelay)
		},
	}
}

// RealtimeChannel maintains the persistent bidirectional connection to the
// coordination server and dispatches typed events to subscribers. Event
// delivery order matches server emission order; no reordering or
// deduplication is performed.
type RealtimeChannel struct {
	url      string
	token    TokenProvider
	wsCfg    config.WebsocketConfig
	policy   ReconnectPolicy
	registry *eventRegistry

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected bool
	stopChan  chan struct{}
	stopped   bool
}

func NewRealtimeChannel(url string, token TokenProvider, wsCfg config.WebsocketConfig) *RealtimeChannel {
	return &RealtimeChannel{
		url:      url,
		token:    token,
		wsCfg:    wsCfg,
		policy:   defaultReconnectPolicy(wsCfg),
		registry: newEventRegistry(),
	}
}

// SetReconnectPolicy overrides the reconnection policy. Must be called
// before Connect.
func (c *RealtimeChannel) SetReconnectPolicy(policy ReconnectPolicy) {
	c.policy = policy
}

// Connect establishes the connection and starts the read loop. Without a
// stored auth token this is a logged no-op returning false, never an
// error. Reconnection after a drop is automatic, bounded by the policy.
func (c *RealtimeChannel) Connect() bool {
	log := logger.WithComponent("websocket")

	token, err := c.token()
	if err != nil || token == "" {
		log.Warn().Msg("No authentication token found, skipping connection")
		return false
	}

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		log.Debug().Msg("Already connected")
		return true
	}
	c.stopChan = make(chan struct{})
	c.stopped = false
	c.mu.Unlock()

	if err := c.dial(token); err != nil {
		log.Error().Err(err).Str("url", c.url).Msg("Initial connection failed")
		c.emitLocal(EventConnectionError, mustMarshal(map[string]string{"error": err.Error()}))
		go c.reconnect()
		return true
	}

	go c.listen()
	return true
}

func (c *RealtimeChannel) dial(token string) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.Dial(c.url, header)
	if err != nil {
		return &errs.ConnectionError{URL: c.url, Err: err}
	}

	if c.wsCfg.MaxMessageSize > 0 {
		conn.SetReadLimit(c.wsCfg.MaxMessageSize)
	}
	if c.wsCfg.PongWait > 0 {
		conn.SetReadDeadline(time.Now().Add(c.wsCfg.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.wsCfg.PongWait))
		})
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	stopChan := c.stopChan
	c.mu.Unlock()

	if c.wsCfg.PongWait > 0 {
		go c.ping(conn, stopChan)
	}

	log := logger.WithComponent("websocket")
	log.Info().Str("url", c.url).Msg("Connected")
	c.emitLocal(EventConnectionStatus, mustMarshal(map[string]interface{}{"connected": true}))
	return nil
}

// ping keeps the connection's read deadline alive. The server answers each
// ping with a pong, which the pong handler turns into a deadline extension.
func (c *RealtimeChannel) ping(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.wsCfg.PongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			current := c.conn
			c.mu.Unlock()
			if current != conn {
				return
			}

			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(c.wsCfg.WriteWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Disconnect closes the connection and stops reconnection attempts.
func (c *RealtimeChannel) Disconnect() {
	log := logger.WithComponent("websocket")

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	if c.stopChan != nil {
		close(c.stopChan)
	}
	conn := c.conn
	c.conn = nil
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		if err != nil {
			log.Debug().Err(err).Msg("Close message failed")
		}
		conn.Close()
		log.Debug().Str("url", c.url).Msg("Connection closed")
	}
	if wasConnected {
		c.emitLocal(EventConnectionStatus, mustMarshal(map[string]interface{}{
			"connected": false,
			"reason":    "client disconnect",
		}))
	}
}

// IsConnected reports the current connection state.
func (c *RealtimeChannel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// On registers a handler for the given event. Handlers for one event run
// in registration order.
func (c *RealtimeChannel) On(event EventType, fn Handler) Subscription {
	return c.registry.on(event, fn)
}

// Off removes a previously registered handler.
func (c *RealtimeChannel) Off(sub Subscription) {
	c.registry.off(sub)
}

// Emit dispatches an event to local subscribers. Incoming server frames go
// through the same path; tests use it directly.
func (c *RealtimeChannel) Emit(event EventType, payload json.RawMessage) {
	c.registry.emit(Event{Type: event, Payload: payload})
}

func (c *RealtimeChannel) emitLocal(event EventType, payload json.RawMessage) {
	c.registry.emit(Event{Type: event, Payload: payload})
}

// JoinTraining announces participation in a training session for modelID.
// Returns false without sending when disconnected.
func (c *RealtimeChannel) JoinTraining(modelID string) bool {
	return c.send("training:join", map[string]string{"modelId": modelID})
}

// LeaveTraining withdraws from a training session.
func (c *RealtimeChannel) LeaveTraining(modelID string) bool {
	return c.send("training:leave", map[string]string{"modelId": modelID})
}

// SendTrainingProgress reports local training progress to the server.
func (c *RealtimeChannel) SendTrainingProgress(modelID string, progress float64, status string) bool {
	return c.send("training:progress", map[string]interface{}{
		"modelId":  modelID,
		"progress": progress,
		"status":   status,
	})
}

// RequestModel asks the server to prepare a model for download.
func (c *RealtimeChannel) RequestModel(modelID string) bool {
	return c.send("model:request", map[string]string{"modelId": modelID})
}

func (c *RealtimeChannel) send(event string, payload interface{}) bool {
	log := logger.WithComponent("websocket")

	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		log.Error().Err(errs.ErrNotConnected).Str("event", event).Msg("Dropping outbound message")
		return false
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to marshal payload")
		return false
	}

	c.writeMu.Lock()
	if c.wsCfg.WriteWait > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.wsCfg.WriteWait))
	}
	err = conn.WriteJSON(WSMessage{Event: event, Payload: data})
	c.writeMu.Unlock()
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to send message")
		return false
	}
	return true
}

func (c *RealtimeChannel) listen() {
	log := logger.WithComponent("websocket")

	for {
		c.mu.Lock()
		conn := c.conn
		stopChan := c.stopChan
		c.mu.Unlock()
		if conn == nil {
			return
		}

		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-stopChan:
				return
			default:
			}

			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("url", c.url).Msg("Unexpected close")
			}

			c.mu.Lock()
			c.connected = false
			c.conn = nil
			c.mu.Unlock()
			c.emitLocal(EventConnectionStatus, mustMarshal(map[string]interface{}{
				"connected": false,
				"reason":    err.Error(),
			}))

			c.reconnect()
			return
		}

		c.handleMessage(msg)
	}
}

func (c *RealtimeChannel) handleMessage(msg WSMessage) {
	log := logger.WithComponent("websocket")

	event, ok := serverEvents[msg.Event]
	if !ok {
		log.Debug().
			Str("event", msg.Event).
			Str("payload", string(msg.Payload)).
			Msg("Unknown event")
		return
	}

	log.Debug().Str("event", msg.Event).Msg("Event received")
	c.emitLocal(event, msg.Payload)
}

// reconnect runs bounded reconnection attempts per the configured policy.
func (c *RealtimeChannel) reconnect() {
	log := logger.WithComponent("websocket")

	token, err := c.token()
	if err != nil || token == "" {
		log.Warn().Msg("No authentication token for reconnect")
		return
	}

	bo := c.policy.NewBackOff()
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		c.mu.Lock()
		stopChan := c.stopChan
		stopped := c.stopped
		c.mu.Unlock()
		if stopped {
			return
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		select {
		case <-stopChan:
			return
		case <-time.After(wait):
		}

		telemetry.RecordReconnectAttempt()
		log.Info().
			Int("attempt", attempt).
			Int("max_attempts", c.policy.MaxAttempts).
			Msg("Reconnecting")

		if err := c.dial(token); err != nil {
			log.Error().Err(err).Int("attempt", attempt).Msg("Reconnect failed")
			continue
		}

		go c.listen()
		return
	}

	log.Error().Int("attempts", c.policy.MaxAttempts).Msg("Giving up on reconnection")
	c.emitLocal(EventConnectionError, mustMarshal(map[string]string{
		"error": "reconnection attempts exhausted",
	}))
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
