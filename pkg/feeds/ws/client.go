package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client is a WebSocket client with automatic reconnection. Venue sources
// build on it: they provide an onMessage handler for parsing and an
// onConnect handler that re-subscribes their pairs after every (re)connect.
type Client struct {
	url           string
	conn          *websocket.Conn
	connMu        sync.Mutex
	reconnectWait time.Duration
	pingInterval  time.Duration
	pongWait      time.Duration
	writeWait     time.Duration
	headers       http.Header
	logger        zerolog.Logger

	done chan struct{}

	onMessage    func([]byte)
	onConnect    func()
	onDisconnect func(error)

	connected bool
	stateMu   sync.RWMutex
	closed    bool
	closeMu   sync.Mutex
}

// Config holds WebSocket client configuration
type Config struct {
	URL           string
	ReconnectWait time.Duration
	PingInterval  time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	Headers       http.Header
	Logger        zerolog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(cfg Config) *Client {
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 5 * time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait == 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteWait == 0 {
		cfg.WriteWait = 10 * time.Second
	}

	return &Client{
		url:           cfg.URL,
		reconnectWait: cfg.ReconnectWait,
		pingInterval:  cfg.PingInterval,
		pongWait:      cfg.PongWait,
		writeWait:     cfg.WriteWait,
		headers:       cfg.Headers,
		logger:        cfg.Logger,
		done:          make(chan struct{}),
	}
}

// SetHandlers sets the event handlers. Must be called before Connect.
func (c *Client) SetHandlers(onMessage func([]byte), onConnect func(), onDisconnect func(error)) {
	c.onMessage = onMessage
	c.onConnect = onConnect
	c.onDisconnect = onDisconnect
}

// Connect establishes the WebSocket connection
func (c *Client) Connect(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, c.url, c.headers)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.setConnected(true)

	if c.onConnect != nil {
		c.onConnect()
	}

	c.logger.Info().Str("url", c.url).Msg("websocket connected")

	go c.readPump(conn)
	go c.pingPump(conn)

	return nil
}

// ConnectWithRetry connects with automatic retry and exponential backoff.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	wait := c.reconnectWait
	for {
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}

		c.logger.Warn().
			Err(err).
			Dur("wait", wait).
			Msg("websocket connection failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrClientClosed
		case <-time.After(wait):
			wait *= 2
			if wait > 60*time.Second {
				wait = 60 * time.Second
			}
		}
	}
}

// SendJSON sends a JSON message on the connection.
func (c *Client) SendJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteJSON(v)
}

// Close closes the WebSocket connection and stops reconnection.
func (c *Client) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()

	c.setConnected(false)
	close(c.done)

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		err := c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
		return err
	}

	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.connected
}

func (c *Client) setConnected(connected bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.connected = connected
}

// readPump reads messages until the connection drops, then reconnects.
func (c *Client) readPump(conn *websocket.Conn) {
	defer c.reconnect()

	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("websocket read error")
			}
			return
		}

		if c.onMessage != nil {
			c.onMessage(message)
		}
	}
}

// pingPump sends periodic ping messages
func (c *Client) pingPump(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != conn {
				c.connMu.Unlock()
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.connMu.Unlock()

			if err != nil {
				c.logger.Warn().Err(err).Msg("websocket ping failed")
				return
			}
		}
	}
}

// reconnect re-establishes the connection after a disconnect.
func (c *Client) reconnect() {
	select {
	case <-c.done:
		return
	default:
	}

	c.setConnected(false)

	if c.onDisconnect != nil {
		c.onDisconnect(ErrConnectionLost)
	}

	c.logger.Warn().Msg("websocket disconnected, reconnecting")

	if err := c.ConnectWithRetry(context.Background()); err != nil {
		c.logger.Error().Err(err).Msg("websocket reconnection failed")
	}
}

// Reconnect forces a reconnect, kicking a connection that is formally alive
// but no longer delivering data.
func (c *Client) Reconnect() {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		// readPump notices the closed connection and runs the normal
		// reconnect path with resubscription.
		conn.Close()
		return
	}

	go c.reconnect()
}
