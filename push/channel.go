// Package push receives the device's log stream over its websocket.
package push

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
)

// Path is where the device serves the push channel.
const Path = "/connect-websocket"

// Handler consumes one inbound message. Errors are the handler's own
// diagnostics; the channel keeps reading.
type Handler interface {
	HandleMessage(payload []byte) error
}

type HandlerFunc func(payload []byte) error

func (f HandlerFunc) HandleMessage(payload []byte) error { return f(payload) }

type Config struct {
	// URL is the websocket address, see URL.
	URL    string
	Dialer *websocket.Dialer
	Logger *log.Logger
	// Reconnect redials after the connection drops.
	Reconnect bool
	// Backoff builds the redial policy; defaults to DefaultBackoff.
	Backoff func() backoff.BackOff
}

// DefaultBackoff retries forever, starting at 500ms and capping at 30s.
func DefaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 1.5
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// URL derives the push channel address from the device base URL.
func URL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid device URL %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid device URL %q: unsupported scheme", base)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid device URL %q: missing host", base)
	}
	u.Path += Path
	u.RawQuery = ""
	return u.String(), nil
}

// Channel is a receive-only push connection.
type Channel struct {
	cfg     Config
	handler Handler
	logger  *log.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(cfg Config, handler Handler) *Channel {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Channel{cfg: cfg, handler: handler, logger: logger}
}

// Run connects and feeds messages to the handler, one at a time, until ctx
// is cancelled. Without Reconnect it returns after the first connection
// ends (or fails to open) with the error that ended it.
func (c *Channel) Run(ctx context.Context) error {
	policy := c.cfg.Backoff()
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !c.cfg.Reconnect {
			return err
		}
		if connected {
			policy.Reset()
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("giving up on push channel: %w", err)
		}
		c.logger.Printf("Reconnecting to %s in %v", c.cfg.URL, wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// session runs one connection. connected reports whether the dial
// succeeded.
func (c *Channel) session(ctx context.Context) (connected bool, err error) {
	conn, resp, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.logger.Printf("Web socket error: %v", err)
		return false, err
	}
	c.logger.Println("WebSocket connection opened")

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer func() {
		stop()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Println("WebSocket connection closed")
				return true, nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Println("WebSocket connection closed")
				return true, ErrClosedByPeer
			}
			c.logger.Printf("WebSocket connection closed: %v", err)
			return true, err
		}
		// Nothing is handled once teardown has begun.
		if ctx.Err() != nil {
			c.logger.Println("WebSocket connection closed")
			return true, nil
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.handler.HandleMessage(payload)
	}
}

// Connected reports whether a connection is currently open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// ErrClosedByPeer is returned by Run without Reconnect when the device
// closed the connection normally.
var ErrClosedByPeer = errors.New("push channel closed by device")
