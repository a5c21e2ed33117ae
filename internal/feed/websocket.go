package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/pkg/logger"
)

const (
	reconnectDelay    = 5 * time.Second
	maxReconnectDelay = 5 * time.Minute

	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// TickHandler receives every price point a source produces.
type TickHandler func(contracts.PricePoint)

// tickMessage is the wire format of one streamed quote.
type tickMessage struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"ts"` // unix milliseconds
}

// subscribeMessage is sent to the stream to add or drop a symbol.
type subscribeMessage struct {
	Action string `json:"action"` // subscribe | unsubscribe
	Symbol string `json:"symbol"`
}

// WSClient streams ticks from a websocket quote endpoint. It reconnects
// with doubling backoff and replays its subscription set on every new
// connection.
type WSClient struct {
	url     string
	log     *logger.Logger
	handler TickHandler

	conn   *websocket.Conn
	connMu sync.RWMutex

	symbols   map[string]bool
	symbolsMu sync.RWMutex

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWSClient creates a websocket tick source.
func NewWSClient(url string, handler TickHandler, log *logger.Logger) *WSClient {
	return &WSClient{
		url:     url,
		log:     log.WithComponent("feed_ws"),
		handler: handler,
		symbols: make(map[string]bool),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start connects and begins streaming.
func (c *WSClient) Start(ctx context.Context) error {
	if c.url == "" {
		return fmt.Errorf("websocket url not configured")
	}
	if err := c.connect(ctx); err != nil {
		return fmt.Errorf("initial connection failed: %w", err)
	}

	go c.readLoop(ctx)
	go c.pingLoop(ctx)
	return nil
}

// Stop closes the connection and waits for the read loop to exit.
func (c *WSClient) Stop() {
	close(c.stopCh)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()

	<-c.doneCh
}

// Subscribe asks the stream for a symbol's ticks.
func (c *WSClient) Subscribe(symbol string) error {
	c.symbolsMu.Lock()
	c.symbols[symbol] = true
	c.symbolsMu.Unlock()

	return c.send(subscribeMessage{Action: "subscribe", Symbol: symbol})
}

// Unsubscribe drops a symbol from the stream.
func (c *WSClient) Unsubscribe(symbol string) error {
	c.symbolsMu.Lock()
	delete(c.symbols, symbol)
	c.symbolsMu.Unlock()

	return c.send(subscribeMessage{Action: "unsubscribe", Symbol: symbol})
}

func (c *WSClient) send(msg subscribeMessage) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		// Not connected right now; the set replays on reconnect.
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	c.conn = conn

	// Replay the subscription set on the fresh connection.
	c.symbolsMu.RLock()
	symbols := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		symbols = append(symbols, s)
	}
	c.symbolsMu.RUnlock()

	for _, s := range symbols {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(subscribeMessage{Action: "subscribe", Symbol: s}); err != nil {
			conn.Close()
			c.conn = nil
			return fmt.Errorf("resubscribe %s: %w", s, err)
		}
	}

	c.log.WithFields(map[string]interface{}{
		"url":     c.url,
		"symbols": len(symbols),
	}).Info("websocket connected")
	return nil
}

func (c *WSClient) readLoop(ctx context.Context) {
	defer close(c.doneCh)

	for {
		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()

		if conn == nil {
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		var msg tickMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			default:
			}

			c.log.WithError(err).Warn("websocket read failed, reconnecting")
			c.connMu.Lock()
			c.conn.Close()
			c.conn = nil
			c.connMu.Unlock()
			continue
		}

		if msg.Symbol == "" || msg.Price <= 0 {
			continue
		}
		c.handler(contracts.PricePoint{
			Symbol: msg.Symbol,
			Time:   time.UnixMilli(msg.Timestamp).UTC(),
			Price:  msg.Price,
		})
	}
}

// reconnect retries with doubling delay until it succeeds or the client
// stops. Returns false when the client is shutting down.
func (c *WSClient) reconnect(ctx context.Context) bool {
	delay := reconnectDelay
	for {
		select {
		case <-c.stopCh:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		if err := c.connect(ctx); err == nil {
			return true
		} else {
			c.log.WithError(err).Warn("websocket reconnect failed")
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (c *WSClient) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.log.WithError(err).Debug("ping failed")
				}
			}
			c.connMu.Unlock()
		}
	}
}
