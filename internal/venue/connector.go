package venue

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/compositefeed/internal/bar"
	"github.com/sawpanic/compositefeed/internal/clock"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2

	pingInterval = 20 * time.Second
	pongTimeout  = 10 * time.Second
	readTimeout  = pingInterval + pongTimeout
)

// Connector maintains one logical subscription to one venue's trade
// stream and feeds a bar.Builder, per spec.md §4.3. Grounded directly on
// internal/providers/kraken/websocket.go's Connect/messageLoop/pingLoop
// shape, generalized over Driver instead of being Kraken-specific.
type Connector struct {
	driver  Driver
	builder *bar.Builder
	dialer  Dialer
	clock   clock.Clock

	mu               sync.RWMutex
	conn             Conn
	state            ConnState
	everConnected    bool
	lastMessageTime  int64
	messageCount     int64
	tradeCount       int64
	reconnectCount   int64
	sessionStartTime int64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewConnector builds a connector for one driver, feeding trades into
// builder. dialer/clk may be overridden for tests; production callers
// should pass GorillaDialer{} and clock.Real{}.
func NewConnector(driver Driver, builder *bar.Builder, dialer Dialer, clk clock.Clock) *Connector {
	return &Connector{
		driver:  driver,
		builder: builder,
		dialer:  dialer,
		clock:   clk,
		state:   StateDisconnected,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Run is the supervising loop: dial, subscribe, read frames, reconnect
// on failure with exponential backoff, until ctx is cancelled or Stop is
// called. Run blocks until the supervisor exits.
func (c *Connector) Run(ctx context.Context) {
	defer close(c.doneCh)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		reachedConnected, err := c.connectAndServe(ctx)
		if err != nil {
			log.Warn().Err(err).Str("venue", string(c.driver.VenueID())).
				Str("asset", string(c.driver.Asset())).Msg("venue connector session ended")
		}

		c.setState(StateDisconnected)

		if reachedConnected {
			// spec.md §4.3: delay resets to initial on each successful
			// CONNECTED, regardless of how the session subsequently ended.
			backoff = initialBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-c.clock.After(backoff):
		}

		backoff *= backoffFactor
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// connectAndServe performs one connect-subscribe-read cycle, returning
// whether the session reached CONNECTED before ending.
func (c *Connector) connectAndServe(ctx context.Context) (bool, error) {
	c.setState(StateConnecting)

	conn, err := c.dialer.DialContext(ctx, c.driver.Endpoint())
	if err != nil {
		c.setState(StateError)
		return false, err
	}

	c.mu.Lock()
	c.conn = conn
	c.sessionStartTime = c.clock.Now().UnixMilli()
	c.mu.Unlock()

	c.setState(StateConnected)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(c.clock.Now().Add(readTimeout))
	})
	_ = conn.SetReadDeadline(c.clock.Now().Add(readTimeout))

	if err := conn.WriteMessage(websocket.TextMessage, c.driver.SubscribeMessage()); err != nil {
		conn.Close()
		return true, err
	}

	pingDone := make(chan struct{})
	go c.pingLoop(ctx, conn, pingDone)
	defer close(pingDone)

	return true, c.messageLoop(ctx, conn)
}

func (c *Connector) messageLoop(ctx context.Context, conn Conn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("venue connector message loop panic")
		}
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		default:
		}

		messageType, data, readErr := conn.ReadMessage()
		if readErr != nil {
			c.setState(StateError)
			return readErr
		}
		if messageType != websocket.TextMessage {
			continue
		}

		now := c.clock.Now().UnixMilli()
		c.recordMessage(now)

		trades, parseErr := c.driver.ParseFrame(data, now)
		if parseErr != nil {
			log.Debug().Err(parseErr).Str("venue", string(c.driver.VenueID())).
				Msg("dropped malformed venue frame")
			continue
		}

		for _, t := range trades {
			if !t.Valid() {
				continue
			}
			c.recordTrade()
			c.builder.AddTrade(t)
		}
	}
}

func (c *Connector) pingLoop(ctx context.Context, conn Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-done:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(c.clock.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Stop closes the socket and cancels the supervisor. After Stop
// returns, no further callbacks (bar completions) are invoked, per
// spec.md §5.
func (c *Connector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	})
	<-c.doneCh
	c.setState(StateDisconnected)
}

func (c *Connector) recordMessage(nowMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastMessageTime = nowMs
	c.messageCount++
}

func (c *Connector) recordTrade() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tradeCount++
}

func (c *Connector) setState(s ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == StateConnected {
		if c.everConnected {
			c.reconnectCount++
		}
		c.everConnected = true
	}
	c.state = s
}

// Telemetry returns a point-in-time snapshot of the connector's state,
// safe to call from the aggregator's minute-tick goroutine while this
// connector's own goroutine keeps mutating its counters (spec.md §5:
// reads may be slightly stale, which the STALE check tolerates).
func (c *Connector) Telemetry() Telemetry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.clock.Now().UnixMilli()
	uptime := 0.0
	if c.state == StateConnected && now-c.lastMessageTime < 30000 {
		uptime = 100.0
	}

	rate := 0.0
	if c.sessionStartTime != 0 && now > c.sessionStartTime {
		elapsedSec := float64(now-c.sessionStartTime) / 1000.0
		if elapsedSec > 0 {
			rate = float64(c.messageCount) / elapsedSec
		}
	}

	return Telemetry{
		ConnectionState:  c.state,
		LastMessageTime:  c.lastMessageTime,
		MessageCount:     c.messageCount,
		TradeCount:       c.tradeCount,
		ReconnectCount:   c.reconnectCount,
		SessionStartTime: c.sessionStartTime,
		UptimePercent:    uptime,
		AvgMessageRate:   rate,
		IsConnected:      c.state == StateConnected,
	}
}
