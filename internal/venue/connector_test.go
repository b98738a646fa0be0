package venue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/compositefeed/internal/bar"
	"github.com/sawpanic/compositefeed/internal/clock"
	"github.com/sawpanic/compositefeed/internal/trade"
)

// fakeConn is an in-memory Conn for exercising Connector without a real
// socket: ReadMessage drains a channel of canned frames, then blocks
// until closed.
type fakeConn struct {
	mu      sync.Mutex
	frames  chan []byte
	closed  bool
	writes  [][]byte
}

func newFakeConn(frames ...[]byte) *fakeConn {
	ch := make(chan []byte, len(frames)+1)
	for _, f := range frames {
		ch <- f
	}
	return &fakeConn{frames: ch}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-f.frames
	if !ok {
		return 0, nil, errors.New("fake conn closed")
	}
	return websocket.TextMessage, data, nil
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.frames)
	}
	return nil
}

type fakeDialer struct {
	conn *fakeConn
	err  error
}

func (d *fakeDialer) DialContext(context.Context, string) (Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

// echoDriver is a trivial Driver whose ParseFrame ignores the frame's
// content and returns one fixed BUY trade (price 100, qty 1) per frame.
type echoDriver struct{}

func (echoDriver) VenueID() trade.VenueID     { return trade.VenueBinance }
func (echoDriver) Asset() trade.Asset         { return "BTC" }
func (echoDriver) MarketType() trade.MarketType { return trade.MarketSpot }
func (echoDriver) Endpoint() string           { return "wss://example.invalid" }
func (echoDriver) SubscribeMessage() []byte   { return []byte(`{"sub":true}`) }
func (echoDriver) ParseFrame(data []byte, receivedAtMs int64) ([]trade.Trade, error) {
	return []trade.Trade{{
		Timestamp: 1_700_000_000_000, Price: 100, Quantity: 1,
		TakerSide: trade.Buy, Venue: trade.VenueBinance, Asset: "BTC", MarketType: trade.MarketSpot,
	}}, nil
}

func TestConnector_FeedsTradesToBuilder(t *testing.T) {
	conn := newFakeConn([]byte(`msg1`), []byte(`msg2`))
	dialer := &fakeDialer{conn: conn}
	builder := bar.NewBuilder(trade.VenueBinance, "BTC", trade.MarketSpot)
	c := NewConnector(echoDriver{}, builder, dialer, clock.Real{})

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		partial, ok := builder.PartialBar()
		return ok && partial.TradeCount == 2
	}, time.Second, 5*time.Millisecond)

	telemetry := c.Telemetry()
	assert.True(t, telemetry.IsConnected)
	assert.Equal(t, int64(2), telemetry.TradeCount)

	cancel()
	c.Stop()
}

func TestConnector_StopLeavesConnectorDisconnected(t *testing.T) {
	conn := newFakeConn([]byte(`msg1`))
	dialer := &fakeDialer{conn: conn}
	builder := bar.NewBuilder(trade.VenueBinance, "BTC", trade.MarketSpot)
	c := NewConnector(echoDriver{}, builder, dialer, clock.Real{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		partial, ok := builder.PartialBar()
		return ok && partial.TradeCount >= 1
	}, time.Second, 5*time.Millisecond)

	c.Stop()
	telemetry := c.Telemetry()
	assert.False(t, telemetry.IsConnected)
}
