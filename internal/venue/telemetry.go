package venue

// ConnState is the connector's connection lifecycle state (spec.md
// §4.3): DISCONNECTED → CONNECTING → CONNECTED → {DISCONNECTED|ERROR}.
type ConnState string

const (
	StateDisconnected ConnState = "DISCONNECTED"
	StateConnecting   ConnState = "CONNECTING"
	StateConnected    ConnState = "CONNECTED"
	StateError        ConnState = "ERROR"
)

// Telemetry is a read-only projection of a connector's live state, safe
// to copy and pass across goroutine boundaries.
type Telemetry struct {
	ConnectionState  ConnState
	LastMessageTime  int64 // unix ms
	MessageCount     int64
	TradeCount       int64
	ReconnectCount   int64
	SessionStartTime int64 // unix ms
	UptimePercent    float64
	AvgMessageRate   float64 // messages/sec since session start
	IsConnected      bool
}
