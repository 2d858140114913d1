package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Live feed event names
const (
	EventSample   = "sample"
	EventSession  = "session"
	EventCompact  = "compact"
	EventShutdown = "server.shutdown"
)

// EventMessage is a message pushed to live feed clients
type EventMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Seq       int64       `json:"seq"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// SampleEvent announces a recorded sample
type SampleEvent struct {
	StartAt uint64 `json:"start_at"`
	Value   uint8  `json:"value"`
	At      int64  `json:"at"`
}

// SessionEvent announces a new or compacted session
type SessionEvent struct {
	StartAt uint64 `json:"start_at"`
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// Client is a connected live feed client
type Client struct {
	ID          string
	Conn        *websocket.Conn
	ConnectedAt time.Time
	IPAddress   string

	writeMu sync.Mutex
}

// WriteMessage writes one websocket message. Safe for concurrent use.
func (c *Client) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.Conn.WriteMessage(messageType, data)
}
