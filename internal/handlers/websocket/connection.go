package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xpanvictor/voxchat/pkg/io/device"
	wsdevice "github.com/xpanvictor/voxchat/pkg/io/device/websocket"
)

const (
	DefaultSampleRate int32 = 16000
	DefaultChannels   int16 = 1
)

// Connection is one browser tab attached to the session
type Connection struct {
	DeviceID     uuid.UUID
	Conn         *websocket.Conn
	Endpoint     device.Endpoint
	Capabilities device.Capabilities
	ConnectedAt  time.Time

	mutex      sync.RWMutex
	sampleRate int32
	channels   int16
	lastActive time.Time
}

// NewConnection wraps conn; writes go through the device endpoint
func NewConnection(conn *websocket.Conn, caps device.Capabilities) *Connection {
	now := time.Now()
	return &Connection{
		DeviceID:     uuid.New(),
		Conn:         conn,
		Endpoint:     wsdevice.New(conn, caps),
		Capabilities: caps,
		ConnectedAt:  now,
		sampleRate:   DefaultSampleRate,
		channels:     DefaultChannels,
		lastActive:   now,
	}
}

// SetFormat records the PCM format of the tab's microphone
func (c *Connection) SetFormat(sampleRate int32, channels int16) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if sampleRate > 0 {
		c.sampleRate = sampleRate
	}
	if channels > 0 {
		c.channels = channels
	}
}

func (c *Connection) Format() (int32, int16) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.sampleRate, c.channels
}

// UpdateLastActive updates the last activity timestamp
func (c *Connection) UpdateLastActive() {
	c.mutex.Lock()
	c.lastActive = time.Now()
	c.mutex.Unlock()
	c.Endpoint.Touch()
}

func (c *Connection) LastActive() time.Time {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.lastActive
}

// IsExpired checks if the connection has been idle longer than timeout
func (c *Connection) IsExpired(timeout time.Duration) bool {
	return time.Since(c.LastActive()) > timeout
}

// SendEvent writes one named event to this tab only
func (c *Connection) SendEvent(sessionID uuid.UUID, name string, payload any) error {
	return c.Endpoint.SendEvent(sessionID, name, payload)
}

// SendError sends an error message to the client
func (c *Connection) SendError(sessionID uuid.UUID, code, message string) error {
	return c.SendEvent(sessionID, EventError, ErrorMessage{
		Code:    code,
		Message: message,
	})
}

// Close closes the endpoint and the underlying socket
func (c *Connection) Close() error {
	return c.Endpoint.Close()
}
