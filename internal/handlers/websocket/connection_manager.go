package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxchat/pkg/Logger"
	"github.com/xpanvictor/voxchat/pkg/observe"
)

const (
	DefaultIdleTimeout     = 30 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

// ConnectionManager tracks the tabs attached to the session
type ConnectionManager struct {
	logger      *Logger.Logger
	metrics     *observe.Metrics
	connections map[uuid.UUID]*Connection
	mutex       sync.RWMutex
	stopOnce    sync.Once
	stopCleanup chan struct{}
	idleTimeout time.Duration
}

// NewConnectionManager creates a new connection manager and starts the idle
// sweep
func NewConnectionManager(logger *Logger.Logger, metrics *observe.Metrics, idleTimeout time.Duration) *ConnectionManager {
	if metrics == nil {
		metrics = observe.Discard()
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	cm := &ConnectionManager{
		logger:      logger,
		metrics:     metrics,
		connections: make(map[uuid.UUID]*Connection),
		stopCleanup: make(chan struct{}),
		idleTimeout: idleTimeout,
	}

	cm.startCleanupRoutine(DefaultCleanupInterval)

	return cm
}

// RegisterConnection registers a new connection
func (cm *ConnectionManager) RegisterConnection(conn *Connection) {
	cm.mutex.Lock()
	cm.connections[conn.DeviceID] = conn
	cm.mutex.Unlock()

	cm.metrics.ActiveEndpoints.Add(context.Background(), 1)
	cm.logger.Infof("Registered connection %s", conn.DeviceID)
}

// UnregisterConnection removes and closes a connection
func (cm *ConnectionManager) UnregisterConnection(deviceID uuid.UUID) {
	cm.mutex.Lock()
	conn, exists := cm.connections[deviceID]
	delete(cm.connections, deviceID)
	cm.mutex.Unlock()

	if !exists {
		return
	}
	cm.metrics.ActiveEndpoints.Add(context.Background(), -1)
	cm.logger.Infof("Unregistering connection %s", deviceID)
	if err := conn.Close(); err != nil {
		cm.logger.Debugf("closing connection %s: %v", deviceID, err)
	}
}

// GetConnection retrieves a connection by device ID
func (cm *ConnectionManager) GetConnection(deviceID uuid.UUID) (*Connection, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	conn, exists := cm.connections[deviceID]
	return conn, exists
}

// GetConnectionCount returns the number of open connections
func (cm *ConnectionManager) GetConnectionCount() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	return len(cm.connections)
}

func (cm *ConnectionManager) startCleanupRoutine(every time.Duration) {
	ticker := time.NewTicker(every)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cm.cleanupExpiredConnections()
			case <-cm.stopCleanup:
				return
			}
		}
	}()
}

// cleanupExpiredConnections closes idle sockets. The read loop of each one
// then fails and unregisters it.
func (cm *ConnectionManager) cleanupExpiredConnections() int {
	cm.mutex.RLock()
	expired := make([]*Connection, 0)
	for _, conn := range cm.connections {
		if conn.IsExpired(cm.idleTimeout) {
			expired = append(expired, conn)
		}
	}
	cm.mutex.RUnlock()

	for _, conn := range expired {
		cm.logger.Infof("Closing idle connection %s", conn.DeviceID)
		_ = conn.Close()
	}
	if len(expired) > 0 {
		cm.logger.Infof("Closed %d idle connections", len(expired))
	}
	return len(expired)
}

// Close stops the sweep and closes every connection
func (cm *ConnectionManager) Close() error {
	cm.stopOnce.Do(func() { close(cm.stopCleanup) })

	cm.mutex.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mutex.RUnlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			cm.logger.Debugf("closing connection %s: %v", conn.DeviceID, err)
		}
	}

	cm.logger.Infof("Connection manager closed")
	return nil
}

// ConnectionStats describes one open connection
type ConnectionStats struct {
	DeviceID     string    `json:"device_id"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActive   time.Time `json:"last_active"`
	AudioSink    bool      `json:"audio_sink"`
	AudioSource  bool      `json:"audio_source"`
	TextSink     bool      `json:"text_sink"`
	IsAlive      bool      `json:"is_alive"`
	SampleRateHz int32     `json:"sample_rate_hz"`
}

type Stats struct {
	ActiveConnections int               `json:"active_connections"`
	IdleTimeout       string            `json:"idle_timeout"`
	Connections       []ConnectionStats `json:"connections"`
}

// GetStats returns connection manager statistics
func (cm *ConnectionManager) GetStats() Stats {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	stats := Stats{
		ActiveConnections: len(cm.connections),
		IdleTimeout:       cm.idleTimeout.String(),
		Connections:       make([]ConnectionStats, 0, len(cm.connections)),
	}
	for _, conn := range cm.connections {
		rate, _ := conn.Format()
		stats.Connections = append(stats.Connections, ConnectionStats{
			DeviceID:     conn.DeviceID.String(),
			ConnectedAt:  conn.ConnectedAt,
			LastActive:   conn.LastActive(),
			AudioSink:    conn.Capabilities.AudioSink,
			AudioSource:  conn.Capabilities.AudioSource,
			TextSink:     conn.Capabilities.TextSink,
			IsAlive:      conn.Endpoint.IsAlive(),
			SampleRateHz: rate,
		})
	}
	return stats
}
