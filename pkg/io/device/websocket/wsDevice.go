package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xpanvictor/voxchat/pkg/io/device"
)

const writeWait = 10 * time.Second

var ErrClosed = errors.New("ws endpoint closed")

// Message is the envelope of every JSON frame sent to the browser.
type Message struct {
	Name      string    `json:"name"`
	SessionID uuid.UUID `json:"sessionId"`
	Payload   any       `json:"payload,omitempty"`
}

// wsEndpoint serialises writes; gorilla connections allow one writer at a time.
type wsEndpoint struct {
	id     uuid.UUID
	client *websocket.Conn
	caps   device.Capabilities

	wmu sync.Mutex
	mu  sync.RWMutex

	lastActive time.Time
	closed     bool
}

// Caps implements device.Endpoint.
func (w *wsEndpoint) Caps() device.Capabilities {
	return w.caps
}

// Close implements device.Endpoint.
func (w *wsEndpoint) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.wmu.Lock()
	_ = w.client.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	w.wmu.Unlock()
	return w.client.Close()
}

// ID implements device.Endpoint.
func (w *wsEndpoint) ID() device.EndpointID {
	return device.EndpointID(w.id)
}

func (w *wsEndpoint) Touch() {
	w.mu.Lock()
	w.lastActive = time.Now()
	w.mu.Unlock()
}

// IsAlive implements device.Endpoint.
func (w *wsEndpoint) IsAlive() bool {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return false
	}
	w.wmu.Lock()
	defer w.wmu.Unlock()
	return w.client.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)) == nil
}

// LastActive implements device.Endpoint.
func (w *wsEndpoint) LastActive() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastActive
}

// SendAudioFrame implements device.Endpoint. Frames go out as binary messages.
func (w *wsEndpoint) SendAudioFrame(sessionID uuid.UUID, seq int, frame []byte) error {
	return w.write(func() error {
		return w.client.WriteMessage(websocket.BinaryMessage, frame)
	})
}

// SendEvent implements device.Endpoint.
func (w *wsEndpoint) SendEvent(sessionID uuid.UUID, name string, payload any) error {
	return w.write(func() error {
		return w.client.WriteJSON(Message{Name: name, SessionID: sessionID, Payload: payload})
	})
}

func (w *wsEndpoint) write(fn func() error) error {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	w.wmu.Lock()
	defer w.wmu.Unlock()
	if err := w.client.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return fn()
}

// Transport implements device.Endpoint.
func (w *wsEndpoint) Transport() device.Transport {
	return device.TransportWS
}

func New(client *websocket.Conn, caps device.Capabilities) device.Endpoint {
	return &wsEndpoint{
		id:         uuid.New(),
		client:     client,
		caps:       caps,
		lastActive: time.Now(),
	}
}
