package device

import (
	"time"

	"github.com/google/uuid"
)

type Transport string

const (
	TransportWS Transport = "ws"
)

type Capabilities struct {
	AudioSink   bool // can play audio clips
	AudioSource bool // can stream microphone frames
	TextSink    bool // can render the transcript
}

type EndpointID uuid.UUID

func (id EndpointID) String() string {
	return uuid.UUID(id).String()
}

type Endpoint interface {
	// Identity
	ID() EndpointID
	Caps() Capabilities
	Transport() Transport
	// abstraction for publisher
	SendAudioFrame(sessionID uuid.UUID, seq int, frame []byte) error
	SendEvent(sessionID uuid.UUID, name string, payload any) error
	Touch()
	// lifecyle
	IsAlive() bool
	Close() error
	LastActive() time.Time
}

// Device is one browser tab (or other client) attached to a session.
type Device struct {
	SessionID  uuid.UUID
	DeviceID   uuid.UUID
	Caps       Capabilities
	LastActive time.Time
	// each device can handle multiple endpoints
	Endpoints map[EndpointID]Endpoint
}
