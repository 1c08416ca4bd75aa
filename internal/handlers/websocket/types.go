package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxchat/pkg/io/device"
)

// MessageType defines the type of an inbound WebSocket message
type MessageType string

const (
	MessageTypeInit         MessageType = "init"
	MessageTypeStartTalk    MessageType = "start_talk"
	MessageTypeAudioEnd     MessageType = "audio_end"
	MessageTypePlaybackDone MessageType = "playback_done"
	MessageTypeClearHistory MessageType = "clear_history"
	MessageTypeSelectVoice  MessageType = "select_voice"
)

// Outbound event names not owned by the publisher
const (
	EventInit  = "init"
	EventError = "error"
)

// WSMessage represents the structure of inbound JSON messages. Audio arrives
// as binary frames of raw 16-bit PCM in the format announced by init.
type WSMessage struct {
	Type     MessageType     `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	Sequence int             `json:"sequence,omitempty"`
}

// InitMessage contains initialization data
type InitMessage struct {
	Capabilities *device.Capabilities `json:"capabilities,omitempty"`
	SampleRate   int32                `json:"sampleRate,omitempty"`
	Channels     int16                `json:"channels,omitempty"`
}

// InitAck answers init
type InitAck struct {
	Status     string    `json:"status"`
	SessionID  uuid.UUID `json:"sessionId"`
	DeviceID   uuid.UUID `json:"deviceId"`
	SampleRate int32     `json:"sampleRate"`
	Channels   int16     `json:"channels"`
}

// PlaybackDoneMessage acknowledges that a clip finished playing
type PlaybackDoneMessage struct {
	ClipID uuid.UUID `json:"clipId"`
}

type SelectVoiceMessage struct {
	ID string `json:"id"`
}

// ErrorMessage contains error information
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
