package stt

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnintelligible is returned when the service answered but found no words.
	ErrUnintelligible = errors.New("stt: audio produced no usable text")
	ErrNoAudio        = errors.New("stt: no audio provided")
)

// Audio is one captured utterance, already encoded (WAV unless Format says otherwise).
type Audio struct {
	ID         uuid.UUID
	Data       []byte
	Format     string
	SampleRate int32
	Channels   int16
	CapturedAt time.Time
	Duration   time.Duration
}

func (a Audio) Empty() bool {
	return len(a.Data) == 0
}

// ContentType maps Format to a MIME type for uploads.
func (a Audio) ContentType() string {
	switch a.Format {
	case "", "wav":
		return "audio/wav"
	case "webm":
		return "audio/webm"
	case "ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

// Filename is the upload name, some services sniff the extension.
func (a Audio) Filename() string {
	f := a.Format
	if f == "" {
		f = "wav"
	}
	return "audio." + f
}

type Transcriber interface {
	// Transcribe returns the recognised text, ErrUnintelligible when the audio
	// held no words, or another error when the service could not be reached.
	Transcribe(ctx context.Context, audio Audio) (string, error)
}
