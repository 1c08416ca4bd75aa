// Package tts defines the speech synthesis contract shared by the piper and
// OpenAI-compatible backends.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoAudio is returned when the service accepted the request but produced no audio.
var ErrNoAudio = errors.New("tts: no audio received")

// Voice is one entry of a backend's voice catalog.
type Voice struct {
	ID        string `json:"id"`
	Locale    string `json:"locale"`
	ShortName string `json:"shortName"`
}

// Speech is a synthesized clip held in memory.
type Speech struct {
	Data        []byte
	ContentType string
}

// Ext is the file extension matching the clip's content type, without the dot.
func (s Speech) Ext() string {
	ct := strings.ToLower(s.ContentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	switch strings.TrimSpace(ct) {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/ogg", "audio/opus":
		return "ogg"
	case "audio/flac":
		return "flac"
	case "audio/aac":
		return "aac"
	default:
		return "bin"
	}
}

type Synthesizer interface {
	// Synthesize renders text with the given voice. Returns ErrNoAudio when the
	// service answered with an empty body.
	Synthesize(ctx context.Context, text, voiceID string) (Speech, error)
	// ListVoices returns the backend's catalog; ordering is not guaranteed.
	ListVoices(ctx context.Context) ([]Voice, error)
}

// CheckSpeech turns an empty clip into ErrNoAudio tagged with the voice.
func CheckSpeech(s Speech, voiceID string) (Speech, error) {
	if len(s.Data) == 0 {
		return Speech{}, fmt.Errorf("voice %s: %w", voiceID, ErrNoAudio)
	}
	return s, nil
}
