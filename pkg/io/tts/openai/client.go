// Package openai synthesizes speech through an OpenAI compatible
// /audio/speech endpoint.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/xpanvictor/voxchat/internal/config"
	"github.com/xpanvictor/voxchat/pkg/io/tts"
)

var contentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"opus": "audio/ogg",
	"aac":  "audio/aac",
	"flac": "audio/flac",
}

type Synthesizer struct {
	client openai.Client
	model  string
	format string
	voices []string
}

func New(cfg config.TTSConfig) *Synthesizer {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	format := cfg.Format
	if _, ok := contentTypes[format]; !ok {
		format = "mp3"
	}
	return &Synthesizer{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		format: format,
		voices: cfg.Voices,
	}
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) (tts.Speech, error) {
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(s.format),
	})
	if err != nil {
		return tts.Speech{}, fmt.Errorf("speech request with voice %s failed: %w", voice, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Speech{}, fmt.Errorf("read speech body: %w", err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = contentTypes[s.format]
	}
	return tts.CheckSpeech(tts.Speech{Data: data, ContentType: ct}, voice)
}

// ListVoices returns the configured voice names; the API has no listing call.
func (s *Synthesizer) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	voices := make([]tts.Voice, 0, len(s.voices))
	for _, v := range s.voices {
		voices = append(voices, tts.Voice{ID: v, ShortName: v})
	}
	return voices, nil
}
