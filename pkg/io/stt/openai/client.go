// Package openai transcribes utterances with any OpenAI compatible
// /audio/transcriptions endpoint (Groq, OpenAI, local whisper servers).
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/xpanvictor/voxchat/internal/config"
	"github.com/xpanvictor/voxchat/pkg/Logger"
	"github.com/xpanvictor/voxchat/pkg/io/stt"
)

type Transcriber struct {
	client   openai.Client
	model    string
	language string
	logger   *Logger.Logger
}

func New(cfg config.STTConfig, logger *Logger.Logger) *Transcriber {
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
	return &Transcriber{
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		language: cfg.Language,
		logger:   logger,
	}
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, audio stt.Audio) (string, error) {
	if audio.Empty() {
		return "", stt.ErrNoAudio
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio.Data), audio.Filename(), audio.ContentType()),
		Model: openai.AudioModel(t.model),
	}
	if t.language != "" {
		params.Language = openai.String(t.language)
	}

	res, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}

	text := strings.TrimSpace(res.Text)
	t.logger.Debugf("transcribed %d bytes with %s: %q", len(audio.Data), t.model, text)
	if text == "" {
		return "", stt.ErrUnintelligible
	}
	return text, nil
}
