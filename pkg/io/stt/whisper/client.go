package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xpanvictor/voxchat/pkg/Logger"
	"github.com/xpanvictor/voxchat/pkg/io/stt"
)

// TranscriptionResponse represents the response from Whisper STT service
type TranscriptionResponse struct {
	Text        string                 `json:"text"`
	Language    string                 `json:"language"`
	Segments    []TranscriptionSegment `json:"segments,omitempty"`
	GeneratedAt time.Time
}

// TranscriptionSegment represents a timed segment of transcription
type TranscriptionSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	ID    int     `json:"id"`
}

// WhisperClient handles communication with a whisper-asr-webservice instance
type WhisperClient struct {
	baseURL    string
	language   string
	httpClient *http.Client
	logger     *Logger.Logger
}

// NewWhisperClient creates a new Whisper client
func NewWhisperClient(baseURL, language string, timeout time.Duration, logger *Logger.Logger) *WhisperClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if language == "" {
		language = "en"
	}
	return &WhisperClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Transcribe implements stt.Transcriber.
func (w *WhisperClient) Transcribe(ctx context.Context, audio stt.Audio) (string, error) {
	resp, err := w.TranscribeAudio(ctx, audio)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", stt.ErrUnintelligible
	}
	return text, nil
}

// TranscribeAudio uploads one utterance and returns the raw transcription
func (w *WhisperClient) TranscribeAudio(ctx context.Context, audio stt.Audio) (*TranscriptionResponse, error) {
	if audio.Empty() {
		return nil, stt.ErrNoAudio
	}

	// Create multipart form data
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio_file", audio.Filename())
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	q := url.Values{}
	q.Set("encode", "true")
	q.Set("task", "transcribe")
	q.Set("language", w.language)
	q.Set("output", "json")
	requestURL := fmt.Sprintf("%s/asr?%s", w.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		w.logger.Errorf("Whisper service error (status %d): %s", resp.StatusCode, string(responseBody))
		return nil, fmt.Errorf("whisper service returned status %d: %s", resp.StatusCode, string(responseBody))
	}

	if len(bytes.TrimSpace(responseBody)) == 0 {
		return &TranscriptionResponse{GeneratedAt: time.Now()}, nil
	}

	var transcription TranscriptionResponse
	if err := json.Unmarshal(responseBody, &transcription); err != nil {
		// some deployments answer with plain text regardless of output=json
		w.logger.Debugf("Treating whisper response as plain text: %q", string(responseBody))
		return &TranscriptionResponse{
			Text:        string(responseBody),
			Language:    w.language,
			GeneratedAt: time.Now(),
		}, nil
	}
	transcription.GeneratedAt = time.Now()

	w.logger.Debugf("Whisper transcription: %s (language: %s)", transcription.Text, transcription.Language)
	return &transcription, nil
}
