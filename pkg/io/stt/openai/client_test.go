package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xpanvictor/voxchat/internal/config"
	"github.com/xpanvictor/voxchat/pkg/Logger"
	"github.com/xpanvictor/voxchat/pkg/io/stt"
)

func transcriptionServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		} else if r.FormValue("model") != "whisper-large-v3" {
			t.Errorf("unexpected model %q", r.FormValue("model"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTranscriber(url string) *Transcriber {
	return New(config.STTConfig{
		Model:    "whisper-large-v3",
		BaseURL:  url + "/openai/v1/",
		APIKey:   "test-key",
		Language: "en",
	}, Logger.NewNop())
}

var utterance = stt.Audio{Data: []byte("RIFF...."), Format: "wav"}

func TestTranscribe(t *testing.T) {
	srv := transcriptionServer(t, http.StatusOK, `{"text":" Turn on the lights. "}`)
	text, err := newTranscriber(srv.URL).Transcribe(context.Background(), utterance)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "Turn on the lights." {
		t.Errorf("unexpected text %q", text)
	}
}

func TestTranscribeNoWords(t *testing.T) {
	srv := transcriptionServer(t, http.StatusOK, `{"text":""}`)
	if _, err := newTranscriber(srv.URL).Transcribe(context.Background(), utterance); !errors.Is(err, stt.ErrUnintelligible) {
		t.Errorf("expected ErrUnintelligible, got %v", err)
	}
}

func TestTranscribeServiceDown(t *testing.T) {
	srv := transcriptionServer(t, http.StatusServiceUnavailable, `{"error":{"message":"overloaded"}}`)
	_, err := newTranscriber(srv.URL).Transcribe(context.Background(), utterance)
	if err == nil || errors.Is(err, stt.ErrUnintelligible) {
		t.Errorf("expected service error, got %v", err)
	}
}
