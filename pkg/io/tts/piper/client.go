package piper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/xpanvictor/voxchat/pkg/io/tts"
)

// Piper speaks the OpenTTS style HTTP API served by piper/mimic3 containers:
// GET /api/text-to-speech?text=...&voice=... and GET /api/voices.
type Piper struct {
	BaseURL string        // e.g. "http://tts:5000"
	Client  *http.Client  // inject; default if nil
	Voice   string        // default voice (override per-call)
	Timeout time.Duration // request timeout
}

func New(bu string, timeout time.Duration) *Piper {
	p := &Piper{BaseURL: strings.TrimRight(bu, "/"), Timeout: timeout}
	p.Client = &http.Client{Timeout: p.timeout()}
	return p
}

// voiceEntry is one value of the /api/voices object.
type voiceEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Locale   string `json:"locale"`
	Language string `json:"language"`
	TTSName  string `json:"tts_name"`
}

// Synthesize implements tts.Synthesizer.
func (p *Piper) Synthesize(ctx context.Context, text, voice string) (tts.Speech, error) {
	rc, ct, err := p.DoTTS(ctx, text, voice)
	if err != nil {
		return tts.Speech{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return tts.Speech{}, fmt.Errorf("read tts body: %w", err)
	}
	if ct == "" {
		ct = "audio/wav"
	}
	return tts.CheckSpeech(tts.Speech{Data: data, ContentType: ct}, voice)
}

// ListVoices implements tts.Synthesizer. Voices come back sorted by id.
func (p *Piper) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/api/voices", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list voices http %d: %s", resp.StatusCode, string(b))
	}

	var entries map[string]voiceEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode voices: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	voices := make([]tts.Voice, 0, len(ids))
	for _, id := range ids {
		e := entries[id]
		locale := e.Locale
		if locale == "" {
			locale = e.Language
		}
		short := e.Name
		if short == "" {
			short = id
		}
		voices = append(voices, tts.Voice{ID: id, Locale: locale, ShortName: short})
	}
	return voices, nil
}

// DoTTS returns the raw audio body; the caller must close it.
func (p *Piper) DoTTS(ctx context.Context, text string, optVoice string) (io.ReadCloser, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", fmt.Errorf("empty text")
	}
	voice := p.Voice
	if optVoice != "" {
		voice = optVoice
	}

	u, err := url.Parse(p.BaseURL + "/api/text-to-speech")
	if err != nil {
		return nil, "", err
	}
	q := u.Query()
	q.Set("text", text)
	if voice != "" {
		q.Set("voice", voice)
	}
	u.RawQuery = q.Encode()

	// the body outlives this call, so the timeout lives on the client
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "audio/wav")

	start := time.Now()
	resp, err := p.client().Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("tts http request failed: %w (url=%s)", err, u.String())
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, "", fmt.Errorf("tts http %d: %s (url=%s, dur=%s)", resp.StatusCode, string(b), u.String(), time.Since(start))
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func (p *Piper) timeout() time.Duration {
	if p.Timeout <= 0 {
		return 30 * time.Second
	}
	return p.Timeout
}

func (p *Piper) client() *http.Client {
	if p.Client == nil {
		return http.DefaultClient
	}
	return p.Client
}
