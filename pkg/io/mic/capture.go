// Package mic turns PCM frames streamed by a browser into single utterances.
//
// The browser only streams once it hears speech, so "no frame before the listen
// timeout" is the no-speech condition. An utterance ends when the browser sends
// its end marker, when the phrase limit is reached, or when ctx is cancelled.
package mic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxchat/pkg/Logger"
	"github.com/xpanvictor/voxchat/pkg/io/stt"
	audioring "github.com/xpanvictor/voxchat/pkg/io/stt/audioRing"
)

var (
	ErrNoSpeech     = errors.New("mic: no speech detected before timeout")
	ErrNoAudio      = errors.New("mic: no audio was recorded")
	ErrCaptureBusy  = errors.New("mic: capture already in progress")
	ErrNotListening = errors.New("mic: not listening")
)

const (
	DefaultBufferBytes = 4 * 1024 * 1024
	DefaultPhraseLimit = 30 * time.Second
)

// Cue tells capture devices when to start and stop streaming.
type Cue interface {
	StartListening(ctx context.Context, timeout time.Duration) error
	StopListening(ctx context.Context) error
}

type Config struct {
	BufferBytes int
	PhraseLimit time.Duration
}

// Microphone collects frames for one capture at a time.
type Microphone struct {
	cfg    Config
	cue    Cue
	logger *Logger.Logger
	ring   audioring.AudioRingBuffer

	mu      sync.Mutex
	armed   bool
	heard   chan struct{}
	ended   chan struct{}
	isHeard bool
	isEnded bool
}

func New(cfg Config, cue Cue, logger *Logger.Logger) *Microphone {
	if cfg.BufferBytes <= 0 {
		cfg.BufferBytes = DefaultBufferBytes
	}
	if cfg.PhraseLimit <= 0 {
		cfg.PhraseLimit = DefaultPhraseLimit
	}
	return &Microphone{
		cfg:    cfg,
		cue:    cue,
		logger: logger,
		ring:   audioring.New(cfg.BufferBytes),
	}
}

// Capture arms the microphone and blocks until one utterance is complete.
// Returns ErrNoSpeech when nothing arrives within timeout.
func (m *Microphone) Capture(ctx context.Context, timeout time.Duration) (stt.Audio, error) {
	heard, ended, err := m.arm()
	if err != nil {
		return stt.Audio{}, err
	}
	defer m.disarm()

	if m.cue != nil {
		if err := m.cue.StartListening(ctx, timeout); err != nil {
			return stt.Audio{}, fmt.Errorf("cue listening: %w", err)
		}
		defer func() {
			if err := m.cue.StopListening(context.WithoutCancel(ctx)); err != nil {
				m.logger.Debugf("stop listening cue: %v", err)
			}
		}()
	}

	startedAt := time.Now()
	wait := time.NewTimer(timeout)
	defer wait.Stop()

	select {
	case <-ctx.Done():
		return stt.Audio{}, ctx.Err()
	case <-wait.C:
		return stt.Audio{}, ErrNoSpeech
	case <-heard:
	}

	limit := time.NewTimer(m.cfg.PhraseLimit)
	defer limit.Stop()

	select {
	case <-ctx.Done():
		return stt.Audio{}, ctx.Err()
	case <-limit.C:
		m.logger.Infof("phrase limit %s reached, closing capture", m.cfg.PhraseLimit)
	case <-ended:
	}

	return m.assemble(startedAt)
}

// Feed buffers one frame. Frames arriving while not armed are dropped.
func (m *Microphone) Feed(frame audioring.AudioInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.armed {
		return ErrNotListening
	}
	if len(frame.Data) == 0 {
		return nil
	}
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now()
	}
	if err := m.ring.Enqueue(frame); err != nil {
		return err
	}
	if !m.isHeard {
		m.isHeard = true
		close(m.heard)
	}
	return nil
}

// End marks the current utterance as finished.
func (m *Microphone) End() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.armed {
		return ErrNotListening
	}
	if !m.isHeard {
		// end before any audio still counts as speech onset so Capture can
		// report an empty recording instead of waiting for the timeout
		m.isHeard = true
		close(m.heard)
	}
	if !m.isEnded {
		m.isEnded = true
		close(m.ended)
	}
	return nil
}

// Listening reports whether a capture is in progress.
func (m *Microphone) Listening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

func (m *Microphone) arm() (<-chan struct{}, <-chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.armed {
		return nil, nil, ErrCaptureBusy
	}
	m.ring.Reset()
	m.armed = true
	m.heard = make(chan struct{})
	m.ended = make(chan struct{})
	m.isHeard = false
	m.isEnded = false
	return m.heard, m.ended, nil
}

func (m *Microphone) disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = false
	m.ring.Reset()
}

func (m *Microphone) assemble(startedAt time.Time) (stt.Audio, error) {
	frames := m.ring.Drain()

	var (
		pcm        []byte
		sampleRate int32
		channels   int16
	)
	for _, f := range frames {
		if sampleRate == 0 {
			sampleRate, channels = f.SampleRate, f.Channels
		}
		pcm = append(pcm, f.Data...)
	}
	if len(pcm) == 0 {
		return stt.Audio{}, ErrNoAudio
	}

	wav, err := stt.EncodeWAV(pcm, sampleRate, channels)
	if err != nil {
		return stt.Audio{}, fmt.Errorf("encode wav: %w", err)
	}
	audio := stt.Audio{
		ID:         uuid.New(),
		Data:       wav,
		Format:     "wav",
		SampleRate: sampleRate,
		Channels:   channels,
		CapturedAt: startedAt,
	}
	if sampleRate > 0 && channels > 0 {
		samples := len(pcm) / 2 / int(channels)
		audio.Duration = time.Duration(samples) * time.Second / time.Duration(sampleRate)
	}
	m.logger.Debugf("captured %d frames, %d bytes, %s", len(frames), len(pcm), audio.Duration)
	return audio, nil
}
