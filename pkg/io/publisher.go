package io

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxchat/pkg/Logger"
	"github.com/xpanvictor/voxchat/pkg/io/device"
	"github.com/xpanvictor/voxchat/pkg/io/playback"
	"github.com/xpanvictor/voxchat/pkg/io/registry"
)

// Outbound event names.
const (
	EventRender    = "render"
	EventListening = "listening"
	EventAudio     = "audio"
	EventNotice    = "notice"
)

const DefaultAckTimeout = 2 * time.Minute

var ErrAckTimeout = errors.New("playback not acknowledged in time")

// AudioMeta precedes the binary frame carrying a clip.
type AudioMeta struct {
	ClipID      uuid.UUID `json:"clipId"`
	ContentType string    `json:"contentType"`
	Size        int       `json:"size"`
}

type ListeningMeta struct {
	Active    bool  `json:"active"`
	TimeoutMs int64 `json:"timeoutMs,omitempty"`
}

// Publisher pushes session output to the endpoints attached to one session.
// Rendering fans out to every endpoint; audio goes to the most recently
// active one and Play blocks until that endpoint acknowledges the clip.
type Publisher struct {
	reg        registry.Registry
	sessionID  uuid.UUID
	ackTimeout time.Duration
	logger     *Logger.Logger

	mu   sync.Mutex
	acks map[uuid.UUID]chan struct{}
	seq  int
}

func New(reg registry.Registry, sessionID uuid.UUID, ackTimeout time.Duration, logger *Logger.Logger) *Publisher {
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	return &Publisher{
		reg:        reg,
		sessionID:  sessionID,
		ackTimeout: ackTimeout,
		logger:     logger,
		acks:       make(map[uuid.UUID]chan struct{}),
	}
}

// SendEvent delivers to every live text sink. Returns an error only when no
// endpoint received it.
func (p *Publisher) SendEvent(ctx context.Context, name string, payload any) error {
	eps, ok := p.reg.FetchTextFanoutEndpoint(p.sessionID)
	if !ok {
		return fmt.Errorf("no endpoint attached for %s", name)
	}
	delivered := 0
	for _, ep := range eps {
		if err := ep.SendEvent(p.sessionID, name, payload); err != nil {
			p.logger.Debugf("event %s to %s failed: %v", name, ep.ID(), err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("couldn't broadcast %s", name)
	}
	return nil
}

func (p *Publisher) SendRender(ctx context.Context, view any) error {
	return p.SendEvent(ctx, EventRender, view)
}

// StartListening asks the capture endpoint to stream microphone frames.
func (p *Publisher) StartListening(ctx context.Context, timeout time.Duration) error {
	ep, ok := p.reg.SelectEndpointWithMRU(p.sessionID, device.Capabilities{AudioSource: true})
	if !ok {
		return fmt.Errorf("no microphone endpoint attached")
	}
	return ep.SendEvent(p.sessionID, EventListening, ListeningMeta{Active: true, TimeoutMs: timeout.Milliseconds()})
}

func (p *Publisher) StopListening(ctx context.Context) error {
	return p.SendEvent(ctx, EventListening, ListeningMeta{Active: false})
}

// Play implements playback.Player.
func (p *Publisher) Play(ctx context.Context, clip playback.Clip) error {
	if len(clip.Data) == 0 {
		return playback.ErrNoClip
	}
	ep, ok := p.reg.SelectEndpointWithMRU(p.sessionID, device.Capabilities{AudioSink: true})
	if !ok {
		return playback.ErrNoOutput
	}
	if clip.ID == uuid.Nil {
		clip.ID = uuid.New()
	}

	done := p.expect(clip.ID)
	defer p.forget(clip.ID)

	meta := AudioMeta{ClipID: clip.ID, ContentType: clip.ContentType, Size: len(clip.Data)}
	if err := ep.SendEvent(p.sessionID, EventAudio, meta); err != nil {
		return fmt.Errorf("load clip on %s: %w", ep.ID(), err)
	}
	if err := ep.SendAudioFrame(p.sessionID, p.nextSeq(), clip.Data); err != nil {
		return fmt.Errorf("send clip to %s: %w", ep.ID(), err)
	}

	timer := time.NewTimer(p.ackTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("clip %s: %w", clip.ID, ErrAckTimeout)
	}
}

// Ack marks a clip as played. Unknown ids are ignored and reported false.
func (p *Publisher) Ack(clipID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.acks[clipID]
	if !ok {
		return false
	}
	close(ch)
	delete(p.acks, clipID)
	return true
}

// Endpoints is the number of endpoints attached to the session.
func (p *Publisher) Endpoints() int {
	return len(p.reg.ListSessionEndpoints(p.sessionID))
}

func (p *Publisher) expect(id uuid.UUID) <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan struct{})
	p.acks[id] = ch
	return ch
}

func (p *Publisher) forget(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.acks, id)
}

func (p *Publisher) nextSeq() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return p.seq
}
