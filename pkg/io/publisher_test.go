package io

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxchat/pkg/Logger"
	"github.com/xpanvictor/voxchat/pkg/io/device"
	"github.com/xpanvictor/voxchat/pkg/io/playback"
	memoryregistry "github.com/xpanvictor/voxchat/pkg/io/registry/memoryRegistry"
)

type sentEvent struct {
	name    string
	payload any
}

type fakeEndpoint struct {
	id     device.EndpointID
	caps   device.Capabilities
	active time.Time
	fail   bool

	mu     sync.Mutex
	events []sentEvent
	frames [][]byte
	onSend func(name string, payload any)
}

func newFakeEndpoint(caps device.Capabilities, active time.Time) *fakeEndpoint {
	return &fakeEndpoint{id: device.EndpointID(uuid.New()), caps: caps, active: active}
}

func (f *fakeEndpoint) ID() device.EndpointID       { return f.id }
func (f *fakeEndpoint) Caps() device.Capabilities   { return f.caps }
func (f *fakeEndpoint) Transport() device.Transport { return device.TransportWS }
func (f *fakeEndpoint) Touch()                      {}
func (f *fakeEndpoint) IsAlive() bool               { return !f.fail }
func (f *fakeEndpoint) Close() error                { return nil }
func (f *fakeEndpoint) LastActive() time.Time       { return f.active }

func (f *fakeEndpoint) SendAudioFrame(sessionID uuid.UUID, seq int, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeEndpoint) SendEvent(sessionID uuid.UUID, name string, payload any) error {
	if f.fail {
		return errors.New("gone")
	}
	f.mu.Lock()
	f.events = append(f.events, sentEvent{name, payload})
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(name, payload)
	}
	return nil
}

func (f *fakeEndpoint) eventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.events))
	for _, e := range f.events {
		names = append(names, e.name)
	}
	return names
}

func setup(t *testing.T, eps ...*fakeEndpoint) *Publisher {
	t.Helper()
	reg := memoryregistry.New()
	sessionID := uuid.New()
	for _, ep := range eps {
		deviceID := uuid.New()
		if err := reg.UpsertDevice(sessionID, device.Device{DeviceID: deviceID, Caps: ep.caps}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if err := reg.AttachEndpoint(sessionID, deviceID, ep); err != nil {
			t.Fatalf("attach: %v", err)
		}
	}
	return New(reg, sessionID, 200*time.Millisecond, Logger.NewNop())
}

var fullCaps = device.Capabilities{AudioSink: true, AudioSource: true, TextSink: true}

func TestRenderFansOut(t *testing.T) {
	a := newFakeEndpoint(fullCaps, time.Now())
	b := newFakeEndpoint(device.Capabilities{TextSink: true}, time.Now())
	p := setup(t, a, b)

	if err := p.SendRender(context.Background(), map[string]string{"phase": "idle"}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(a.eventNames()) != 1 || len(b.eventNames()) != 1 {
		t.Errorf("expected one render per endpoint, got %v %v", a.eventNames(), b.eventNames())
	}
}

func TestSendEventWithoutEndpoints(t *testing.T) {
	p := setup(t)
	if err := p.SendEvent(context.Background(), EventNotice, "x"); err == nil {
		t.Error("expected error without endpoints")
	}
}

func TestPlayWaitsForAck(t *testing.T) {
	old := newFakeEndpoint(fullCaps, time.Now().Add(-time.Minute))
	recent := newFakeEndpoint(fullCaps, time.Now())
	p := setup(t, old, recent)

	recent.onSend = func(name string, payload any) {
		if meta, ok := payload.(AudioMeta); ok && name == EventAudio {
			go func() {
				time.Sleep(10 * time.Millisecond)
				p.Ack(meta.ClipID)
			}()
		}
	}

	err := p.Play(context.Background(), playback.Clip{Data: []byte("ID3"), ContentType: "audio/mpeg"})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if len(recent.frames) != 1 || len(old.frames) != 0 {
		t.Errorf("clip should go to the most recent endpoint only: %d %d", len(recent.frames), len(old.frames))
	}
}

func TestPlayAckTimeout(t *testing.T) {
	p := setup(t, newFakeEndpoint(fullCaps, time.Now()))
	err := p.Play(context.Background(), playback.Clip{Data: []byte("ID3")})
	if !errors.Is(err, ErrAckTimeout) {
		t.Errorf("expected ErrAckTimeout, got %v", err)
	}
}

func TestPlayWithoutSink(t *testing.T) {
	p := setup(t, newFakeEndpoint(device.Capabilities{TextSink: true}, time.Now()))
	err := p.Play(context.Background(), playback.Clip{Data: []byte("ID3")})
	if !errors.Is(err, playback.ErrNoOutput) {
		t.Errorf("expected ErrNoOutput, got %v", err)
	}
	if p.Ack(uuid.New()) {
		t.Error("ack of unknown clip should report false")
	}
}

func TestListeningCue(t *testing.T) {
	mic := newFakeEndpoint(fullCaps, time.Now())
	p := setup(t, mic)

	if err := p.StartListening(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.StopListening(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	mic.mu.Lock()
	defer mic.mu.Unlock()
	start := mic.events[0].payload.(ListeningMeta)
	stop := mic.events[1].payload.(ListeningMeta)
	if !start.Active || start.TimeoutMs != 5000 || stop.Active {
		t.Errorf("unexpected listening cues %+v %+v", start, stop)
	}
}
