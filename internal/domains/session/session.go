// Package session holds the per-user conversation context: history, voice
// catalog, current phase and the last notice shown to the user.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxchat/internal/domains/history"
	"github.com/xpanvictor/voxchat/internal/domains/sys_manager/runtime"
	"github.com/xpanvictor/voxchat/internal/domains/voice"
	"github.com/xpanvictor/voxchat/internal/types"
)

type Level string

const (
	INFO    Level = "info"
	SUCCESS Level = "success"
	WARNING Level = "warning"
	ERROR   Level = "error"
)

// Notice is the last user-visible message.
type Notice struct {
	Level Level     `json:"level"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

type Config struct {
	Title        string
	HistoryCap   int
	DefaultVoice string
}

// State is an immutable copy of everything the presentation renders.
type State struct {
	ID              uuid.UUID
	Title           string
	Phase           runtime.RuntimePhase
	Turns           []types.Turn
	Voices          []voice.Descriptor
	SelectedVoice   string
	VoicesAvailable bool
	Notice          *Notice
	SystemTested    bool
}

type Session struct {
	ID      uuid.UUID
	History *history.Buffer
	Voices  *voice.Catalog

	title string

	mu           sync.RWMutex
	phase        runtime.RuntimePhase
	notice       *Notice
	systemTested bool

	subMu     sync.RWMutex
	nextSub   int
	listeners map[int]func(State)
}

func New(cfg Config) *Session {
	if cfg.Title == "" {
		cfg.Title = "Voice Chat Assistant"
	}
	s := &Session{
		ID:        uuid.New(),
		title:     cfg.Title,
		phase:     runtime.IDLE,
		listeners: make(map[int]func(State)),
	}
	s.History = history.New(cfg.HistoryCap, s.emit)
	s.Voices = voice.NewCatalog(cfg.DefaultVoice, s.emit)
	return s
}

// Subscribe registers fn for every state change. Call the returned func to stop.
func (s *Session) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.listeners, id)
		s.subMu.Unlock()
	}
}

func (s *Session) SetPhase(p runtime.RuntimePhase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
	s.emit()
}

func (s *Session) Phase() runtime.RuntimePhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *Session) Notify(level Level, text string) {
	s.mu.Lock()
	s.notice = &Notice{Level: level, Text: text, At: time.Now()}
	s.mu.Unlock()
	s.emit()
}

func (s *Session) ClearNotice() {
	s.mu.Lock()
	s.notice = nil
	s.mu.Unlock()
	s.emit()
}

// MarkSystemTested returns true only for the first call.
func (s *Session) MarkSystemTested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.systemTested {
		return false
	}
	s.systemTested = true
	return true
}

func (s *Session) SystemTested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemTested
}

// ClearHistory drops every turn and the last notice.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	s.notice = nil
	s.mu.Unlock()
	s.History.Clear()
}

func (s *Session) State() State {
	s.mu.RLock()
	phase := s.phase
	tested := s.systemTested
	var notice *Notice
	if s.notice != nil {
		n := *s.notice
		notice = &n
	}
	s.mu.RUnlock()

	return State{
		ID:              s.ID,
		Title:           s.title,
		Phase:           phase,
		Turns:           s.History.Messages(),
		Voices:          s.Voices.Voices(),
		SelectedVoice:   s.Voices.Selected(),
		VoicesAvailable: s.Voices.Available(),
		Notice:          notice,
		SystemTested:    tested,
	}
}

func (s *Session) emit() {
	s.subMu.RLock()
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()
	if len(fns) == 0 {
		return
	}

	st := s.State()
	for _, fn := range fns {
		fn(st)
	}
}
