// Package voice keeps the list of synthesis voices offered to the user and the
// one currently selected.
package voice

import (
	"context"
	"fmt"
	"sync"

	"github.com/xpanvictor/voxchat/pkg/io/tts"
)

// DefaultVoiceID is used when the configured voice is unknown.
const DefaultVoiceID = "en-US-JennyNeural"

// Descriptor is one selectable voice.
type Descriptor struct {
	ID           string `json:"id"`
	Locale       string `json:"locale"`
	DisplayLabel string `json:"displayLabel"`
}

// FromTTS builds a descriptor labelled "<locale> - <shortName>".
func FromTTS(v tts.Voice) Descriptor {
	short := v.ShortName
	if short == "" {
		short = v.ID
	}
	label := short
	if v.Locale != "" {
		label = fmt.Sprintf("%s - %s", v.Locale, short)
	}
	return Descriptor{ID: v.ID, Locale: v.Locale, DisplayLabel: label}
}

// Lister is the part of a synthesizer the catalog needs.
type Lister interface {
	ListVoices(ctx context.Context) ([]tts.Voice, error)
}

type Catalog struct {
	mu        sync.RWMutex
	voices    []Descriptor
	selected  string
	defaultID string
	onChange  func()
}

// NewCatalog returns an empty catalog whose selection is defaultID.
func NewCatalog(defaultID string, onChange func()) *Catalog {
	if defaultID == "" {
		defaultID = DefaultVoiceID
	}
	return &Catalog{selected: defaultID, defaultID: defaultID, onChange: onChange}
}

// Load fetches the voice list once. A failed or empty listing leaves the
// catalog empty; the error is returned for logging only.
func (c *Catalog) Load(ctx context.Context, lister Lister) error {
	voices, err := lister.ListVoices(ctx)

	descs := make([]Descriptor, 0, len(voices))
	seen := make(map[string]struct{}, len(voices))
	for _, v := range voices {
		if v.ID == "" {
			continue
		}
		if _, dup := seen[v.ID]; dup {
			continue
		}
		seen[v.ID] = struct{}{}
		descs = append(descs, FromTTS(v))
	}

	c.mu.Lock()
	c.voices = descs
	c.selected = c.resolveLocked(c.selected)
	c.mu.Unlock()
	c.changed()

	if err != nil {
		return fmt.Errorf("list voices: %w", err)
	}
	return nil
}

// Select makes id the active voice when it is in the catalog, otherwise falls
// back to the default voice, then to the first listed voice. Returns the id
// actually selected.
func (c *Catalog) Select(id string) string {
	c.mu.Lock()
	c.selected = c.resolveLocked(id)
	selected := c.selected
	c.mu.Unlock()
	c.changed()
	return selected
}

func (c *Catalog) resolveLocked(id string) string {
	if len(c.voices) == 0 {
		return c.defaultID
	}
	if c.hasLocked(id) {
		return id
	}
	if c.hasLocked(c.defaultID) {
		return c.defaultID
	}
	return c.voices[0].ID
}

func (c *Catalog) hasLocked(id string) bool {
	for _, v := range c.voices {
		if v.ID == id {
			return true
		}
	}
	return false
}

func (c *Catalog) Selected() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected
}

// Voices returns a copy of the catalog in listing order.
func (c *Catalog) Voices() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Descriptor, len(c.voices))
	copy(out, c.voices)
	return out
}

// Available is false when no voices could be listed; the picker is disabled then.
func (c *Catalog) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.voices) > 0
}

func (c *Catalog) Default() string {
	return c.defaultID
}

func (c *Catalog) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}
