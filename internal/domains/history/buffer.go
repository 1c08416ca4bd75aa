// Package history holds the bounded, chronological list of conversation turns
// a session keeps in memory.
package history

import (
	"sync"
	"time"

	"github.com/xpanvictor/voxchat/internal/types"
)

// DefaultCap matches the number of turns kept by a fresh session.
const DefaultCap = 50

// Buffer is a sliding window over the most recent turns. When an append pushes the
// length past the cap the oldest turns are dropped until length == cap.
type Buffer struct {
	mu       sync.RWMutex
	turns    []types.Turn
	cap      int
	onChange func()
	now      func() time.Time
}

// New creates an empty buffer. onChange, when set, runs after every mutation
// (outside the lock) so the presentation can be re-rendered.
func New(capacity int, onChange func()) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Buffer{
		turns:    make([]types.Turn, 0, capacity+1),
		cap:      capacity,
		onChange: onChange,
		now:      time.Now,
	}
}

// Append inserts turn at the end, then trims from the front down to the cap.
func (b *Buffer) Append(turn types.Turn) {
	b.mu.Lock()
	b.turns = append(b.turns, turn)
	b.trimLocked()
	b.mu.Unlock()
	b.changed()
}

// Trim enforces the cap. Append already trims; this exists for callers that
// want the explicit step after a model reply.
func (b *Buffer) Trim() {
	b.mu.Lock()
	before := len(b.turns)
	b.trimLocked()
	trimmed := len(b.turns) != before
	b.mu.Unlock()
	if trimmed {
		b.changed()
	}
}

func (b *Buffer) trimLocked() {
	if over := len(b.turns) - b.cap; over > 0 {
		// copy into a fresh slice so the dropped prefix can be collected
		kept := make([]types.Turn, b.cap, b.cap+1)
		copy(kept, b.turns[over:])
		b.turns = kept
	}
}

// Clear empties the buffer unconditionally.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.turns = make([]types.Turn, 0, b.cap+1)
	b.mu.Unlock()
	b.changed()
}

// Messages returns a copy of the turns, oldest first.
func (b *Buffer) Messages() []types.Turn {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.turns)
}

func (b *Buffer) Cap() int {
	return b.cap
}

// Snapshot pairs a copy of the turns with the current time.
func (b *Buffer) Snapshot() Snapshot {
	return Snapshot{
		Timestamp: b.now(),
		Messages:  b.Messages(),
	}
}

func (b *Buffer) changed() {
	if b.onChange != nil {
		b.onChange()
	}
}
