package audioring

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/smallnest/ringbuffer"
)

const sizePrefix = 4

var ErrFrameTooLarge = errors.New("audioring: frame too large for buffer")

type rb_impl struct {
	mu     sync.Mutex
	size   int
	frames int
	rb     *ringbuffer.RingBuffer
}

// Enqueue implements AudioRingBuffer.
func (r *rb_impl) Enqueue(frame AudioInput) error {
	data, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	required := len(data) + sizePrefix
	if required > r.rb.Capacity() {
		return ErrFrameTooLarge
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for r.rb.Free() < required {
		if !r.dropOldestLocked() {
			// framing got out of sync, start over
			r.rb.Reset()
			r.frames = 0
			break
		}
	}

	prefix := make([]byte, sizePrefix)
	binary.LittleEndian.PutUint32(prefix, uint32(len(data)))
	if _, err := r.rb.Write(prefix); err != nil {
		return err
	}
	if _, err := r.rb.Write(data); err != nil {
		return err
	}
	r.frames++
	return nil
}

// Dequeue implements AudioRingBuffer.
func (r *rb_impl) Dequeue() (AudioInput, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dequeueLocked()
}

func (r *rb_impl) dequeueLocked() (AudioInput, bool) {
	data, ok := r.readFrameLocked()
	if !ok {
		return AudioInput{}, false
	}
	var frame AudioInput
	if err := frame.UnmarshalBinary(data); err != nil {
		return AudioInput{}, false
	}
	return frame, true
}

// readFrameLocked pops one size-prefixed record.
func (r *rb_impl) readFrameLocked() ([]byte, bool) {
	if r.rb.IsEmpty() {
		return nil, false
	}
	prefix := make([]byte, sizePrefix)
	if n, err := r.rb.Read(prefix); err != nil || n != sizePrefix {
		return nil, false
	}
	size := int(binary.LittleEndian.Uint32(prefix))
	data := make([]byte, size)
	if size > 0 {
		if n, err := r.rb.Read(data); err != nil || n != size {
			return nil, false
		}
	}
	r.frames--
	return data, true
}

func (r *rb_impl) dropOldestLocked() bool {
	_, ok := r.readFrameLocked()
	return ok
}

// Drain implements AudioRingBuffer.
func (r *rb_impl) Drain() []AudioInput {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]AudioInput, 0, r.frames)
	for {
		frame, ok := r.dequeueLocked()
		if !ok {
			break
		}
		out = append(out, frame)
	}
	r.rb.Reset()
	r.frames = 0
	return out
}

// Reset implements AudioRingBuffer.
func (r *rb_impl) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rb.Reset()
	r.frames = 0
}

// Len implements AudioRingBuffer.
func (r *rb_impl) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rb.Length()
}

// Capacity implements AudioRingBuffer.
func (r *rb_impl) Capacity() int {
	return r.size
}

// Frames implements AudioRingBuffer.
func (r *rb_impl) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func New(size int) AudioRingBuffer {
	return &rb_impl{
		size: size,
		rb:   ringbuffer.New(size).SetBlocking(false),
	}
}
