package audioring

import (
	"encoding/binary"
	"errors"
	"time"
)

// frameHeaderSize is timestamp(8) + sampleRate(4) + channels(2) + dataLen(4).
const frameHeaderSize = 18

var errShortFrame = errors.New("audioring: short frame")

// AudioInput is one PCM chunk pushed by a capture device.
type AudioInput struct {
	Data       []byte
	Timestamp  time.Time
	SampleRate int32
	Channels   int16
}

func (a *AudioInput) MarshalBinary() ([]byte, error) {
	buf := make([]byte, frameHeaderSize+len(a.Data))
	binary.LittleEndian.PutUint64(buf[0:], uint64(a.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint32(buf[8:], uint32(a.SampleRate))
	binary.LittleEndian.PutUint16(buf[12:], uint16(a.Channels))
	binary.LittleEndian.PutUint32(buf[14:], uint32(len(a.Data)))
	copy(buf[frameHeaderSize:], a.Data)
	return buf, nil
}

func (a *AudioInput) UnmarshalBinary(data []byte) error {
	if len(data) < frameHeaderSize {
		return errShortFrame
	}
	a.Timestamp = time.Unix(0, int64(binary.LittleEndian.Uint64(data[0:])))
	a.SampleRate = int32(binary.LittleEndian.Uint32(data[8:]))
	a.Channels = int16(binary.LittleEndian.Uint16(data[12:]))
	dataLen := int(binary.LittleEndian.Uint32(data[14:]))
	if len(data[frameHeaderSize:]) < dataLen {
		return errShortFrame
	}
	a.Data = make([]byte, dataLen)
	copy(a.Data, data[frameHeaderSize:frameHeaderSize+dataLen])
	return nil
}

// AudioRingBuffer keeps the newest frames of a capture; when full, the oldest
// whole frames are evicted to make room.
type AudioRingBuffer interface {
	Enqueue(frame AudioInput) error
	Dequeue() (AudioInput, bool)
	// Drain removes and returns every buffered frame, oldest first.
	Drain() []AudioInput
	Reset()
	// Len is the number of buffered bytes including framing.
	Len() int
	Capacity() int
	Frames() int
}
