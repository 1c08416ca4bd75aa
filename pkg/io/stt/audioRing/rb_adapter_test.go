package audioring

import (
	"bytes"
	"testing"
	"time"
)

func frame(b ...byte) AudioInput {
	return AudioInput{
		Data:       b,
		Timestamp:  time.Now(),
		SampleRate: 16000,
		Channels:   1,
	}
}

func TestAudioRingBuffer(t *testing.T) {
	buffer := New(1024)

	if buffer.Capacity() != 1024 {
		t.Errorf("Expected capacity 1024, got %d", buffer.Capacity())
	}
	if buffer.Len() != 0 || buffer.Frames() != 0 {
		t.Errorf("Expected empty buffer, got len %d frames %d", buffer.Len(), buffer.Frames())
	}

	in := frame(1, 2, 3, 4, 5)
	if err := buffer.Enqueue(in); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if buffer.Frames() != 1 {
		t.Errorf("Expected 1 frame, got %d", buffer.Frames())
	}

	out, ok := buffer.Dequeue()
	if !ok {
		t.Fatal("Failed to dequeue")
	}
	if !bytes.Equal(out.Data, in.Data) {
		t.Errorf("Data mismatch: expected %v, got %v", in.Data, out.Data)
	}
	if out.SampleRate != 16000 || out.Channels != 1 {
		t.Errorf("Unexpected format %dHz/%dch", out.SampleRate, out.Channels)
	}
	if _, ok := buffer.Dequeue(); ok {
		t.Error("Dequeue on empty buffer should fail")
	}
}

func TestAudioRingBufferDrainKeepsOrder(t *testing.T) {
	buffer := New(1024)
	for i := 0; i < 4; i++ {
		if err := buffer.Enqueue(frame(byte(i), byte(i))); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	frames := buffer.Drain()
	if len(frames) != 4 {
		t.Fatalf("Expected 4 drained frames, got %d", len(frames))
	}
	for i, f := range frames {
		if f.Data[0] != byte(i) {
			t.Errorf("frame %d out of order: %v", i, f.Data)
		}
	}
	if buffer.Len() != 0 || buffer.Frames() != 0 {
		t.Errorf("Buffer should be empty after drain, len %d frames %d", buffer.Len(), buffer.Frames())
	}
}

func TestAudioRingBufferEvictsOldestWholeFrames(t *testing.T) {
	// each frame takes 4 (prefix) + 18 (header) + 10 (data) = 32 bytes
	buffer := New(100)
	for i := 0; i < 5; i++ {
		data := bytes.Repeat([]byte{byte(i)}, 10)
		if err := buffer.Enqueue(frame(data...)); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	frames := buffer.Drain()
	if len(frames) != 3 {
		t.Fatalf("Expected 3 surviving frames, got %d", len(frames))
	}
	if frames[0].Data[0] != 2 || frames[2].Data[0] != 4 {
		t.Errorf("Expected newest frames 2..4, got first %d last %d", frames[0].Data[0], frames[2].Data[0])
	}
}

func TestAudioRingBufferRejectsOversizedFrame(t *testing.T) {
	buffer := New(32)
	if err := buffer.Enqueue(frame(make([]byte, 64)...)); err != ErrFrameTooLarge {
		t.Errorf("Expected ErrFrameTooLarge, got %v", err)
	}
}

func TestAudioInputSerialization(t *testing.T) {
	original := AudioInput{
		Data:       []byte{10, 20, 30, 40, 50},
		Timestamp:  time.Now(),
		SampleRate: 48000,
		Channels:   2,
	}

	data, err := original.MarshalBinary()
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var restored AudioInput
	if err := restored.UnmarshalBinary(data); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if !bytes.Equal(restored.Data, original.Data) {
		t.Errorf("Data mismatch: %v vs %v", restored.Data, original.Data)
	}
	if restored.Timestamp.UnixNano() != original.Timestamp.UnixNano() {
		t.Errorf("Timestamp mismatch: %v vs %v", restored.Timestamp, original.Timestamp)
	}

	if err := restored.UnmarshalBinary(data[:10]); err == nil {
		t.Error("Expected error for truncated frame")
	}
}
