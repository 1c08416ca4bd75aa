package stt

import "errors"

const (
	wavHeaderSize = 44
	bitsPerSample = 16
)

// EncodeWAV wraps 16-bit little endian PCM in a RIFF/WAVE header.
func EncodeWAV(pcm []byte, sampleRate int32, channels int16) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("no pcm data")
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}

	byteRate := uint32(sampleRate) * uint32(channels) * bitsPerSample / 8
	blockAlign := uint16(channels) * bitsPerSample / 8
	wavSize := wavHeaderSize + len(pcm)

	header := make([]byte, wavHeaderSize)

	// RIFF chunk descriptor
	copy(header[0:4], "RIFF")
	writeUint32LE(header[4:8], uint32(wavSize-8))
	copy(header[8:12], "WAVE")

	// fmt sub-chunk
	copy(header[12:16], "fmt ")
	writeUint32LE(header[16:20], 16) // PCM format chunk size
	writeUint16LE(header[20:22], 1)  // PCM format
	writeUint16LE(header[22:24], uint16(channels))
	writeUint32LE(header[24:28], uint32(sampleRate))
	writeUint32LE(header[28:32], byteRate)
	writeUint16LE(header[32:34], blockAlign)
	writeUint16LE(header[34:36], bitsPerSample)

	// data sub-chunk
	copy(header[36:40], "data")
	writeUint32LE(header[40:44], uint32(len(pcm)))

	wav := make([]byte, 0, wavSize)
	wav = append(wav, header...)
	wav = append(wav, pcm...)
	return wav, nil
}

func writeUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func writeUint16LE(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
