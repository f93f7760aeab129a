package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedChunk is returned when an inbound audio chunk cannot be decoded.
var ErrMalformedChunk = errors.New("malformed audio chunk")

const (
	// CaptureSampleRate is the microphone capture rate expected by the live API.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate of audio streamed back by the live API.
	PlaybackSampleRate = 24000
	// FrameSize is the number of samples per outbound capture frame.
	FrameSize = 4096
)

// Buffer is a single-channel block of normalized audio samples.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// EncodeFrame converts normalized samples to 16-bit little-endian PCM and
// returns the base64 transport encoding. Samples are clamped to [-1, 1].
// Negative values scale by 32768 and non-negative by 32767 so both ends of
// the int16 range are reachable.
func EncodeFrame(samples []float32) string {
	return base64.StdEncoding.EncodeToString(pcmBytes(samples))
}

// pcmBytes converts normalized samples to raw little-endian 16-bit PCM.
func pcmBytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		buf[i*2] = byte(v)
		buf[i*2+1] = byte(v >> 8)
	}
	return buf
}

// DecodeFrame reverses EncodeFrame, reconstructing normalized samples from a
// base64 chunk of little-endian 16-bit PCM at the given sample rate.
func DecodeFrame(chunk string, sampleRate int) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(chunk)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedChunk, err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte count %d", ErrMalformedChunk, len(raw))
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
		samples[i] = float32(v) / 32768.0
	}
	return &Buffer{Samples: samples, SampleRate: sampleRate}, nil
}
