package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

var (
	// ErrPermissionDenied means the platform refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrTransportUnavailable means the environment has no usable capture
	// backend at all.
	ErrTransportUnavailable = errors.New("audio capture unavailable")
)

// FrameFunc receives one encoded transport chunk per captured frame.
type FrameFunc func(chunk string)

// Capture owns the exclusive microphone stream for a session. Samples are
// collected into fixed-size frames and encoded synchronously inside the
// device callback; there is no buffering beyond the frame being filled.
type Capture struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	logger   interface{ Printf(string, ...any) }

	mu      sync.Mutex
	pending []float32
	onFrame FrameFunc
	started bool
	closed  bool
}

// NewCapture initializes the capture backend and claims the default input
// device at the capture rate. The device is not started until Start.
func NewCapture(logger interface{ Printf(string, ...any) }) (*Capture, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	c := &Capture{malgoCtx: malgoCtx, logger: logger}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = CaptureSampleRate
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			c.onSamples(input)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	c.device = device
	return c, nil
}

// Start begins streaming; onFrame is invoked once per full frame with the
// encoded chunk, in capture order.
func (c *Capture) Start(onFrame FrameFunc) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrTransportUnavailable
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.onFrame = onFrame
	c.started = true
	c.mu.Unlock()

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return nil
}

// Close stops the stream and releases the device and backend context.
// Closing an already-closed capture is a no-op.
func (c *Capture) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
	}
	if c.malgoCtx != nil {
		_ = c.malgoCtx.Uninit()
		c.malgoCtx.Free()
	}
}

// onSamples runs inside the device callback. Full frames are encoded and
// handed off immediately; a partial frame waits for the next callback.
func (c *Capture) onSamples(input []byte) {
	samples := bytesToFloat32(input)

	c.mu.Lock()
	if !c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, samples...)
	var frames []string
	for len(c.pending) >= FrameSize {
		frames = append(frames, EncodeFrame(c.pending[:FrameSize]))
		c.pending = c.pending[FrameSize:]
	}
	onFrame := c.onFrame
	c.mu.Unlock()

	for _, frame := range frames {
		onFrame(frame)
	}
}

func bytesToFloat32(raw []byte) []float32 {
	n := len(raw) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}
