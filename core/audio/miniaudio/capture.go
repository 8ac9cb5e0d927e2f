package miniaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/livescribe/core/audio"
)

// captureClient owns the capture device. The device is only initialized
// between Start and Stop so the microphone is released while idle.
type captureClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig
	framer       *audio.Framer

	onBlock func(block audio.Block)

	mu sync.Mutex
}

func (c *captureClient) Init(audioContext *malgo.AllocatedContext, blockSize int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	framer, err := audio.NewFramer(blockSize, audio.DefaultSampleRate)
	if err != nil {
		return err
	}
	c.framer = framer

	c.config = malgo.DefaultDeviceConfig(malgo.Capture)
	c.config.SampleRate = audio.DefaultSampleRate
	c.config.Capture.Format = malgo.FormatF32
	c.config.Capture.Channels = audio.DefaultChannels
	c.config.Alsa.NoMMap = 1
	c.config.PerformanceProfile = malgo.LowLatency
	c.config.PeriodSizeInFrames = 480
	c.config.Periods = 3

	c.audioContext = audioContext
	return nil
}

func (c *captureClient) Start(_ context.Context, onBlock func(block audio.Block)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audioContext == nil {
		return fmt.Errorf("capture not initialized")
	} else if c.device != nil && c.device.IsStarted() {
		return nil
	}

	bytesPerFrame := malgo.SampleSizeInBytes(c.config.Capture.Format) * int(c.config.Capture.Channels)
	device, err := malgo.InitDevice(c.audioContext.Context, c.config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			c.processInput(pInput[:n])
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", translateError(err))
	}

	c.device = device
	c.framer.Reset()
	c.onBlock = onBlock
	if err := c.device.Start(); err != nil {
		c.onBlock = nil
		c.device.Uninit()
		c.device = nil
		return fmt.Errorf("failed to start capture device: %w", translateError(err))
	}

	return nil
}

func (c *captureClient) processInput(input []byte) {
	c.mu.Lock()
	onBlock := c.onBlock
	framer := c.framer
	c.mu.Unlock()

	if onBlock == nil || framer == nil {
		return
	}
	framer.Write(samplesFromF32(input), onBlock)
}

func (c *captureClient) Stop() error {
	c.mu.Lock()
	c.onBlock = nil
	device := c.device
	c.device = nil
	c.mu.Unlock()

	if device == nil {
		return nil
	}

	// Stop waits for the data callback to return, so it must run without
	// holding mu.
	var err error
	if device.IsStarted() {
		if stopErr := device.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to stop device: %w", stopErr)
		}
	}
	device.Uninit()

	if c.framer != nil {
		c.framer.Reset()
	}
	return err
}

// samplesFromF32 decodes interleaved little-endian float32 samples as
// delivered by miniaudio for malgo.FormatF32.
func samplesFromF32(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}
