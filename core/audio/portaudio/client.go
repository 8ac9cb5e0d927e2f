package portaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/livescribe/core/audio"
)

// Client captures from the default PortAudio input device. The stream is
// opened with framesPerBuffer equal to the block size, so every callback
// already carries one full block.
type Client struct {
	blockSize int
	stream    *portaudio.Stream
	framer    *audio.Framer

	onBlock func(block audio.Block)

	mu        sync.Mutex
	closeOnce sync.Once
}

func NewClient(blockSize int) (*Client, error) {
	framer, err := audio.NewFramer(blockSize, audio.DefaultSampleRate)
	if err != nil {
		return nil, err
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", translateError(err))
	}

	return &Client{
		blockSize: blockSize,
		framer:    framer,
	}, nil
}

func (c *Client) StartCapture(_ context.Context, onBlock func(block audio.Block)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(audio.DefaultSampleRate), c.blockSize, c.processInput)
	if err != nil {
		return fmt.Errorf("failed to open PortAudio stream: %w", translateError(err))
	}

	c.framer.Reset()
	c.onBlock = onBlock
	if err := stream.Start(); err != nil {
		c.onBlock = nil
		_ = stream.Close()
		return fmt.Errorf("failed to start PortAudio stream: %w", translateError(err))
	}

	c.stream = stream
	logger.Info("microphone capture started", "block_size", c.blockSize)
	return nil
}

func (c *Client) processInput(in []float32) {
	c.mu.Lock()
	onBlock := c.onBlock
	c.mu.Unlock()

	if onBlock == nil {
		return
	}

	// PortAudio reuses in between callbacks; the framer copies it.
	c.framer.Write(in, onBlock)
}

func (c *Client) StopCapture() error {
	c.mu.Lock()
	c.onBlock = nil
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	if stream == nil {
		return nil
	}

	var errs error
	if err := stream.Stop(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to stop PortAudio stream: %w", err))
	}
	if err := stream.Close(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to close PortAudio stream: %w", err))
	}
	c.framer.Reset()
	return errs
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if err := c.StopCapture(); err != nil {
			logger.Warn("failed to stop capture on close", "error", err)
		}
		_ = portaudio.Terminate()
	})
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}
