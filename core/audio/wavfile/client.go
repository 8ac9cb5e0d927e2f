// Package wavfile replays a PCM WAV file as if it were a microphone. It is
// used for headless runs and for exercising the streaming pipeline without
// audio hardware.
package wavfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/koscakluka/livescribe/core/audio"
)

var ErrUnsupportedFormat = errors.New("unsupported wav format")

type Client struct {
	path      string
	blockSize int
	options   Options

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Options struct {
	// Realtime paces blocks at the rate a microphone would produce them.
	Realtime bool
	// OnFinished is called once the whole file has been delivered.
	OnFinished func()
}

type Option func(*Options)

func WithRealtime(realtime bool) Option {
	return func(o *Options) { o.Realtime = realtime }
}

func WithFinishedCallback(callback func()) Option {
	return func(o *Options) { o.OnFinished = callback }
}

// NewClient checks that path holds a 16 kHz mono 16-bit PCM WAV file.
func NewClient(path string, blockSize int, opts ...Option) (*Client, error) {
	if blockSize <= 0 {
		return nil, audio.ErrInvalidBlockSize
	}

	options := Options{Realtime: true}
	for _, opt := range opts {
		opt(&options)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer f.Close()

	if err := validate(wav.NewDecoder(f)); err != nil {
		return nil, err
	}

	return &Client{path: path, blockSize: blockSize, options: options}, nil
}

func validate(decoder *wav.Decoder) error {
	if !decoder.IsValidFile() {
		if err := decoder.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
		}
		return fmt.Errorf("%w: not a wav file", ErrUnsupportedFormat)
	}

	switch {
	case decoder.WavAudioFormat != 1:
		return fmt.Errorf("%w: audio format %d is not PCM", ErrUnsupportedFormat, decoder.WavAudioFormat)
	case decoder.NumChans != audio.DefaultChannels:
		return fmt.Errorf("%w: %d channels, expected mono", ErrUnsupportedFormat, decoder.NumChans)
	case decoder.SampleRate != audio.DefaultSampleRate:
		return fmt.Errorf("%w: sample rate %d, expected %d", ErrUnsupportedFormat, decoder.SampleRate, audio.DefaultSampleRate)
	case decoder.BitDepth != 16:
		return fmt.Errorf("%w: bit depth %d, expected 16", ErrUnsupportedFormat, decoder.BitDepth)
	}
	return nil
}

func (c *Client) StartCapture(ctx context.Context, onBlock func(block audio.Block)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}

	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("failed to open wav file: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go func() {
		finished, err := c.replay(ctx, wav.NewDecoder(f), onBlock)
		f.Close()
		close(done)

		if err != nil {
			logger.Error("wav replay failed", "path", c.path, "error", err)
		}
		if finished && c.options.OnFinished != nil {
			c.options.OnFinished()
		}
	}()

	return nil
}

// replay reports whether the whole file was delivered before ctx ended.
func (c *Client) replay(ctx context.Context, decoder *wav.Decoder, onBlock func(audio.Block)) (bool, error) {
	if err := decoder.FwdToPCM(); err != nil {
		return false, fmt.Errorf("failed to seek to pcm data: %w", err)
	}

	framer, err := audio.NewFramer(c.blockSize, audio.DefaultSampleRate)
	if err != nil {
		return false, err
	}

	var ticker *time.Ticker
	if c.options.Realtime {
		ticker = time.NewTicker(audio.BlockDuration(c.blockSize, audio.DefaultSampleRate))
		defer ticker.Stop()
	}

	cancelled := false
	emit := func(block audio.Block) {
		if cancelled {
			return
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				cancelled = true
				return
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			cancelled = true
			return
		}
		onBlock(block)
	}

	buf := &goaudio.IntBuffer{
		Data:   make([]int, c.blockSize),
		Format: &goaudio.Format{NumChannels: audio.DefaultChannels, SampleRate: audio.DefaultSampleRate},
	}
	for !cancelled {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return false, fmt.Errorf("failed to read pcm data: %w", err)
		}
		if n == 0 {
			break
		}

		samples := make([]float32, n)
		for i, value := range buf.Data[:n] {
			samples[i] = float32(value) / 32767
		}
		framer.Write(samples, emit)
	}

	// The final block is padded with silence to keep blocks fixed size.
	if buffered := framer.Buffered(); buffered > 0 && !cancelled {
		framer.Write(make([]float32, c.blockSize-buffered), emit)
	}

	return !cancelled, nil
}

func (c *Client) StopCapture() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done
	return nil
}

func (c *Client) Close() { _ = c.StopCapture() }

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}
