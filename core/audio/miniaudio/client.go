package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/livescribe/core/audio"
)

// Client captures microphone audio through miniaudio at 16 kHz mono and
// delivers it in fixed-size blocks.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	captureClient

	closeOnce sync.Once
}

func NewClient(blockSize int) (*Client, error) {
	if blockSize <= 0 {
		return nil, audio.ErrInvalidBlockSize
	}

	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) { logger.Debug("malgo", "message", message) },
	)
	if err != nil {
		return nil, fmt.Errorf("malgo InitContext failed: %w", translateError(err))
	}

	client := Client{
		audioContext: audioCtx,
	}

	if err := client.captureClient.Init(audioCtx, blockSize); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

func (c *Client) StartCapture(ctx context.Context, onBlock func(block audio.Block)) error {
	return c.captureClient.Start(ctx, onBlock)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.captureClient.Stop()
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
	})
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}
