package orchestration

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/koscakluka/livescribe/core/audio"
)

// audioInput adapts a capture client to a session: it regroups blocks when
// a block size is configured and stops delivering them once stopped.
type audioInput struct {
	// capture stores the configured capture client.
	capture audio.Capture
	// owned reports whether release should close the capture client.
	owned bool
	// framer regroups captured samples, nil when blocks pass through as-is.
	framer *audio.Framer

	// isCapturing reports whether blocks are currently delivered.
	isCapturing atomic.Bool

	// onInputBlock is called for every block leaving the input.
	onInputBlock func(block audio.Block)
}

func newAudioInput(capture audio.Capture, owned bool, blockSize int, onInputBlock func(block audio.Block)) (*audioInput, error) {
	if onInputBlock == nil {
		onInputBlock = func(audio.Block) {}
	}

	a := &audioInput{capture: capture, owned: owned, onInputBlock: onInputBlock}
	if blockSize > 0 {
		sampleRate := capture.EncodingInfo().SampleRate
		if sampleRate == 0 {
			sampleRate = audio.DefaultSampleRate
		}
		framer, err := audio.NewFramer(blockSize, sampleRate)
		if err != nil {
			return nil, err
		}
		a.framer = framer
	}
	return a, nil
}

func (a *audioInput) IsCapturing() bool { return a != nil && a.isCapturing.Load() }

func (a *audioInput) Start(ctx context.Context) error {
	if a == nil || !a.isCapturing.CompareAndSwap(false, true) {
		return nil
	}

	if err := a.capture.StartCapture(ctx, a.onBlock); err != nil {
		a.isCapturing.Store(false)
		return fmt.Errorf("failed to start audio capture: %w", err)
	}
	return nil
}

// Stop halts block production. Blocks still in flight from the device are
// dropped.
func (a *audioInput) Stop() error {
	if a == nil || !a.isCapturing.CompareAndSwap(true, false) {
		return nil
	}

	if err := a.capture.StopCapture(); err != nil {
		return fmt.Errorf("failed to stop audio capture: %w", err)
	}
	if a.framer != nil {
		a.framer.Reset()
	}
	return nil
}

// Release frees the device if the session owns it.
func (a *audioInput) Release() {
	if a == nil || !a.owned {
		return
	}
	a.capture.Close()
}

func (a *audioInput) EncodingInfo() audio.EncodingInfo {
	if a == nil || a.capture == nil {
		return audio.GetDefaultEncodingInfo()
	}

	if info := a.capture.EncodingInfo(); !info.IsZero() {
		return info
	}
	return audio.GetDefaultEncodingInfo()
}

func (a *audioInput) onBlock(block audio.Block) {
	if !a.isCapturing.Load() {
		return
	}

	if a.framer != nil {
		a.framer.Write(block.Samples, a.onInputBlock)
		return
	}
	a.onInputBlock(block)
}
