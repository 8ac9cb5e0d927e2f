package orchestration

import (
	"context"

	"github.com/koscakluka/livescribe/core/audio"
	"github.com/koscakluka/livescribe/core/events"
	"github.com/koscakluka/livescribe/core/speechtotext"
)

type OrchestratorOption func(*Orchestrator)

// AudioCaptureFactory builds the capture device for one session. The
// session closes what it gets when it stops.
type AudioCaptureFactory func() (audio.Capture, error)

// StreamingClientFactory builds a fresh, unopened client for one session.
// Clients are never reused across sessions.
type StreamingClientFactory func() speechtotext.StreamingClient

type BatchTranscriber interface {
	Transcribe(ctx context.Context, path string) string
}

// WithAudioCaptureFactory makes every session open its own capture device
// and close it on stop.
func WithAudioCaptureFactory(factory AudioCaptureFactory) OrchestratorOption {
	return func(o *Orchestrator) {
		o.newCapture = factory
		o.sharedCapture = nil
	}
}

// WithAudioCapture shares one capture client between sessions. Stopping a
// session stops the capture; the client itself is closed by
// [Orchestrator.Close].
func WithAudioCapture(capture audio.Capture) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sharedCapture = capture
		o.newCapture = nil
	}
}

func WithStreamingClientFactory(factory StreamingClientFactory) OrchestratorOption {
	return func(o *Orchestrator) {
		o.newStreamingClient = factory
	}
}

// WithSessionOptions adds options passed to every streaming client when it
// is opened, such as the endpoint or handshake headers.
func WithSessionOptions(opts ...speechtotext.TranscriptionOption) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sessionOptions = append(o.sessionOptions, opts...)
	}
}

// WithBlockSize regroups captured audio into blocks of exactly blockSize
// samples before encoding. Zero sends blocks as the capture delivers them.
func WithBlockSize(blockSize int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.blockSize = blockSize
	}
}

func WithBatchTranscriber(transcriber BatchTranscriber) OrchestratorOption {
	return func(o *Orchestrator) {
		o.batch = transcriber
	}
}

type StartOptions struct {
	onTranscript      func(text string)
	onTranscriptEvent func(event events.Transcript)
	onError           func(err error)
	onBlock           func(block audio.Block)
	onEvent           func(event events.Event)
}

type StartOption func(*StartOptions)

// WithTranscriptCallback registers a callback receiving the full assembled
// transcript after every transcript event.
func WithTranscriptCallback(callback func(text string)) StartOption {
	return func(o *StartOptions) {
		o.onTranscript = callback
	}
}

// WithTranscriptEventCallback registers a callback for raw transcript
// events, in arrival order.
func WithTranscriptEventCallback(callback func(event events.Transcript)) StartOption {
	return func(o *StartOptions) {
		o.onTranscriptEvent = callback
	}
}

// WithErrorCallback registers a callback for failures that end a running
// session. Failures while starting are returned by Start instead.
func WithErrorCallback(callback func(err error)) StartOption {
	return func(o *StartOptions) {
		o.onError = callback
	}
}

// WithBlockCallback registers a callback for every captured block before
// it is encoded and sent.
func WithBlockCallback(callback func(block audio.Block)) StartOption {
	return func(o *StartOptions) {
		o.onBlock = callback
	}
}

// WithEventCallback registers a callback observing every session event:
// lifecycle, frames sent and transcript events.
func WithEventCallback(callback func(event events.Event)) StartOption {
	return func(o *StartOptions) {
		o.onEvent = callback
	}
}
