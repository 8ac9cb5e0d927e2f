package orchestration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/livescribe/core/audio"
	"github.com/koscakluka/livescribe/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// liveSession exclusively owns one streaming connection and one capture
// pipeline. It is built by Start and consumed by teardown.
type liveSession struct {
	input        *audioInput
	speechToText *speechToText
	assembler    *TranscriptAssembler

	emitEvent    eventEmitter
	onTranscript func(text string)
	onBlock      func(block audio.Block)

	// applyMu orders transcript folding against teardown, so nothing from
	// this session reaches the assembler once teardown has marked it
	// stopped.
	applyMu      sync.Mutex
	stopped      atomic.Bool
	teardownOnce sync.Once
	cancelHook   chan struct{}
}

func (s *liveSession) ID() string { return s.speechToText.ID() }

func (s *liveSession) isStopped() bool { return s.stopped.Load() }

// handleBlock runs on the capture thread.
func (s *liveSession) handleBlock(block audio.Block) {
	if s.isStopped() {
		return
	}

	if s.onBlock != nil {
		if err := panicSafe("block", func() { s.onBlock(block) }); err != nil {
			logger.Error("block callback failed", "session_id", s.ID(), "error", err)
		}
	}

	frame := audio.Encode(block)
	data := frame.Bytes()
	sent, err := s.speechToText.SendAudio(data)
	if err != nil || !sent {
		// Failures are reported through the client's error callback.
		return
	}
	s.emitEvent(events.NewAudioFrameSent(len(frame), len(data)))
}

// handleTranscript runs on the client's reader goroutine.
func (s *liveSession) handleTranscript(event events.Transcript) {
	s.applyMu.Lock()
	if s.isStopped() {
		s.applyMu.Unlock()
		return
	}
	text := s.assembler.Apply(event)
	s.applyMu.Unlock()

	s.emitEvent(event)
	if s.onTranscript != nil {
		if err := panicSafe("transcript", func() { s.onTranscript(text) }); err != nil {
			logger.Error("transcript callback failed", "session_id", s.ID(), "error", err)
		}
	}
}

// teardown performs the four stop steps in order: stop producing blocks,
// cut the send path, close the connection, release the device.
func (s *liveSession) teardown(ctx context.Context) error {
	span := trace.SpanFromContext(ctx)

	var errs error
	s.teardownOnce.Do(func() {
		s.applyMu.Lock()
		s.stopped.Store(true)
		s.applyMu.Unlock()
		if s.cancelHook != nil {
			close(s.cancelHook)
		}

		if err := s.input.Stop(); err != nil {
			errs = errors.Join(errs, err)
		}
		span.AddEvent("capture stopped")
		s.speechToText.Detach()
		span.AddEvent("send path detached")
		if err := s.speechToText.Close(); err != nil {
			errs = errors.Join(errs, err)
		}
		span.AddEvent("connection closed")
		s.input.Release()
		span.AddEvent("device released", trace.WithAttributes(attribute.Bool("device.owned", s.input.owned)))

		s.emitEvent(events.NewSessionClosed(s.ID()))
	})
	return errs
}
