// Package orchestration drives live transcription: it owns the single
// active session pairing a capture device with a streaming connection, and
// folds the returned events into a display transcript.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/koscakluka/livescribe/core/audio"
	"github.com/koscakluka/livescribe/core/events"
	"github.com/koscakluka/livescribe/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Orchestrator struct {
	mu      sync.Mutex
	session *liveSession
	closed  bool

	newCapture         AudioCaptureFactory
	sharedCapture      audio.Capture
	newStreamingClient StreamingClientFactory
	sessionOptions     []speechtotext.TranscriptionOption
	blockSize          int
	batch              BatchTranscriber

	assembler *TranscriptAssembler
	closeOnce sync.Once
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{assembler: NewTranscriptAssembler()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start opens a streaming session and begins capturing into it. It blocks
// until the connection handshake completes. Only one session may be active
// at a time; a second Start fails with ErrSessionActive.
//
// Cancelling ctx stops the session.
func (o *Orchestrator) Start(ctx context.Context, opts ...StartOption) (err error) {
	ctx, span := tracer.Start(ctx, "start live session")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.closed:
		return ErrClosed
	case o.session != nil:
		return ErrSessionActive
	case o.newStreamingClient == nil:
		return ErrNoStreamingClient
	case o.newCapture == nil && o.sharedCapture == nil:
		return ErrNoAudioInput
	}

	startOptions := StartOptions{}
	for _, opt := range opts {
		opt(&startOptions)
	}

	capture, owned, err := o.acquireCapture()
	if err != nil {
		return err
	}

	session := &liveSession{
		speechToText: newSpeechToText(o.newStreamingClient()),
		assembler:    o.assembler,
		emitEvent:    newCallbackEventEmitter(startOptions),
		onTranscript: startOptions.onTranscript,
		onBlock:      startOptions.onBlock,
	}
	span.SetAttributes(attribute.String("session.id", session.ID()))

	input, err := newAudioInput(capture, owned, o.blockSize, session.handleBlock)
	if err != nil {
		if owned {
			capture.Close()
		}
		return fmt.Errorf("invalid block size: %w", err)
	}
	session.input = input

	o.assembler.Reset()

	sessionOptions := append([]speechtotext.TranscriptionOption{}, o.sessionOptions...)
	sessionOptions = append(sessionOptions,
		speechtotext.WithEncodingInfo(input.EncodingInfo()),
		speechtotext.WithTranscriptCallback(session.handleTranscript),
		speechtotext.WithErrorCallback(func(err error) { o.onSessionError(session, err) }),
		speechtotext.WithClosedCallback(func() { o.onSessionClosed(session) }),
	)
	if err := session.speechToText.Open(ctx, sessionOptions...); err != nil {
		input.Release()
		// Start returns this error, so the error callback is skipped.
		observeOnly := newCallbackEventEmitter(StartOptions{onEvent: startOptions.onEvent})
		observeOnly(events.NewSessionFailed(session.ID(), err))
		return err
	}
	session.emitEvent(events.NewSessionOpened(session.ID()))
	span.AddEvent("session opened", trace.WithAttributes(attribute.String("session.id", session.ID())))

	if err := input.Start(ctx); err != nil {
		err = errors.Join(err, session.teardown(ctx))
		return err
	}
	span.AddEvent("capture started", trace.WithAttributes(attribute.Int("block_size", o.blockSize)))

	session.cancelHook = withContextCancelHook(ctx, func() {
		if err := o.stopSession(session, "context cancelled"); err != nil {
			logger.Error("failed to stop session on context cancellation", "session_id", session.ID(), "error", err)
		}
	})
	o.session = session

	logger.Info("live session started", "session_id", session.ID(), "block_size", o.blockSize)
	return nil
}

func (o *Orchestrator) acquireCapture() (audio.Capture, bool, error) {
	if o.sharedCapture != nil {
		return o.sharedCapture, false, nil
	}

	capture, err := o.newCapture()
	if err != nil {
		return nil, false, fmt.Errorf("failed to open audio capture: %w", err)
	}
	return capture, true, nil
}

// Stop ends the active session. It is a no-op when no session is active.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.stopLocked("stop requested")
}

func (o *Orchestrator) stopLocked(reason string) error {
	session := o.session
	if session == nil {
		return nil
	}
	o.session = nil

	ctx, span := tracer.Start(context.Background(), "stop live session", trace.WithAttributes(
		attribute.String("session.id", session.ID()),
		attribute.String("stop.reason", reason),
	))
	defer span.End()

	if err := session.teardown(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("session teardown incomplete", "session_id", session.ID(), "error", err)
		return err
	}
	logger.Info("live session stopped", "session_id", session.ID())
	return nil
}

// stopSession stops session only if it is still the active one, so a late
// failure from an old session cannot end a newer one.
func (o *Orchestrator) stopSession(session *liveSession, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session != session {
		return nil
	}
	return o.stopLocked(reason)
}

func (o *Orchestrator) onSessionError(session *liveSession, err error) {
	if session.isStopped() {
		return
	}

	session.emitEvent(events.NewSessionFailed(session.ID(), err))
	// Called from capture or reader goroutines, which teardown waits on.
	go func() {
		if err := o.stopSession(session, "session failed"); err != nil {
			logger.Error("failed to stop failed session", "session_id", session.ID(), "error", err)
		}
	}()
}

func (o *Orchestrator) onSessionClosed(session *liveSession) {
	if session.isStopped() {
		return
	}

	go func() {
		if err := o.stopSession(session, "remote closed"); err != nil {
			logger.Error("failed to stop remotely closed session", "session_id", session.ID(), "error", err)
		}
	}()
}

// IsActive reports whether a session is running.
func (o *Orchestrator) IsActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session != nil
}

// Transcript returns the transcript of the current or most recent session.
func (o *Orchestrator) Transcript() TranscriptState {
	return o.assembler.State()
}

// TranscribeFile transcribes a recorded file in one request. It returns the
// batch fallback text on failure, or "" without a batch transcriber.
func (o *Orchestrator) TranscribeFile(ctx context.Context, path string) string {
	if o.batch == nil {
		logger.Error("batch transcription requested without a transcriber", "path", path, "error", ErrNoBatchTranscriber)
		return ""
	}
	return o.batch.Transcribe(ctx, path)
}

// Close stops any active session and closes a shared capture client.
func (o *Orchestrator) Close() error {
	var errs error
	o.closeOnce.Do(func() {
		o.mu.Lock()
		defer o.mu.Unlock()

		o.closed = true
		errs = o.stopLocked("orchestrator closed")
		if o.sharedCapture != nil {
			o.sharedCapture.Close()
		}
	})
	return errs
}
