package orchestration

import "errors"

var (
	// ErrSessionActive is returned by Start while a session is running.
	// Stop it first.
	ErrSessionActive      = errors.New("a transcription session is already active")
	ErrNoAudioInput       = errors.New("no audio input configured")
	ErrNoStreamingClient  = errors.New("no streaming client configured")
	ErrNoBatchTranscriber = errors.New("no batch transcriber configured")
	ErrClosed             = errors.New("orchestrator closed")
)
