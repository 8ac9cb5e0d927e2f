package speechtotext

import "context"

// StreamingClient is a single-use streaming transcription session.
// Transcribe opens it, SendAudio streams encoded frames while it is open and
// Close tears it down.
type StreamingClient interface {
	Transcribe(ctx context.Context, opts ...TranscriptionOption) error
	SendAudio(audio []byte) error
	State() SessionState
	Close() error
}
