package orchestration

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/koscakluka/livescribe/core/speechtotext"
)

// speechToText wraps the streaming client of one session. Detaching cuts
// the send path before the connection is closed.
type speechToText struct {
	// client stores the session's streaming client.
	client speechtotext.StreamingClient
	// attached reports whether audio is still forwarded to the client.
	attached atomic.Bool
	id       string
}

func newSpeechToText(client speechtotext.StreamingClient) *speechToText {
	s := &speechToText{client: client}
	switch c := client.(type) {
	case interface{ ID() string }:
		s.id = c.ID()
	default:
		s.id = uuid.NewString()
	}
	return s
}

func (s *speechToText) ID() string { return s.id }

func (s *speechToText) Open(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	if err := s.client.Transcribe(ctx, opts...); err != nil {
		return fmt.Errorf("failed to open streaming session: %w", err)
	}
	s.attached.Store(true)
	return nil
}

// SendAudio reports whether the frame was handed to an open connection.
// Frames are dropped once detached or when the client is no longer open.
func (s *speechToText) SendAudio(audio []byte) (bool, error) {
	if !s.attached.Load() || s.client.State() != speechtotext.StateOpen {
		return false, nil
	}
	if err := s.client.SendAudio(audio); err != nil {
		return false, err
	}
	return true, nil
}

func (s *speechToText) Detach() { s.attached.Store(false) }

func (s *speechToText) Close() error {
	s.Detach()
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close speech-to-text client: %w", err)
	}
	return nil
}
