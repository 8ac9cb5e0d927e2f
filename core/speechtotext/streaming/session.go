// Package streaming implements a transcription session over a plain
// websocket: binary messages carry little-endian 16-bit PCM frames out, text
// messages carry transcript fragments in, and an empty text message marks a
// segment boundary.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/livescribe/core/audio"
	"github.com/koscakluka/livescribe/core/events"
	"github.com/koscakluka/livescribe/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const closeGracePeriod = time.Second

var ErrMissingEndpoint = errors.New("streaming endpoint not configured")

// Session owns exactly one websocket connection. It is single use: once
// closed, a new Session has to be created to stream again.
type Session struct {
	id        string
	lifecycle speechtotext.Lifecycle
	options   speechtotext.TranscriptionOptions

	conn   *websocket.Conn
	connMu sync.Mutex

	closedOnce sync.Once
}

func NewSession() *Session {
	return &Session{id: uuid.NewString()}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() speechtotext.SessionState { return s.lifecycle.State() }

// Transcribe opens the connection and starts delivering inbound messages to
// the transcript callback. It blocks until the handshake completes or
// fails; a failed handshake leaves the session Closed.
func (s *Session) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	ctx, span := tracer.Start(ctx, "open streaming session", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("session.id", s.id))

	if state := s.lifecycle.State(); state != speechtotext.StateIdle {
		return fmt.Errorf("%w: state is %s", speechtotext.ErrSessionClosed, state)
	}

	options := speechtotext.NewTranscriptionOptions(opts...)
	if options.Endpoint == "" {
		s.lifecycle.Closed()
		return ErrMissingEndpoint
	}

	s.options = options
	if err := s.lifecycle.BeginConnect(); err != nil {
		return err
	}

	conn, err := dial(ctx, options)
	if err != nil {
		s.lifecycle.Closed()
		err = fmt.Errorf("%w: %w", speechtotext.ErrConnection, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	if !s.lifecycle.Opened() {
		// Close won the race against the handshake.
		_ = conn.Close()
		s.lifecycle.Closed()
		return fmt.Errorf("%w: closed during handshake", speechtotext.ErrSessionClosed)
	}

	logger.Info("streaming session opened", "session_id", s.id, "endpoint", options.Endpoint)
	go s.readAndProcessMessages(trace.LinkFromContext(ctx), conn)
	return nil
}

func dial(ctx context.Context, options speechtotext.TranscriptionOptions) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: options.DialTimeout,
	}

	if options.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.DialTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(ctx, options.Endpoint, options.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake rejected with status %s: %w", resp.Status, err)
		}
		return nil, err
	}
	return conn, nil
}

// SendAudio writes one encoded frame as a binary message. Frames sent while
// the session is not Open are dropped without error.
func (s *Session) SendAudio(audio []byte) error {
	s.connMu.Lock()
	if !s.lifecycle.IsOpen() || s.conn == nil {
		s.connMu.Unlock()
		return nil
	}
	err := s.conn.WriteMessage(websocket.BinaryMessage, audio)
	s.connMu.Unlock()

	if err != nil {
		err = fmt.Errorf("%w: failed to write audio: %w", speechtotext.ErrConnection, err)
		s.fail(err)
		return err
	}
	return nil
}

// SendFrame is a convenience for sending an encoded [audio.Frame].
func (s *Session) SendFrame(frame audio.Frame) error {
	return s.SendAudio(frame.Bytes())
}

// Close sends a normal closure and releases the connection. Safe to call
// more than once and from any goroutine, including from callbacks.
func (s *Session) Close() error {
	if !s.lifecycle.BeginClose() {
		return nil
	}

	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	var errs error
	if conn != nil {
		if err := conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			errs = errors.Join(errs, fmt.Errorf("failed to send close message: %w", err))
		}
		if err := conn.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}

	s.markClosed()
	return errs
}

func (s *Session) markClosed() {
	s.lifecycle.Closed()
	s.closedOnce.Do(func() {
		logger.Info("streaming session closed", "session_id", s.id)
		if s.options.ClosedCallback != nil {
			s.options.ClosedCallback()
		}
	})
}

func (s *Session) fail(err error) {
	if !s.lifecycle.IsOpen() {
		return
	}

	logger.Error("streaming session failed", "session_id", s.id, "error", err)
	if s.options.ErrorCallback != nil {
		s.options.ErrorCallback(err)
	}
	_ = s.Close()
}

// readAndProcessMessages runs for the lifetime of the connection under its
// own span, linked to the span that opened the session.
func (s *Session) readAndProcessMessages(opened trace.Link, conn *websocket.Conn) {
	_, span := tracer.Start(context.Background(), "stream transcripts",
		trace.WithLinks(opened),
		trace.WithAttributes(attribute.String("session.id", s.id)),
	)
	defer span.End()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				span.AddEvent("remote closed")
				_ = s.Close()
				return
			}
			if !s.lifecycle.IsOpen() {
				return
			}
			err = fmt.Errorf("%w: failed to read message: %w", speechtotext.ErrConnection, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.fail(err)
			return
		}

		if !s.lifecycle.IsOpen() {
			return
		}

		if msgType != websocket.TextMessage {
			logger.Debug("ignoring non-text message", "session_id", s.id, "type", msgType, "size", len(msg))
			continue
		}

		event := events.FromMessage(string(msg))
		span.AddEvent("transcript event", trace.WithAttributes(
			attribute.String("event.kind", string(event.Kind())),
			attribute.Int("message.size", len(msg)),
		))
		if s.options.TranscriptCallback != nil {
			s.options.TranscriptCallback(event)
		}
	}
}
