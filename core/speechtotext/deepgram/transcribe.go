package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/livescribe/core/audio"
	"github.com/koscakluka/livescribe/core/events"
	"github.com/koscakluka/livescribe/core/speechtotext"
	"github.com/koscakluka/livescribe/internal/utils"
	"go.opentelemetry.io/otel/codes"
)

var ErrMissingAPIKey = errors.New("deepgram api key not found")

func (s *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	ctx, span := tracer.Start(ctx, "open deepgram session")
	defer span.End()

	if state := s.lifecycle.State(); state != speechtotext.StateIdle {
		return fmt.Errorf("%w: state is %s", speechtotext.ErrSessionClosed, state)
	}

	options := speechtotext.NewTranscriptionOptions(opts...)
	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		s.lifecycle.Closed()
		return fmt.Errorf("invalid encoding: %w", err)
	}

	apiKey, ok := s.resolveAPIKey()
	if !ok {
		s.lifecycle.Closed()
		return ErrMissingAPIKey
	}

	s.options = options
	if err := s.lifecycle.BeginConnect(); err != nil {
		return err
	}

	listenURL, err := buildListenURL(s.listenURL, connectionOptions{
		sampleRate: encoding.SampleRate,
		encoding:   encoding.Format.Name(),
		model:      s.model,
		language:   s.language,
	})
	if err != nil {
		s.lifecycle.Closed()
		return fmt.Errorf("%w: %w", speechtotext.ErrConnection, err)
	}

	conn, err := connectWebsocket(ctx, listenURL, apiKey, options)
	if err != nil {
		s.lifecycle.Closed()
		err = fmt.Errorf("%w: %w", speechtotext.ErrConnection, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.connMu.Lock()
	s.conn = conn
	s.lastMsgTs = time.Now()
	s.connMu.Unlock()

	if !s.lifecycle.Opened() {
		_ = conn.Close()
		s.lifecycle.Closed()
		return fmt.Errorf("%w: closed during handshake", speechtotext.ErrSessionClosed)
	}

	// The session outlives the Transcribe call, so the silence generator
	// must not inherit the caller's context.
	silenceCtx, cancel := context.WithCancel(context.Background())
	s.stopSilence = cancel
	go s.generateSilence(silenceCtx, options.EncodingInfo)
	go s.readAndProcessMessages(conn)

	logger.Info("deepgram session opened", "model", s.model, "sample_rate", encoding.SampleRate)
	return nil
}

type connectionOptions struct {
	sampleRate int
	encoding   string
	model      string
	language   string
}

func buildListenURL(base string, options connectionOptions) (string, error) {
	listenUrl, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid listen url: %w", err)
	}

	queryParams := listenUrl.Query()
	queryParams.Set("encoding", options.encoding)
	queryParams.Set("sample_rate", strconv.Itoa(options.sampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", options.model)
	queryParams.Set("language", options.language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("interim_results", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("endpointing", "300")
	queryParams.Set("vad_events", "true")

	listenUrl.RawQuery = queryParams.Encode()
	return listenUrl.String(), nil
}

func connectWebsocket(ctx context.Context, listenURL, apiKey string, options speechtotext.TranscriptionOptions) (*websocket.Conn, error) {
	header := http.Header{"Authorization": {"Token " + apiKey}}
	for key, values := range options.Header {
		for _, value := range values {
			header.Add(key, value)
		}
	}

	if options.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.DialTimeout)
		defer cancel()
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: options.DialTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, listenURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to open socket connection to deepgram (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (s *TranscriptionClient) sendKeepAlive() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return
	}
	if err := s.conn.WriteJSON(
		struct {
			Type string `json:"type"`
		}{
			Type: "KeepAlive",
		}); err != nil {
		logger.Warn("failed to write keep-alive to deepgram", "error", err)
	}
}

// SendAudio streams one encoded frame. Frames sent while the session is
// not Open are dropped.
func (s *TranscriptionClient) SendAudio(audio []byte) error {
	s.connMu.Lock()
	if !s.lifecycle.IsOpen() || s.conn == nil {
		s.connMu.Unlock()
		return nil
	}
	s.lastMsgTs = time.Now()
	err := s.conn.WriteMessage(websocket.BinaryMessage, audio)
	s.connMu.Unlock()

	if err != nil {
		err = fmt.Errorf("%w: failed to write to deepgram client: %w", speechtotext.ErrConnection, err)
		s.fail(err)
		return err
	}
	return nil
}

func (s *TranscriptionClient) sendSilence(audio []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return nil
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (s *TranscriptionClient) silentFor() time.Duration {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return time.Since(s.lastMsgTs)
}

// StopStream asks Deepgram to flush pending results and end the stream.
func (s *TranscriptionClient) StopStream() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn != nil {
		if err := s.conn.WriteJSON(struct {
			Type string `json:"type"`
		}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
			return fmt.Errorf("failed to close deepgram stream through websocket: %w", err)
		}
	}
	return nil
}

func (s *TranscriptionClient) Close() error {
	if !s.lifecycle.BeginClose() {
		return nil
	}

	if s.stopSilence != nil {
		s.stopSilence()
	}

	var errs error
	if err := s.StopStream(); err != nil {
		errs = errors.Join(errs, err)
	}

	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		if err := conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			errs = errors.Join(errs, fmt.Errorf("failed to send close message: %w", err))
		}
		if err := conn.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to close deepgram connection: %w", err))
		}
	}

	s.lifecycle.Closed()
	s.closedOnce.Do(func() {
		if s.options.ClosedCallback != nil {
			s.options.ClosedCallback()
		}
	})
	return errs
}

func (s *TranscriptionClient) fail(err error) {
	if !s.lifecycle.IsOpen() {
		return
	}

	logger.Error("deepgram session failed", "error", err)
	if s.options.ErrorCallback != nil {
		s.options.ErrorCallback(err)
	}
	_ = s.Close()
}

func (s *TranscriptionClient) readAndProcessMessages(conn *websocket.Conn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				_ = s.Close()
				return
			}
			s.fail(fmt.Errorf("%w: failed to read deepgram websocket message: %w", speechtotext.ErrConnection, err))
			return
		}

		if !s.lifecycle.IsOpen() {
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		event, err := parseMessage(msg)
		if err != nil {
			logger.Warn("failed to parse deepgram message", "error", err)
			continue
		}
		if event != nil && s.options.TranscriptCallback != nil {
			s.options.TranscriptCallback(event)
		}
	}
}

// parseMessage maps one Deepgram message to a transcript event. Interim
// results, speech-start notifications and metadata yield no event.
func parseMessage(msg []byte) (events.Transcript, error) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deepgram message: %w", err)
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal deepgram results: %w", err)
		}
		if !msgResp.IsFinal {
			return nil, nil
		}

		transcript := ""
		if len(msgResp.Channel.Alternatives) > 0 {
			transcript = strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		}
		return events.FromMessage(transcript), nil

	case api.TypeUtteranceEndResponse:
		return events.NewTranscriptBoundary(), nil
	}

	return nil, nil
}

func (s *TranscriptionClient) generateSilence(ctx context.Context, encoding audio.EncodingInfo) {
	type silenceGeneratorState string
	const (
		silenceGeneratorStateWaiting   silenceGeneratorState = "waiting"
		silenceGeneratorStateSilence   silenceGeneratorState = "silence"
		silenceGeneratorStateKeepAlive silenceGeneratorState = "keepAlive"
	)

	const durationMs = 50
	const milisecondsPerSecond = 1000
	ticker := time.NewTicker(durationMs * time.Millisecond)
	defer ticker.Stop()

	chunk := make([]byte, encoding.SampleRate*encoding.Format.ByteSize()*durationMs/milisecondsPerSecond)
	for i := range chunk {
		chunk[i] = encoding.SilenceValue()
	}

	var state = silenceGeneratorStateWaiting
	var firstSilenceTime *time.Time
	var lastKeepAliveTime *time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			silentFor := s.silentFor()
			switch state {
			case silenceGeneratorStateWaiting:
				if silentFor > durationMs*time.Millisecond {
					state = silenceGeneratorStateSilence
					firstSilenceTime = utils.Ptr(time.Now())
					continue
				}

			case silenceGeneratorStateSilence:
				if silentFor < durationMs*time.Millisecond {
					state = silenceGeneratorStateWaiting
					firstSilenceTime = nil
					continue
				}
				if time.Since(*firstSilenceTime) >= time.Second {
					state = silenceGeneratorStateKeepAlive
					lastKeepAliveTime = utils.Ptr(time.Now())
					firstSilenceTime = nil
					continue
				}

				if err := s.sendSilence(chunk); err != nil {
					logger.Warn("failed to send silence to deepgram", "error", err)
				}

			case silenceGeneratorStateKeepAlive:
				if silentFor < durationMs*time.Millisecond {
					state = silenceGeneratorStateWaiting
					continue
				}

				if time.Since(*lastKeepAliveTime) >= 5*time.Second {
					lastKeepAliveTime = utils.Ptr(time.Now())
					s.sendKeepAlive()
				}
			}
		}
	}
}
