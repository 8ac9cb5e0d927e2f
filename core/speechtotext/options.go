package speechtotext

import (
	"net/http"
	"time"

	"github.com/koscakluka/livescribe/core/audio"
	"github.com/koscakluka/livescribe/core/events"
)

type TranscriptionOptions struct {
	// TranscriptCallback is invoked once per inbound message, in arrival
	// order, from a single goroutine.
	TranscriptCallback func(event events.Transcript)
	// ErrorCallback is invoked when an open session fails.
	ErrorCallback func(err error)
	// ClosedCallback is invoked once the session has reached Closed.
	ClosedCallback func()

	Endpoint    string
	Header      http.Header
	DialTimeout time.Duration

	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func NewTranscriptionOptions(opts ...TranscriptionOption) TranscriptionOptions {
	options := TranscriptionOptions{
		EncodingInfo: audio.GetDefaultEncodingInfo(),
		DialTimeout:  DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func WithTranscriptCallback(callback func(event events.Transcript)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.TranscriptCallback = callback
	}
}

func WithErrorCallback(callback func(err error)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.ErrorCallback = callback
	}
}

func WithClosedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.ClosedCallback = callback
	}
}

// WithEndpoint sets the address of the streaming service.
func WithEndpoint(endpoint string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Endpoint = endpoint
	}
}

// WithHeader adds a header sent with the connection handshake.
func WithHeader(key, value string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if o.Header == nil {
			o.Header = http.Header{}
		}
		o.Header.Add(key, value)
	}
}

// WithDialTimeout bounds the handshake only. An open stream has no
// timeout.
func WithDialTimeout(timeout time.Duration) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.DialTimeout = timeout
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}
