// Package deepgram streams audio to Deepgram's live transcription API and
// reports final results as transcript events.
package deepgram

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/livescribe/core/speechtotext"
)

const (
	DefaultListenURL = "wss://api.deepgram.com/v1/listen"
	DefaultModel     = "nova-3"
	DefaultLanguage  = "en-US"

	apiKeyEnv = "DEEPGRAM_API_KEY"
)

type TranscriptionClient struct {
	apiKey    string
	listenURL string
	model     string
	language  string

	lifecycle speechtotext.Lifecycle
	options   speechtotext.TranscriptionOptions

	conn      *websocket.Conn
	connMu    sync.Mutex
	lastMsgTs time.Time

	stopSilence context.CancelFunc
	closedOnce  sync.Once
}

type ClientOption func(*TranscriptionClient)

// NewTranscriptionClient builds a client for one session. Without
// WithAPIKey the key is read from DEEPGRAM_API_KEY when the session opens.
func NewTranscriptionClient(opts ...ClientOption) *TranscriptionClient {
	client := &TranscriptionClient{
		listenURL: DefaultListenURL,
		model:     DefaultModel,
		language:  DefaultLanguage,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func WithAPIKey(apiKey string) ClientOption {
	return func(c *TranscriptionClient) {
		c.apiKey = apiKey
	}
}

// WithListenURL overrides the live transcription endpoint.
func WithListenURL(listenURL string) ClientOption {
	return func(c *TranscriptionClient) {
		c.listenURL = listenURL
	}
}

func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) {
		c.model = model
	}
}

func WithLanguage(language string) ClientOption {
	return func(c *TranscriptionClient) {
		c.language = language
	}
}

func (s *TranscriptionClient) State() speechtotext.SessionState {
	return s.lifecycle.State()
}

func (s *TranscriptionClient) resolveAPIKey() (string, bool) {
	if s.apiKey != "" {
		return s.apiKey, true
	}
	apiKey, ok := os.LookupEnv(apiKeyEnv)
	return apiKey, ok && apiKey != ""
}
