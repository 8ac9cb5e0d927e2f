// Package batch uploads a complete audio file to an ASR service in a single
// request and returns its transcript.
package batch

import (
	"errors"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultEndpoint = "http://localhost:8000/asr/"

	// FallbackTranscript is returned in place of a transcript whenever the
	// upload or the response fails.
	FallbackTranscript = "Error in ASR processing."

	formField = "file"
)

var (
	ErrUpload       = errors.New("batch transcription failed")
	ErrInvalidAudio = errors.New("invalid audio file")
)

type Client struct {
	endpoint   string
	httpClient *http.Client
}

type ClientOption func(*Client)

func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		endpoint: DefaultEndpoint,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Result is the decoded service response.
type Result struct {
	Transcript string
	Language   string
	Duration   float64
}

type transcriptResponse struct {
	Transcript *string `json:"transcript"`
	Language   string  `json:"language,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
}
