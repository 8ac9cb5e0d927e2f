package orchestration

import (
	"context"
	"sync"

	"github.com/koscakluka/livescribe/core/audio"
	"github.com/koscakluka/livescribe/core/events"
	"github.com/koscakluka/livescribe/core/speechtotext"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) record(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type captureStub struct {
	log      *callLog
	startErr error

	mu      sync.Mutex
	onBlock func(audio.Block)
	started int
	stopped int
	closed  int
}

func (c *captureStub) StartCapture(_ context.Context, onBlock func(audio.Block)) error {
	c.log.record("start capture")
	if c.startErr != nil {
		return c.startErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBlock = onBlock
	c.started++
	return nil
}

func (c *captureStub) StopCapture() error {
	c.log.record("stop capture")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBlock = nil
	c.stopped++
	return nil
}

func (c *captureStub) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func (c *captureStub) Close() {
	c.log.record("close capture")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
}

// emit pushes samples through the registered callback as a device would,
// even after stop, to exercise late delivery.
func (c *captureStub) emit(samples ...float32) {
	c.mu.Lock()
	onBlock := c.onBlock
	c.mu.Unlock()
	if onBlock != nil {
		onBlock(audio.NewBlock(samples, audio.DefaultSampleRate))
	}
}

func (c *captureStub) counts() (started, stopped, closed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started, c.stopped, c.closed
}

type streamingClientStub struct {
	log     *callLog
	openErr error

	mu      sync.Mutex
	state   speechtotext.SessionState
	options speechtotext.TranscriptionOptions
	sent    [][]byte
	sendErr error
}

func (s *streamingClientStub) Transcribe(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	s.log.record("open client")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options = speechtotext.NewTranscriptionOptions(opts...)
	if s.openErr != nil {
		s.state = speechtotext.StateClosed
		return s.openErr
	}
	s.state = speechtotext.StateOpen
	return nil
}

func (s *streamingClientStub) SendAudio(data []byte) error {
	s.mu.Lock()
	if s.state != speechtotext.StateOpen {
		s.mu.Unlock()
		return nil
	}
	if s.sendErr != nil {
		err := s.sendErr
		onError := s.options.ErrorCallback
		s.mu.Unlock()
		if onError != nil {
			onError(err)
		}
		return err
	}
	s.sent = append(s.sent, append([]byte(nil), data...))
	s.mu.Unlock()
	return nil
}

func (s *streamingClientStub) State() speechtotext.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *streamingClientStub) Close() error {
	s.mu.Lock()
	if s.state == speechtotext.StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.log.record("close client")
	s.state = speechtotext.StateClosed
	onClosed := s.options.ClosedCallback
	s.mu.Unlock()

	if onClosed != nil {
		onClosed()
	}
	return nil
}

// dropConnection moves the stub to Closed without running callbacks, as a
// remote close looks before the orchestrator reacts to it.
func (s *streamingClientStub) dropConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = speechtotext.StateClosed
}

func (s *streamingClientStub) deliver(payload string) {
	s.mu.Lock()
	onEvent := s.options.TranscriptCallback
	s.mu.Unlock()
	if onEvent != nil {
		onEvent(events.FromMessage(payload))
	}
}

func (s *streamingClientStub) fail(err error) {
	s.mu.Lock()
	onError := s.options.ErrorCallback
	s.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}

func (s *streamingClientStub) sentFrames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

// clientQueue hands out pre-built stubs, one per session.
type clientQueue struct {
	mu      sync.Mutex
	clients []*streamingClientStub
	next    int
}

func newClientQueue(clients ...*streamingClientStub) *clientQueue {
	return &clientQueue{clients: clients}
}

func (q *clientQueue) factory() speechtotext.StreamingClient {
	q.mu.Lock()
	defer q.mu.Unlock()
	client := q.clients[q.next]
	q.next++
	return client
}

func (q *clientQueue) built() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.next
}

type batchStub struct {
	paths []string
}

func (b *batchStub) Transcribe(_ context.Context, path string) string {
	b.paths = append(b.paths, path)
	return "transcribed " + path
}

// eventSpan records the names of events added to it.
type eventSpan struct {
	noop.Span

	mu     sync.Mutex
	events []string
}

func (s *eventSpan) AddEvent(name string, _ ...trace.EventOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, name)
}

func (s *eventSpan) IsRecording() bool { return true }

func (s *eventSpan) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}
