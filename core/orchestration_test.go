package orchestration

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/livescribe/core/audio"
	"github.com/koscakluka/livescribe/core/events"
	"github.com/koscakluka/livescribe/core/speechtotext"
	"go.opentelemetry.io/otel/trace"
)

func waitUntil(t *testing.T, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s", message)
}

func newTestOrchestrator(capture *captureStub, clients *clientQueue, opts ...OrchestratorOption) *Orchestrator {
	base := []OrchestratorOption{
		WithAudioCaptureFactory(func() (audio.Capture, error) { return capture, nil }),
		WithStreamingClientFactory(clients.factory),
	}
	return NewOrchestrator(append(base, opts...)...)
}

func TestStartStreamsTranscriptIntoAssembler(t *testing.T) {
	capture := &captureStub{}
	client := &streamingClientStub{}
	o := newTestOrchestrator(capture, newClientQueue(client))
	defer o.Close()

	var mu sync.Mutex
	var texts []string
	var kinds []events.Kind
	if err := o.Start(context.Background(),
		WithTranscriptCallback(func(text string) {
			mu.Lock()
			texts = append(texts, text)
			mu.Unlock()
		}),
		WithTranscriptEventCallback(func(event events.Transcript) {
			mu.Lock()
			kinds = append(kinds, event.Kind())
			mu.Unlock()
		}),
	); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	for _, payload := range []string{"", "", "", "", "hello"} {
		client.deliver(payload)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 5 || texts[4] != "\nhello " {
		t.Fatalf("expected final text %q, got %q", "\nhello ", texts)
	}
	if len(kinds) != 5 || kinds[4] != events.KindTranscriptFragment {
		t.Fatalf("expected 5 events ending with a fragment, got %v", kinds)
	}
	if state := o.Transcript(); state.Text != "\nhello " || state.BoundariesSeen != 4 {
		t.Fatalf("unexpected transcript state %+v", state)
	}
}

func TestStartRejectsSecondSession(t *testing.T) {
	capture := &captureStub{}
	clients := newClientQueue(&streamingClientStub{}, &streamingClientStub{})
	o := newTestOrchestrator(capture, clients)
	defer o.Close()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("expected first start to succeed, got %v", err)
	}
	if err := o.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	if got := clients.built(); got != 1 {
		t.Fatalf("expected no client built for rejected start, got %d", got)
	}
}

func TestStartRequiresConfiguration(t *testing.T) {
	if err := NewOrchestrator().Start(context.Background()); !errors.Is(err, ErrNoStreamingClient) {
		t.Fatalf("expected ErrNoStreamingClient, got %v", err)
	}

	o := NewOrchestrator(WithStreamingClientFactory(newClientQueue(&streamingClientStub{}).factory))
	if err := o.Start(context.Background()); !errors.Is(err, ErrNoAudioInput) {
		t.Fatalf("expected ErrNoAudioInput, got %v", err)
	}
}

func TestCapturedBlocksAreEncodedAndSentInOrder(t *testing.T) {
	capture := &captureStub{}
	client := &streamingClientStub{}
	o := newTestOrchestrator(capture, newClientQueue(client))
	defer o.Close()

	var frameEvents int
	var eventsMu sync.Mutex
	if err := o.Start(context.Background(), WithEventCallback(func(event events.Event) {
		if event.Kind() == events.KindAudioFrameSent {
			eventsMu.Lock()
			frameEvents++
			eventsMu.Unlock()
		}
	})); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	capture.emit(1, -1)
	capture.emit(0.5, 2)

	frames := client.sentFrames()
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	first := audio.DecodeFrame(frames[0])
	second := audio.DecodeFrame(frames[1])
	if !reflect.DeepEqual(first, audio.Frame{32767, -32767}) {
		t.Fatalf("unexpected first frame %v", first)
	}
	if !reflect.DeepEqual(second, audio.Frame{16384, 32767}) {
		t.Fatalf("unexpected second frame %v", second)
	}

	eventsMu.Lock()
	defer eventsMu.Unlock()
	if frameEvents != 2 {
		t.Fatalf("expected 2 frame events, got %d", frameEvents)
	}
}

func TestBlockSizeRegroupsCapturedAudio(t *testing.T) {
	capture := &captureStub{}
	client := &streamingClientStub{}
	o := newTestOrchestrator(capture, newClientQueue(client), WithBlockSize(4))
	defer o.Close()

	var blocks []int
	if err := o.Start(context.Background(), WithBlockCallback(func(block audio.Block) {
		blocks = append(blocks, block.Len())
	})); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	capture.emit(0, 0, 0)
	capture.emit(0, 0, 0)

	frames := client.sentFrames()
	if len(frames) != 1 || len(frames[0]) != 8 {
		t.Fatalf("expected one frame of 4 samples, got %d frames", len(frames))
	}
	if !reflect.DeepEqual(blocks, []int{4}) {
		t.Fatalf("expected a single block of 4 samples, got %v", blocks)
	}
}

func TestStopTearsDownInOrder(t *testing.T) {
	log := &callLog{}
	capture := &captureStub{log: log}
	client := &streamingClientStub{log: log}
	o := newTestOrchestrator(capture, newClientQueue(client))
	defer o.Close()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	if err := o.Stop(); err != nil {
		t.Fatalf("expected stop to succeed, got %v", err)
	}

	expected := []string{"open client", "start capture", "stop capture", "close client", "close capture"}
	if got := log.snapshot(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected calls %v, got %v", expected, got)
	}
	if o.IsActive() {
		t.Fatalf("expected no active session after stop")
	}
	if got := client.State(); got != speechtotext.StateClosed {
		t.Fatalf("expected client closed, got %s", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	log := &callLog{}
	capture := &captureStub{log: log}
	o := newTestOrchestrator(capture, newClientQueue(&streamingClientStub{log: log}))
	defer o.Close()

	if err := o.Stop(); err != nil {
		t.Fatalf("expected stop without session to be a no-op, got %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	if err := o.Stop(); err != nil {
		t.Fatalf("expected stop to succeed, got %v", err)
	}
	callsAfterFirstStop := len(log.snapshot())
	if err := o.Stop(); err != nil {
		t.Fatalf("expected second stop to succeed, got %v", err)
	}

	if got := len(log.snapshot()); got != callsAfterFirstStop {
		t.Fatalf("expected second stop to have no side effects, got %v", log.snapshot())
	}
	if _, stopped, closed := capture.counts(); stopped != 1 || closed != 1 {
		t.Fatalf("expected one stop and one close, got %d and %d", stopped, closed)
	}
}

func TestNothingFlowsAfterStop(t *testing.T) {
	capture := &captureStub{}
	client := &streamingClientStub{}
	o := newTestOrchestrator(capture, newClientQueue(client))
	defer o.Close()

	var transcriptCalls int
	if err := o.Start(context.Background(), WithTranscriptCallback(func(string) { transcriptCalls++ })); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	capture.mu.Lock()
	lateBlock := capture.onBlock
	capture.mu.Unlock()

	client.deliver("before")
	if err := o.Stop(); err != nil {
		t.Fatalf("expected stop to succeed, got %v", err)
	}

	lateBlock(audio.NewBlock([]float32{0.1}, audio.DefaultSampleRate))
	client.deliver("after")

	if got := len(client.sentFrames()); got != 0 {
		t.Fatalf("expected no frames after stop, got %d", got)
	}
	if transcriptCalls != 1 {
		t.Fatalf("expected only the event before stop to be applied, got %d", transcriptCalls)
	}
	if got := o.Transcript().Text; got != "before " {
		t.Fatalf("expected transcript %q, got %q", "before ", got)
	}
}

func TestOpenFailureReleasesCaptureAndAllowsRetry(t *testing.T) {
	capture := &captureStub{}
	failing := &streamingClientStub{openErr: speechtotext.ErrConnection}
	working := &streamingClientStub{}
	clients := newClientQueue(failing, working)
	o := newTestOrchestrator(capture, clients)
	defer o.Close()

	var failures []error
	err := o.Start(context.Background(), WithEventCallback(func(event events.Event) {
		if failed, ok := event.(events.SessionFailed); ok {
			failures = append(failures, failed.Err)
		}
	}))
	if !errors.Is(err, speechtotext.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if len(failures) != 1 {
		t.Fatalf("expected one session failed event, got %d", len(failures))
	}
	if o.IsActive() {
		t.Fatalf("expected no active session after failed open")
	}
	if started, _, closed := capture.counts(); started != 0 || closed != 1 {
		t.Fatalf("expected capture released without starting, got started=%d closed=%d", started, closed)
	}

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("expected retry with a fresh client to succeed, got %v", err)
	}
	if got := clients.built(); got != 2 {
		t.Fatalf("expected a fresh client per start, got %d", got)
	}
}

func TestCaptureFailureClosesSession(t *testing.T) {
	capture := &captureStub{startErr: audio.ErrPermissionDenied}
	client := &streamingClientStub{}
	o := newTestOrchestrator(capture, newClientQueue(client))
	defer o.Close()

	err := o.Start(context.Background())
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if got := client.State(); got != speechtotext.StateClosed {
		t.Fatalf("expected session closed after capture failure, got %s", got)
	}
	if o.IsActive() {
		t.Fatalf("expected no active session")
	}
}

func TestCaptureFactoryFailureIsReturned(t *testing.T) {
	clients := newClientQueue(&streamingClientStub{})
	o := NewOrchestrator(
		WithAudioCaptureFactory(func() (audio.Capture, error) { return nil, audio.ErrUnsupportedEnvironment }),
		WithStreamingClientFactory(clients.factory),
	)

	if err := o.Start(context.Background()); !errors.Is(err, audio.ErrUnsupportedEnvironment) {
		t.Fatalf("expected ErrUnsupportedEnvironment, got %v", err)
	}
	if got := clients.built(); got != 0 {
		t.Fatalf("expected no connection attempt without a device, got %d", got)
	}
}

func TestSessionFailureStopsSessionAndReportsError(t *testing.T) {
	capture := &captureStub{}
	client := &streamingClientStub{}
	o := newTestOrchestrator(capture, newClientQueue(client))
	defer o.Close()

	reported := make(chan error, 1)
	if err := o.Start(context.Background(), WithErrorCallback(func(err error) { reported <- err })); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	failure := errors.New("reset by peer")
	client.fail(failure)

	select {
	case err := <-reported:
		if !errors.Is(err, failure) {
			t.Fatalf("expected reported failure, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected error callback")
	}

	waitUntil(t, func() bool { return !o.IsActive() }, "expected failed session to be stopped")
	if _, stopped, closed := capture.counts(); stopped != 1 || closed != 1 {
		t.Fatalf("expected capture stopped and released, got stopped=%d closed=%d", stopped, closed)
	}
}

func TestLateFailureDoesNotStopNewerSession(t *testing.T) {
	capture := &captureStub{}
	first := &streamingClientStub{}
	second := &streamingClientStub{}
	o := newTestOrchestrator(capture, newClientQueue(first, second))
	defer o.Close()

	var errorCalls int
	var mu sync.Mutex
	onError := WithErrorCallback(func(error) {
		mu.Lock()
		errorCalls++
		mu.Unlock()
	})

	if err := o.Start(context.Background(), onError); err != nil {
		t.Fatalf("expected first start to succeed, got %v", err)
	}
	if err := o.Stop(); err != nil {
		t.Fatalf("expected stop to succeed, got %v", err)
	}
	if err := o.Start(context.Background(), onError); err != nil {
		t.Fatalf("expected second start to succeed, got %v", err)
	}

	first.fail(errors.New("late"))
	first.deliver("stale")
	time.Sleep(20 * time.Millisecond)

	if !o.IsActive() {
		t.Fatalf("expected newer session to stay active")
	}
	mu.Lock()
	defer mu.Unlock()
	if errorCalls != 0 {
		t.Fatalf("expected late failure to be ignored, got %d error callbacks", errorCalls)
	}
	if got := o.Transcript().Text; got != "" {
		t.Fatalf("expected stale transcript to be ignored, got %q", got)
	}
}

func TestRemoteCloseStopsSession(t *testing.T) {
	capture := &captureStub{}
	client := &streamingClientStub{}
	o := newTestOrchestrator(capture, newClientQueue(client))
	defer o.Close()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	_ = client.Close()
	waitUntil(t, func() bool { return !o.IsActive() }, "expected remote close to stop the session")
}

func TestContextCancellationStopsSession(t *testing.T) {
	capture := &captureStub{}
	o := newTestOrchestrator(capture, newClientQueue(&streamingClientStub{}))
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	if err := o.Start(ctx); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	cancel()

	waitUntil(t, func() bool { return !o.IsActive() }, "expected cancellation to stop the session")
}

func TestStartResetsTranscript(t *testing.T) {
	capture := &captureStub{}
	first := &streamingClientStub{}
	o := newTestOrchestrator(capture, newClientQueue(first, &streamingClientStub{}))
	defer o.Close()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	for _, payload := range []string{"", "", "", "", "old"} {
		first.deliver(payload)
	}
	if err := o.Stop(); err != nil {
		t.Fatalf("expected stop to succeed, got %v", err)
	}
	if got := o.Transcript().Text; got != "\nold " {
		t.Fatalf("expected transcript to survive stop, got %q", got)
	}

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("expected restart to succeed, got %v", err)
	}
	if state := o.Transcript(); state.Text != "" || state.BoundariesSeen != 0 {
		t.Fatalf("expected transcript reset on start, got %+v", state)
	}
}

func TestSharedCaptureIsClosedWithOrchestrator(t *testing.T) {
	capture := &captureStub{}
	o := NewOrchestrator(
		WithAudioCapture(capture),
		WithStreamingClientFactory(newClientQueue(&streamingClientStub{}).factory),
	)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	if err := o.Stop(); err != nil {
		t.Fatalf("expected stop to succeed, got %v", err)
	}
	if _, stopped, closed := capture.counts(); stopped != 1 || closed != 0 {
		t.Fatalf("expected shared capture stopped but kept open, got stopped=%d closed=%d", stopped, closed)
	}

	if err := o.Close(); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
	if _, _, closed := capture.counts(); closed != 1 {
		t.Fatalf("expected shared capture closed with orchestrator, got %d", closed)
	}
	if err := o.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestTranscribeFileDelegatesToBatchTranscriber(t *testing.T) {
	batch := &batchStub{}
	o := NewOrchestrator(WithBatchTranscriber(batch))

	if got := o.TranscribeFile(context.Background(), "clip.wav"); got != "transcribed clip.wav" {
		t.Fatalf("unexpected transcript %q", got)
	}
	if got := NewOrchestrator().TranscribeFile(context.Background(), "clip.wav"); got != "" {
		t.Fatalf("expected empty transcript without batch transcriber, got %q", got)
	}
}

func TestOpenFailureIsReturnedNotReportedToErrorCallback(t *testing.T) {
	capture := &captureStub{}
	o := newTestOrchestrator(capture, newClientQueue(&streamingClientStub{openErr: speechtotext.ErrConnection}))
	defer o.Close()

	var errorCalls, failedEvents int
	err := o.Start(context.Background(),
		WithErrorCallback(func(error) { errorCalls++ }),
		WithEventCallback(func(event events.Event) {
			if event.Kind() == events.KindSessionFailed {
				failedEvents++
			}
		}),
	)
	if !errors.Is(err, speechtotext.ErrConnection) {
		t.Fatalf("expected ErrConnection from start, got %v", err)
	}
	if errorCalls != 0 {
		t.Fatalf("expected start failure only as a return value, got %d error callbacks", errorCalls)
	}
	if failedEvents != 1 {
		t.Fatalf("expected observers to see one session failed event, got %d", failedEvents)
	}
}

func TestTeardownRecordsStepsOnSpan(t *testing.T) {
	log := &callLog{}
	capture := &captureStub{log: log}
	client := &streamingClientStub{log: log}

	input, err := newAudioInput(capture, true, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	session := &liveSession{
		input:        input,
		speechToText: newSpeechToText(client),
		assembler:    NewTranscriptAssembler(),
		emitEvent:    func(events.Event) {},
	}
	if err := session.speechToText.Open(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := input.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	span := &eventSpan{}
	ctx := trace.ContextWithSpan(context.Background(), span)
	if err := session.teardown(ctx); err != nil {
		t.Fatalf("expected teardown to succeed, got %v", err)
	}
	if err := session.teardown(ctx); err != nil {
		t.Fatalf("expected repeated teardown to be a no-op, got %v", err)
	}

	expected := []string{"capture stopped", "send path detached", "connection closed", "device released"}
	if got := span.recorded(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected span events %v, got %v", expected, got)
	}
	expectedCalls := []string{"open client", "start capture", "stop capture", "close client", "close capture"}
	if got := log.snapshot(); !reflect.DeepEqual(got, expectedCalls) {
		t.Fatalf("expected calls %v, got %v", expectedCalls, got)
	}
}

func TestStaleReaderCannotLeakIntoNextSession(t *testing.T) {
	capture := &captureStub{}
	first := &streamingClientStub{}
	o := newTestOrchestrator(capture, newClientQueue(first, &streamingClientStub{}))
	defer o.Close()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				first.deliver("stale")
			}
		}
	}()

	time.Sleep(5 * time.Millisecond)
	if err := o.Stop(); err != nil {
		t.Fatalf("expected stop to succeed, got %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("expected restart to succeed, got %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	close(stop)
	<-done

	if got := o.Transcript().Text; strings.Contains(got, "stale") {
		t.Fatalf("expected the new transcript to be free of the old session, got %q", got)
	}
}

func TestDroppedFramesAreNotReportedAsSent(t *testing.T) {
	capture := &captureStub{}
	client := &streamingClientStub{}
	o := newTestOrchestrator(capture, newClientQueue(client))
	defer o.Close()

	var mu sync.Mutex
	var frameEvents int
	if err := o.Start(context.Background(), WithEventCallback(func(event events.Event) {
		if event.Kind() == events.KindAudioFrameSent {
			mu.Lock()
			frameEvents++
			mu.Unlock()
		}
	})); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	capture.emit(0.1)
	client.dropConnection()
	capture.emit(0.2)

	mu.Lock()
	defer mu.Unlock()
	if frameEvents != 1 {
		t.Fatalf("expected only the frame sent while open to be reported, got %d", frameEvents)
	}
	if got := len(client.sentFrames()); got != 1 {
		t.Fatalf("expected one frame on the wire, got %d", got)
	}
}
