package events

const (
	// KindTranscriptFragment identifies a piece of recognized text.
	KindTranscriptFragment Kind = "transcript.fragment"
	// KindTranscriptBoundary identifies a segmentation point with no text.
	KindTranscriptBoundary Kind = "transcript.boundary"
)

// Transcript is either a [TranscriptFragment] or a [TranscriptBoundary].
type Transcript interface {
	Event
	transcript()
}

// TranscriptFragment carries recognized text, in arrival order.
type TranscriptFragment struct {
	Base
	Text string
}

func (TranscriptFragment) transcript() {}

// NewTranscriptFragment creates a fragment event. Use [FromMessage] for
// payloads read off the wire, where empty text means a boundary.
func NewTranscriptFragment(text string) TranscriptFragment {
	return TranscriptFragment{Base: NewBase(KindTranscriptFragment), Text: text}
}

// TranscriptBoundary marks a segment boundary reported by the service.
type TranscriptBoundary struct{ Base }

func (TranscriptBoundary) transcript() {}

// NewTranscriptBoundary creates a boundary event.
func NewTranscriptBoundary() TranscriptBoundary {
	return TranscriptBoundary{Base: NewBase(KindTranscriptBoundary)}
}

// FromMessage translates one inbound message payload. The service signals
// a boundary by sending an empty message; this is the only place that
// convention is interpreted.
func FromMessage(payload string) Transcript {
	if payload == "" {
		return NewTranscriptBoundary()
	}
	return NewTranscriptFragment(payload)
}
