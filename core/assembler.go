package orchestration

import (
	"strings"
	"sync"

	"github.com/koscakluka/livescribe/core/events"
)

// LineBreakThreshold is the number of boundaries a session has to see
// before fragments start on a new line.
const LineBreakThreshold = 3

// TranscriptState is a point-in-time view of the assembled transcript.
type TranscriptState struct {
	Text           string
	BoundariesSeen int
}

// TranscriptAssembler folds transcript events into display text. Each
// fragment is appended followed by a space; once more than
// LineBreakThreshold boundaries have been seen, every fragment is preceded
// by a newline as well. The boundary count only grows until Reset.
//
// Safe for concurrent use; events are applied atomically in call order.
type TranscriptAssembler struct {
	mu             sync.Mutex
	text           strings.Builder
	boundariesSeen int
}

func NewTranscriptAssembler() *TranscriptAssembler {
	return &TranscriptAssembler{}
}

// Apply folds one event and returns the full text after it.
func (a *TranscriptAssembler) Apply(event events.Transcript) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch e := event.(type) {
	case events.TranscriptBoundary:
		a.boundariesSeen++
	case events.TranscriptFragment:
		if a.boundariesSeen > LineBreakThreshold {
			a.text.WriteString("\n")
		}
		a.text.WriteString(e.Text)
		a.text.WriteString(" ")
	}

	return a.text.String()
}

func (a *TranscriptAssembler) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text.String()
}

func (a *TranscriptAssembler) BoundariesSeen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.boundariesSeen
}

func (a *TranscriptAssembler) State() TranscriptState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return TranscriptState{Text: a.text.String(), BoundariesSeen: a.boundariesSeen}
}

// Reset clears the text and boundary count for a new session.
func (a *TranscriptAssembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.text.Reset()
	a.boundariesSeen = 0
}

// Assemble folds events in order starting from an empty transcript.
func Assemble(transcriptEvents ...events.Transcript) TranscriptState {
	assembler := NewTranscriptAssembler()
	for _, event := range transcriptEvents {
		assembler.Apply(event)
	}
	return assembler.State()
}
