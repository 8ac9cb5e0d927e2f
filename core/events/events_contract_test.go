package events

import (
	"errors"
	"testing"
)

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "transcript fragment", event: NewTranscriptFragment("hello"), expected: KindTranscriptFragment},
		{name: "transcript boundary", event: NewTranscriptBoundary(), expected: KindTranscriptBoundary},
		{name: "session opened", event: NewSessionOpened("id"), expected: KindSessionOpened},
		{name: "session closed", event: NewSessionClosed("id"), expected: KindSessionClosed},
		{name: "session failed", event: NewSessionFailed("id", errors.New("boom")), expected: KindSessionFailed},
		{name: "audio frame sent", event: NewAudioFrameSent(4096, 8192), expected: KindAudioFrameSent},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if testCase.event.Timestamp().IsZero() {
				t.Fatalf("expected timestamp to be set")
			}
		})
	}
}

func TestFromMessageTranslatesEmptyPayloadToBoundary(t *testing.T) {
	if _, ok := FromMessage("").(TranscriptBoundary); !ok {
		t.Fatalf("expected empty payload to be a boundary")
	}

	fragment, ok := FromMessage("hello world").(TranscriptFragment)
	if !ok {
		t.Fatalf("expected non-empty payload to be a fragment")
	}
	if fragment.Text != "hello world" {
		t.Fatalf("expected fragment text %q, got %q", "hello world", fragment.Text)
	}
}

func TestFromMessageKeepsWhitespaceOnlyPayloadAsFragment(t *testing.T) {
	fragment, ok := FromMessage(" ").(TranscriptFragment)
	if !ok || fragment.Text != " " {
		t.Fatalf("expected whitespace payload to stay a fragment, got %#v", fragment)
	}
}
