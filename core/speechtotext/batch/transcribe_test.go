package batch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func newASRServer(t *testing.T, handler func(w http.ResponseWriter, name string, content []byte)) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		file, header, err := r.FormFile(formField)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handler(w, header.Filename, content)
	}))
	t.Cleanup(server.Close)
	return server
}

func writeWav(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "sample.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create wav: %v", err)
	}
	defer f.Close()

	encoder := wav.NewEncoder(f, 16000, 16, 1, 1)
	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           []int{0, 100, -100, 200},
		SourceBitDepth: 16,
	}
	if err := encoder.Write(buffer); err != nil {
		t.Fatalf("failed to write wav: %v", err)
	}
	if err := encoder.Close(); err != nil {
		t.Fatalf("failed to finalize wav: %v", err)
	}
	return path
}

func TestTranscribeReturnsTranscript(t *testing.T) {
	var gotName string
	var gotContent []byte
	server := newASRServer(t, func(w http.ResponseWriter, name string, content []byte) {
		gotName = name
		gotContent = content
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"transcript":"hello world","language":"en"}`)
	})

	client := NewClient(WithEndpoint(server.URL + "/asr/"))
	result, err := client.TranscribeWithError(context.Background(), "clip.wav", strings.NewReader("audio bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Transcript != "hello world" {
		t.Fatalf("expected transcript %q, got %q", "hello world", result.Transcript)
	}
	if result.Language != "en" {
		t.Fatalf("expected language %q, got %q", "en", result.Language)
	}
	if gotName != "clip.wav" {
		t.Fatalf("expected file name clip.wav, got %q", gotName)
	}
	if string(gotContent) != "audio bytes" {
		t.Fatalf("expected uploaded content to round trip, got %q", gotContent)
	}
}

func TestTranscribeFallsBackOnFailure(t *testing.T) {
	testCases := []struct {
		name    string
		handler func(w http.ResponseWriter, name string, content []byte)
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ string, _ []byte) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, _ string, _ []byte) {
				_, _ = io.WriteString(w, `{"transcript":`)
			},
		},
		{
			name: "missing transcript",
			handler: func(w http.ResponseWriter, _ string, _ []byte) {
				_, _ = io.WriteString(w, `{"detail":"nope"}`)
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server := newASRServer(t, testCase.handler)
			client := NewClient(WithEndpoint(server.URL))

			got := client.TranscribeReader(context.Background(), "clip.wav", strings.NewReader("x"))
			if got != FallbackTranscript {
				t.Fatalf("expected fallback, got %q", got)
			}

			_, err := client.TranscribeWithError(context.Background(), "clip.wav", strings.NewReader("x"))
			if !errors.Is(err, ErrUpload) {
				t.Fatalf("expected ErrUpload, got %v", err)
			}
		})
	}
}

func TestTranscribeFallsBackWhenServiceUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	client := NewClient(WithEndpoint(endpoint))
	if got := client.TranscribeReader(context.Background(), "clip.wav", strings.NewReader("x")); got != FallbackTranscript {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestTranscribeFileValidatesWav(t *testing.T) {
	uploads := 0
	server := newASRServer(t, func(w http.ResponseWriter, _ string, _ []byte) {
		uploads++
		_, _ = io.WriteString(w, `{"transcript":"ok"}`)
	})
	client := NewClient(WithEndpoint(server.URL))
	dir := t.TempDir()

	valid := writeWav(t, dir)
	if got := client.Transcribe(context.Background(), valid); got != "ok" {
		t.Fatalf("expected transcript for valid wav, got %q", got)
	}

	invalid := filepath.Join(dir, "broken.wav")
	if err := os.WriteFile(invalid, []byte("not a riff file"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	_, err := client.TranscribeFileWithError(context.Background(), invalid)
	if !errors.Is(err, ErrInvalidAudio) {
		t.Fatalf("expected ErrInvalidAudio, got %v", err)
	}
	if got := client.Transcribe(context.Background(), invalid); got != FallbackTranscript {
		t.Fatalf("expected fallback for invalid wav, got %q", got)
	}

	if got := client.Transcribe(context.Background(), filepath.Join(dir, "missing.wav")); got != FallbackTranscript {
		t.Fatalf("expected fallback for missing file, got %q", got)
	}

	if uploads != 1 {
		t.Fatalf("expected only the valid file to be uploaded, got %d uploads", uploads)
	}
}
