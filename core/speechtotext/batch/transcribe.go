package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Transcribe uploads the file at path and returns its transcript, or
// FallbackTranscript if anything fails. It never returns an error.
func (c *Client) Transcribe(ctx context.Context, path string) string {
	result, err := c.TranscribeFileWithError(ctx, path)
	if err != nil {
		logger.Error("batch transcription failed", "path", path, "error", err)
		return FallbackTranscript
	}
	return result.Transcript
}

// TranscribeReader uploads audio read from r under the given file name.
func (c *Client) TranscribeReader(ctx context.Context, name string, r io.Reader) string {
	result, err := c.TranscribeWithError(ctx, name, r)
	if err != nil {
		logger.Error("batch transcription failed", "name", name, "error", err)
		return FallbackTranscript
	}
	return result.Transcript
}

// TranscribeFileWithError is Transcribe for callers that want the cause of
// a failure. WAV files are checked locally before upload.
func (c *Client) TranscribeFileWithError(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open audio file: %w", ErrUpload, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		if err := validateWav(f); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpload, err)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("%w: failed to rewind audio file: %w", ErrUpload, err)
		}
	}

	return c.TranscribeWithError(ctx, filepath.Base(path), f)
}

func validateWav(r io.ReadSeeker) error {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return fmt.Errorf("%w: not a valid wav file", ErrInvalidAudio)
	}
	return nil
}

// TranscribeWithError performs the upload and returns every failure wrapped
// in ErrUpload.
func (c *Client) TranscribeWithError(ctx context.Context, name string, r io.Reader) (*Result, error) {
	ctx, span := tracer.Start(ctx, "transcribe file")
	defer span.End()
	span.SetAttributes(
		attribute.String("file.name", name),
		attribute.String("request.url", c.endpoint),
	)

	result, err := c.upload(ctx, name, r)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrUpload, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("transcript.length", len(result.Transcript)))
	return result, nil
}

func (c *Client) upload(ctx context.Context, name string, r io.Reader) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(formField, name)
	if err != nil {
		return nil, fmt.Errorf("error creating form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("error reading audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("error finalizing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("non-OK HTTP status %s: %s", resp.Status, strings.TrimSpace(string(errorBody)))
	}

	var response transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("error unmarshalling response: %w", err)
	}
	if response.Transcript == nil {
		return nil, fmt.Errorf("response has no transcript")
	}

	result := &Result{}
	if err := copier.Copy(result, &response); err != nil {
		return nil, fmt.Errorf("error converting response: %w", err)
	}
	return result, nil
}
