package main

import (
	"fmt"

	orchestration "github.com/koscakluka/livescribe/core"
	"github.com/koscakluka/livescribe/core/audio"
	"github.com/koscakluka/livescribe/core/audio/miniaudio"
	"github.com/koscakluka/livescribe/core/audio/portaudio"
	"github.com/koscakluka/livescribe/core/audio/wavfile"
	"github.com/koscakluka/livescribe/core/speechtotext"
	"github.com/koscakluka/livescribe/core/speechtotext/batch"
	"github.com/koscakluka/livescribe/core/speechtotext/deepgram"
	"github.com/koscakluka/livescribe/core/speechtotext/streaming"
	"github.com/koscakluka/livescribe/internal/config"
)

// captureFactory opens a fresh device per session so stopping a session
// releases the microphone.
func captureFactory(cfg *config.Config, onFinished func()) orchestration.AudioCaptureFactory {
	return func() (audio.Capture, error) {
		var (
			capture audio.Capture
			err     error
		)
		switch cfg.Capture {
		case config.CaptureMiniaudio:
			capture, err = asCapture(miniaudio.NewClient(cfg.BlockSize))
		case config.CapturePortaudio:
			capture, err = asCapture(portaudio.NewClient(cfg.BlockSize))
		case config.CaptureWav:
			capture, err = asCapture(wavfile.NewClient(cfg.WavFile, cfg.BlockSize,
				wavfile.WithRealtime(cfg.Realtime),
				wavfile.WithFinishedCallback(onFinished),
			))
		default:
			err = fmt.Errorf("%w: unknown capture %q", config.ErrInvalidConfig, cfg.Capture)
		}
		return capture, err
	}
}

// asCapture keeps a failed constructor from producing a non-nil interface
// holding a nil client.
func asCapture[C audio.Capture](client C, err error) (audio.Capture, error) {
	if err != nil {
		return nil, err
	}
	return client, nil
}

func streamingClientFactory(cfg *config.Config) orchestration.StreamingClientFactory {
	switch cfg.Backend {
	case config.BackendDeepgram:
		return func() speechtotext.StreamingClient {
			opts := []deepgram.ClientOption{deepgram.WithAPIKey(cfg.DeepgramAPIKey)}
			if cfg.DeepgramModel != "" {
				opts = append(opts, deepgram.WithModel(cfg.DeepgramModel))
			}
			return deepgram.NewTranscriptionClient(opts...)
		}
	default:
		return func() speechtotext.StreamingClient {
			return streaming.NewSession()
		}
	}
}

func sessionOptions(cfg *config.Config) []speechtotext.TranscriptionOption {
	opts := []speechtotext.TranscriptionOption{speechtotext.WithDialTimeout(cfg.DialTimeout)}
	if cfg.Backend == config.BackendWebsocket {
		opts = append(opts, speechtotext.WithEndpoint(cfg.Endpoint))
	}
	return opts
}

func newBatchClient(cfg *config.Config) *batch.Client {
	return batch.NewClient(batch.WithEndpoint(cfg.BatchEndpoint))
}

func newOrchestrator(cfg *config.Config, onCaptureFinished func()) *orchestration.Orchestrator {
	return orchestration.NewOrchestrator(
		orchestration.WithAudioCaptureFactory(captureFactory(cfg, onCaptureFinished)),
		orchestration.WithStreamingClientFactory(streamingClientFactory(cfg)),
		orchestration.WithSessionOptions(sessionOptions(cfg)...),
		orchestration.WithBatchTranscriber(newBatchClient(cfg)),
	)
}
