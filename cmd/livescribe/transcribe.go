package main

import (
	"context"
	"fmt"
	"time"

	"github.com/koscakluka/livescribe/core/speechtotext/batch"
	"github.com/koscakluka/livescribe/internal/config"
	"github.com/koscakluka/livescribe/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe FILE",
	Short: "Transcribe a recorded audio file in one request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		m, stopMetrics := startMetrics(cfg)
		defer stopMetrics()

		o := newOrchestrator(cfg, nil)
		defer o.Close()

		logger.Debug("uploading file", "path", args[0], "endpoint", cfg.BatchEndpoint)
		transcript := o.TranscribeFile(cmd.Context(), args[0])
		if transcript == batch.FallbackTranscript {
			logger.Error("transcription failed", "path", args[0])
			m.ObserveBatch(metrics.OutcomeFallback)
		} else {
			m.ObserveBatch(metrics.OutcomeSuccess)
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), transcript)
		return err
	},
}

// startMetrics registers the metrics and serves them when an address is
// configured. The returned function shuts the server down.
func startMetrics(cfg *config.Config) (*metrics.Metrics, func()) {
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	if cfg.MetricsAddr == "" {
		return m, func() {}
	}

	server := metrics.NewServer(cfg.MetricsAddr, registry)
	server.Start()
	return m, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", "err", err)
		}
	}
}
