package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/livescribe/core"
	"github.com/koscakluka/livescribe/core/events"
	"github.com/koscakluka/livescribe/internal/metrics"
	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Transcribe the microphone live in an interactive view",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		m, stopMetrics := startMetrics(cfg)
		defer stopMetrics()

		ctx, cancel := context.WithCancel(cmd.Context())
		updates := make(chan tea.Msg, 64)

		o := newOrchestrator(cfg, func() {
			publish(ctx, updates, captureDoneMsg{}, false)
		})

		ui := newModel(ctx, o, updates, orchestration.WithEventCallback(observeSession(ctx, updates, m)))

		logger.Info("starting", "backend", cfg.Backend, "capture", cfg.Capture, "block_size", cfg.BlockSize)
		_, runErr := tea.NewProgram(ui, tea.WithAltScreen(), tea.WithContext(ctx)).Run()

		interrupted := ctx.Err() != nil
		// Callbacks block on updates until ctx is done, so cancel before
		// tearing the session down.
		cancel()
		if err := o.Close(); err != nil {
			logger.Error("failed to stop session", "err", err)
		}

		if runErr != nil && !interrupted {
			return fmt.Errorf("interactive view failed: %w", runErr)
		}
		fmt.Fprintln(cmd.OutOrStdout(), o.Transcript().Text)
		return nil
	},
}

// observeSession feeds session events to the metrics and tells the view
// when a session has ended. The end of a session must reach the view, so it
// is never dropped.
func observeSession(ctx context.Context, updates chan<- tea.Msg, m *metrics.Metrics) func(events.Event) {
	return func(event events.Event) {
		m.Observe(event)
		if event.Kind() == events.KindSessionClosed {
			publish(ctx, updates, sessionEndMsg{}, false)
		}
	}
}
