package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/koscakluka/livescribe/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	logger     = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "livescribe"})
	settings   *viper.Viper
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "livescribe",
	Short: "Live speech transcription from the microphone",
	Long: `livescribe streams microphone audio to a speech recognition service and
renders the transcript as it arrives. It can also transcribe a recorded
file in a single request.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.NewViper(configFile)
		if err != nil {
			return err
		}
		if err := bindFlags(cmd, v); err != nil {
			return err
		}
		settings = v

		level, err := log.ParseLevel(v.GetString("log_level"))
		if err != nil {
			return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
		}
		logger.SetLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("endpoint", "", "Websocket address of the streaming service")
	rootCmd.PersistentFlags().String("batch-endpoint", "", "HTTP address of the file transcription service")
	rootCmd.PersistentFlags().String("backend", "", "Streaming backend: websocket or deepgram")
	rootCmd.PersistentFlags().String("capture", "", "Audio source: miniaudio, portaudio or wav")
	rootCmd.PersistentFlags().String("wav-file", "", "WAV file replayed when capture is wav")
	rootCmd.PersistentFlags().Bool("realtime", true, "Pace wav replay in real time")
	rootCmd.PersistentFlags().Int("block-size", 0, "Samples per audio frame")
	rootCmd.PersistentFlags().Duration("dial-timeout", 0, "Handshake timeout")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Address serving Prometheus metrics")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("deepgram-api-key", "", "Deepgram API key")

	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(configCmd)
}

// bindFlags binds only flags the user set, so unset flags do not shadow
// environment variables and config file values.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for _, name := range []string{
		"endpoint", "batch-endpoint", "backend", "capture", "wav-file", "realtime",
		"block-size", "dial-timeout", "metrics-addr", "log-level", "deepgram-api-key",
	} {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(flagKey(name), flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

func loadConfig() (*config.Config, error) {
	return config.Load(settings)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
