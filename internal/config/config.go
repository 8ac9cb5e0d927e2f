// Package config loads livescribe settings from flags, environment
// variables (prefixed LIVESCRIBE_), an optional config file and a .env
// file, in that order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/joho/godotenv"
	"github.com/koscakluka/livescribe/core/audio"
	"github.com/koscakluka/livescribe/core/speechtotext"
	"github.com/koscakluka/livescribe/core/speechtotext/batch"
	"github.com/spf13/viper"
)

const EnvPrefix = "LIVESCRIBE"

const (
	BackendWebsocket = "websocket"
	BackendDeepgram  = "deepgram"

	CaptureMiniaudio = "miniaudio"
	CapturePortaudio = "portaudio"
	CaptureWav       = "wav"

	DefaultEndpoint = "ws://localhost:8000/ws"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Endpoint      string `mapstructure:"endpoint" json:"endpoint" jsonschema:"description=Websocket address of the streaming ASR service,default=ws://localhost:8000/ws"`
	BatchEndpoint string `mapstructure:"batch_endpoint" json:"batch_endpoint" jsonschema:"description=HTTP address of the file transcription service,default=http://localhost:8000/asr/"`

	Backend string `mapstructure:"backend" json:"backend" jsonschema:"description=Streaming backend,enum=websocket,enum=deepgram,default=websocket"`
	Capture string `mapstructure:"capture" json:"capture" jsonschema:"description=Audio capture source,enum=miniaudio,enum=portaudio,enum=wav,default=miniaudio"`

	WavFile  string `mapstructure:"wav_file" json:"wav_file,omitempty" jsonschema:"description=16 kHz mono PCM file replayed when capture is wav"`
	Realtime bool   `mapstructure:"realtime" json:"realtime,omitempty" jsonschema:"description=Pace wav replay in real time"`

	BlockSize   int           `mapstructure:"block_size" json:"block_size" jsonschema:"description=Samples per audio frame,minimum=1,default=4096"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" json:"dial_timeout" jsonschema:"type=string,description=Handshake timeout such as 10s"`

	MetricsAddr string `mapstructure:"metrics_addr" json:"metrics_addr,omitempty" jsonschema:"description=Address serving Prometheus metrics; disabled when empty"`
	LogLevel    string `mapstructure:"log_level" json:"log_level" jsonschema:"description=Log level,enum=debug,enum=info,enum=warn,enum=error,default=info"`

	DeepgramAPIKey string `mapstructure:"deepgram_api_key" json:"deepgram_api_key,omitempty" jsonschema:"description=Deepgram API key used by the deepgram backend"`
	DeepgramModel  string `mapstructure:"deepgram_model" json:"deepgram_model,omitempty" jsonschema:"description=Deepgram model,default=nova-3"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", DefaultEndpoint)
	v.SetDefault("batch_endpoint", batch.DefaultEndpoint)
	v.SetDefault("backend", BackendWebsocket)
	v.SetDefault("capture", CaptureMiniaudio)
	v.SetDefault("wav_file", "")
	v.SetDefault("realtime", true)
	v.SetDefault("block_size", audio.DefaultBlockSize)
	v.SetDefault("dial_timeout", speechtotext.DefaultDialTimeout)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("deepgram_api_key", "")
	v.SetDefault("deepgram_model", "nova-3")
}

// NewViper returns a viper instance reading LIVESCRIBE_* variables and an
// optional config file. A .env file in the working directory is loaded
// into the environment first if present.
func NewViper(configFile string) (*viper.Viper, error) {
	// A missing .env is normal; the environment is used as-is.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// The Deepgram SDK convention is an unprefixed variable.
	_ = v.BindEnv("deepgram_api_key", EnvPrefix+"_DEEPGRAM_API_KEY", "DEEPGRAM_API_KEY")
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs error
	if c.BlockSize <= 0 {
		errs = errors.Join(errs, fmt.Errorf("%w: block_size must be positive, got %d", ErrInvalidConfig, c.BlockSize))
	}
	if c.DialTimeout < 0 {
		errs = errors.Join(errs, fmt.Errorf("%w: dial_timeout must not be negative", ErrInvalidConfig))
	}
	if !slices.Contains([]string{BackendWebsocket, BackendDeepgram}, c.Backend) {
		errs = errors.Join(errs, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend))
	}
	if !slices.Contains([]string{CaptureMiniaudio, CapturePortaudio, CaptureWav}, c.Capture) {
		errs = errors.Join(errs, fmt.Errorf("%w: unknown capture %q", ErrInvalidConfig, c.Capture))
	}
	if c.Capture == CaptureWav && c.WavFile == "" {
		errs = errors.Join(errs, fmt.Errorf("%w: wav capture needs wav_file", ErrInvalidConfig))
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.LogLevel) {
		errs = errors.Join(errs, fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel))
	}
	if c.Backend == BackendWebsocket {
		if err := validateURL(c.Endpoint, "ws", "wss"); err != nil {
			errs = errors.Join(errs, fmt.Errorf("%w: endpoint: %w", ErrInvalidConfig, err))
		}
	}
	if err := validateURL(c.BatchEndpoint, "http", "https"); err != nil {
		errs = errors.Join(errs, fmt.Errorf("%w: batch_endpoint: %w", ErrInvalidConfig, err))
	}
	return errs
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !slices.Contains(schemes, parsed.Scheme) {
		return fmt.Errorf("scheme of %q must be one of %v", raw, schemes)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

// Schema returns the JSON schema describing Config.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true, RequiredFromJSONSchemaTags: true}
	return reflector.Reflect(&Config{})
}

// SchemaJSON renders Schema indented for printing.
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}
