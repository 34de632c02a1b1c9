// Package config loads service configuration from defaults, an optional YAML
// file, a .env file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Speech engine providers.
const (
	ProviderMock   = "mock"
	ProviderGoogle = "google"
)

// Config holds all service configuration.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Speech        SpeechConfig        `yaml:"speech"`
	Audio         AudioConfig         `yaml:"audio"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	NATS          NATSConfig          `yaml:"nats"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServiceConfig holds service identity and listener settings.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	GRPCPort    string `yaml:"grpcPort"`
	HTTPPort    string `yaml:"httpPort"`
	Participant string `yaml:"participant"` // Label for local microphone transcripts
	AutoStart   bool   `yaml:"autoStart"`
}

// SpeechConfig holds recognition engine settings.
type SpeechConfig struct {
	Provider        string        `yaml:"provider"` // "mock" or "google"
	Locale          string        `yaml:"locale"`
	Continuous      bool          `yaml:"continuous"`
	InterimResults  bool          `yaml:"interimResults"`
	MaxAlternatives int           `yaml:"maxAlternatives"`
	RestartDelay    time.Duration `yaml:"restartDelay"`
	SampleRateHz    int           `yaml:"sampleRateHz"`
	AudioEncoding   string        `yaml:"audioEncoding"`
	Endpoint        string        `yaml:"endpoint"`
}

// AudioConfig holds activity monitor settings.
type AudioConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Source            string        `yaml:"source"` // WAV file replayed as the capture device
	Loop              bool          `yaml:"loop"`
	FFTSize           int           `yaml:"fftSize"`
	SpeakingThreshold float64       `yaml:"speakingThreshold"`
	TickInterval      time.Duration `yaml:"tickInterval"`
	EchoCancellation  bool          `yaml:"echoCancellation"`
	NoiseSuppression  bool          `yaml:"noiseSuppression"`
	AutoGainControl   bool          `yaml:"autoGainControl"`
}

// KafkaConfig holds Kafka publisher settings.
type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	TopicInterim string   `yaml:"topicInterim"`
	TopicFinal   string   `yaml:"topicFinal"`
	Principal    string   `yaml:"principal"`
}

// NATSConfig holds NATS publisher settings.
type NATSConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	SubjectInterim string `yaml:"subjectInterim"`
	SubjectFinal   string `yaml:"subjectFinal"`
}

// ObservabilityConfig holds logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel     string `yaml:"logLevel"`
	LogFormat    string `yaml:"logFormat"` // "json" or "console"
	MetricsAddr  string `yaml:"metricsAddr"`
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	OTLPInsecure bool   `yaml:"otlpInsecure"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "zoom-transcript-service",
			Environment: "development",
			GRPCPort:    "50051",
			HTTPPort:    "8080",
			Participant: "Local User",
		},
		Speech: SpeechConfig{
			Provider:        ProviderMock,
			Locale:          "en-US",
			Continuous:      true,
			InterimResults:  true,
			MaxAlternatives: 1,
			RestartDelay:    100 * time.Millisecond,
			SampleRateHz:    16000,
			AudioEncoding:   "LINEAR16",
		},
		Audio: AudioConfig{
			FFTSize:           2048,
			SpeakingThreshold: 30,
			TickInterval:      time.Second / 60,
			EchoCancellation:  true,
			NoiseSuppression:  true,
			AutoGainControl:   true,
		},
		Kafka: KafkaConfig{
			TopicInterim: "meeting.transcript.interim",
			TopicFinal:   "meeting.transcript.final",
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			SubjectInterim: "meeting.transcript.interim",
			SubjectFinal:   "meeting.transcript.final",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsAddr: ":9090",
		},
	}
}

// Load builds the configuration. TRANSCRIPT_CONFIG_FILE names an optional
// YAML file; a missing .env file is ignored. Unparseable environment values
// keep the previous value.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("TRANSCRIPT_CONFIG_FILE"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	applyEnvOverrides(cfg)

	// Kafka principal falls back to the service name
	if cfg.Kafka.Principal == "" {
		cfg.Kafka.Principal = cfg.Service.Name
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Service.Name, "SERVICE_NAME")
	overrideString(&cfg.Service.Environment, "SERVICE_ENVIRONMENT")
	overrideString(&cfg.Service.GRPCPort, "GRPC_PORT")
	overrideString(&cfg.Service.HTTPPort, "HTTP_PORT")
	overrideString(&cfg.Service.Participant, "PARTICIPANT_NAME")
	overrideBool(&cfg.Service.AutoStart, "SESSION_AUTO_START")

	overrideString(&cfg.Speech.Provider, "STT_PROVIDER")
	overrideString(&cfg.Speech.Locale, "STT_LANGUAGE_CODE")
	overrideBool(&cfg.Speech.Continuous, "STT_CONTINUOUS")
	overrideBool(&cfg.Speech.InterimResults, "STT_INTERIM_RESULTS")
	overrideInt(&cfg.Speech.MaxAlternatives, "STT_MAX_ALTERNATIVES")
	overrideDuration(&cfg.Speech.RestartDelay, "STT_RESTART_DELAY")
	overrideInt(&cfg.Speech.SampleRateHz, "STT_SAMPLE_RATE_HZ")
	overrideString(&cfg.Speech.AudioEncoding, "STT_AUDIO_ENCODING")
	overrideString(&cfg.Speech.Endpoint, "STT_ENDPOINT")

	overrideBool(&cfg.Audio.Enabled, "AUDIO_ENABLED")
	overrideString(&cfg.Audio.Source, "AUDIO_SOURCE")
	overrideBool(&cfg.Audio.Loop, "AUDIO_LOOP")
	overrideInt(&cfg.Audio.FFTSize, "AUDIO_FFT_SIZE")
	overrideFloat(&cfg.Audio.SpeakingThreshold, "AUDIO_SPEAKING_THRESHOLD")
	overrideDuration(&cfg.Audio.TickInterval, "AUDIO_TICK_INTERVAL")
	overrideBool(&cfg.Audio.EchoCancellation, "AUDIO_ECHO_CANCELLATION")
	overrideBool(&cfg.Audio.NoiseSuppression, "AUDIO_NOISE_SUPPRESSION")
	overrideBool(&cfg.Audio.AutoGainControl, "AUDIO_AUTO_GAIN_CONTROL")

	overrideBool(&cfg.Kafka.Enabled, "KAFKA_ENABLED")
	overrideStringSlice(&cfg.Kafka.Brokers, "KAFKA_BROKERS")
	overrideString(&cfg.Kafka.TopicInterim, "KAFKA_TOPIC_INTERIM")
	overrideString(&cfg.Kafka.TopicFinal, "KAFKA_TOPIC_FINAL")
	overrideString(&cfg.Kafka.Principal, "KAFKA_PRINCIPAL")

	overrideBool(&cfg.NATS.Enabled, "NATS_ENABLED")
	overrideString(&cfg.NATS.URL, "NATS_URL")
	overrideString(&cfg.NATS.SubjectInterim, "NATS_SUBJECT_INTERIM")
	overrideString(&cfg.NATS.SubjectFinal, "NATS_SUBJECT_FINAL")

	overrideString(&cfg.Observability.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.Observability.LogFormat, "LOG_FORMAT")
	overrideString(&cfg.Observability.MetricsAddr, "METRICS_ADDR")
	overrideString(&cfg.Observability.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	overrideBool(&cfg.Observability.OTLPInsecure, "OTEL_EXPORTER_OTLP_INSECURE")
}

// Validate rejects settings the components cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Speech.Provider {
	case ProviderMock, ProviderGoogle:
	default:
		errs = append(errs, fmt.Errorf("speech.provider %q must be %q or %q", c.Speech.Provider, ProviderMock, ProviderGoogle))
	}
	if c.Speech.RestartDelay < 0 {
		errs = append(errs, fmt.Errorf("speech.restartDelay must not be negative, got %v", c.Speech.RestartDelay))
	}
	if c.Speech.MaxAlternatives < 1 {
		errs = append(errs, fmt.Errorf("speech.maxAlternatives must be at least 1, got %d", c.Speech.MaxAlternatives))
	}
	if n := c.Audio.FFTSize; n < 32 || n > 32768 || n&(n-1) != 0 {
		errs = append(errs, fmt.Errorf("audio.fftSize %d must be a power of two in [32, 32768]", n))
	}
	if t := c.Audio.SpeakingThreshold; t < 0 || t > 255 {
		errs = append(errs, fmt.Errorf("audio.speakingThreshold %v must be within [0, 255]", t))
	}
	if c.Audio.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("audio.tickInterval must be positive, got %v", c.Audio.TickInterval))
	}
	if c.Audio.Enabled && c.Audio.Source == "" {
		errs = append(errs, errors.New("audio.source is required when audio monitoring is enabled"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	return errors.Join(errs...)
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func overrideBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overrideFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func overrideDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
