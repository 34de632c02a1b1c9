// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultService tags log lines when Config.Service is empty.
const DefaultService = "zoom-transcript-service"

// Config holds logging configuration.
type Config struct {
	Level       string // debug, info, warn, error
	Format      string // json, console
	TimeFormat  string // RFC3339, Unix, etc.
	Service     string
	Environment string
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	InitWithWriter(cfg, os.Stdout)
}

// InitWithWriter initializes the global logger writing to out.
func InitWithWriter(cfg Config, out io.Writer) {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := out
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
		}
	}

	service := cfg.Service
	if service == "" {
		service = DefaultService
	}
	ctx := zerolog.New(output).With().Timestamp().Str("service", service)
	if cfg.Environment != "" {
		ctx = ctx.Str("env", cfg.Environment)
	}
	log.Logger = ctx.Logger()
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithSession returns a logger with speech session context.
func WithSession(sessionID, participant string) zerolog.Logger {
	return log.With().
		Str("component", "speech").
		Str("sessionId", sessionID).
		Str("participant", participant).
		Logger()
}

// WithDevice returns a logger with audio device context.
func WithDevice(device string) zerolog.Logger {
	return log.With().
		Str("component", "audio").
		Str("device", device).
		Logger()
}
