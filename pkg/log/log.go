package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(level Level) zerolog.Level {
	switch level {
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init initializes the global logger
func Init(cfg Config) {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithNodeID creates a child logger with node_id field
func WithNodeID(nodeID string) zerolog.Logger {
	return Logger.With().Str("node_id", nodeID).Logger()
}

// WithEvent creates a child logger scoped to one event delivery
func WithEvent(l zerolog.Logger, kind, id string) zerolog.Logger {
	return l.With().Str("event", kind).Str("event_id", id).Logger()
}

// At returns an event builder for a level name. Unknown names log at info.
func At(l *zerolog.Logger, level Level) *zerolog.Event {
	switch level {
	case DebugLevel:
		return l.Debug()
	case WarnLevel:
		return l.Warn()
	case ErrorLevel:
		return l.Error()
	default:
		return l.Info()
	}
}

func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}
