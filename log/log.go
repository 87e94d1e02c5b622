// Package log owns the process-wide zerolog logger. Components take child
// loggers from here so every line carries the run, environment and instance
// fields they were scoped with.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the root logger. Configure it once with Init before use.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

// Config controls the root logger's output.
type Config struct {
	// Verbose enables debug-level lines (per-poll wait output).
	Verbose bool
	// JSON switches from the console writer to raw JSON lines.
	JSON bool
	// Output defaults to stderr.
	Output io.Writer
}

// Init configures the root logger.
func Init(cfg Config) {
	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.JSON {
		Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRun tags a logger with a run id and environment.
func WithRun(l zerolog.Logger, runID, env string) zerolog.Logger {
	return l.With().Str("run_id", runID).Str("env", env).Logger()
}

// WithInstance tags a logger with an instance id.
func WithInstance(l zerolog.Logger, instanceID string) zerolog.Logger {
	return l.With().Str("instance", instanceID).Logger()
}

// WithGroup tags a logger with an autoscaling group name.
func WithGroup(l zerolog.Logger, group string) zerolog.Logger {
	return l.With().Str("asg", group).Logger()
}
