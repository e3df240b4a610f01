// Package logging builds the zap logger shared by the CLI, the pipeline and
// the status server.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config holds logging configuration.
type Config struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate checks config for errors.
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch c.Format {
	case FormatAuto, FormatConsole, FormatJSON:
		return nil
	}
	return fmt.Errorf("log format must be %q, %q or %q, got %q", FormatAuto, FormatConsole, FormatJSON, c.Format)
}

// New writes to stderr. The auto format picks console output on a terminal
// and JSON otherwise.
func New(cfg Config) (*zap.Logger, error) {
	return NewWithWriter(cfg, os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
}

// NewWithWriter is New with an explicit sink; tty resolves the auto format.
func NewWithWriter(cfg Config, w io.Writer, tty bool) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	level, _ := zapcore.ParseLevel(cfg.Level)

	format := cfg.Format
	if format == FormatAuto {
		format = FormatJSON
		if tty {
			format = FormatConsole
		}
	}

	core := zapcore.NewCore(newEncoder(format), zapcore.AddSync(w), level)
	return zap.New(core, zap.AddCaller()), nil
}

func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == FormatConsole {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}
