// Package logging builds the zap logger used across foliod.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a zap logger writing to stderr.
//
// level is one of debug, info, warn, error. format is "json" or
// "console".
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("unknown log format: %q", format)
	}

	ws, _, err := zap.Open("stderr")
	if err != nil {
		return nil, fmt.Errorf("failed to open log sink: %w", err)
	}

	core := zapcore.NewCore(encoder, ws, lvl)
	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
