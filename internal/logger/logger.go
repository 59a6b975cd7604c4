package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/orrn/printdispatch/internal/config"
)

// New builds a zap logger from the logging section of the config.
// "json" gives production JSON lines, "text" and "plain" give console output.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	encoding := "json"
	switch cfg.Format {
	case "text":
		encoding = "console"
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	case "plain":
		encoding = "console"
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderCfg.TimeKey = ""
		encoderCfg.CallerKey = ""
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zcfg.Build()
}
