package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Setup builds the process logger for the given level and installs it as the zap global.
func Setup(logLevel string) *zap.Logger {
	var level zapcore.Level

	switch logLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig = encoderConfig

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		l = zap.NewExample()
	}
	zap.ReplaceGlobals(l)
	return l
}

func WithModule(module string) *zap.Logger {
	return zap.L().With(zap.String("module", module))
}
