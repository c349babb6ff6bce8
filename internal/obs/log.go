package obs

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerOnce sync.Once
	logger     *zap.Logger
)

// Logger returns the shared structured logger used across the service.
// Production JSON encoding, ISO8601 timestamps, service and hostname fields.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}

		base, err := cfg.Build()
		if err != nil {
			base = zap.NewNop()
		}
		base = base.With(zap.String("service", "propdesk-api"))
		if hostname, err := os.Hostname(); err == nil && hostname != "" {
			base = base.With(zap.String("hostname", hostname))
		}
		logger = base
	})
	return logger
}

// ReplaceLoggerForTests swaps the shared logger and returns a restore func.
func ReplaceLoggerForTests(l *zap.Logger) func() {
	Logger() // ensure initialised
	prev := logger
	logger = l
	return func() { logger = prev }
}
