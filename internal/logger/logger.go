package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var root *zap.SugaredLogger

func init() {
	root = zap.Must(newProduction()).Sugar()
}

func newProduction() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Named returns the process logger scoped to a component name.
func Named(name string) *zap.SugaredLogger {
	return root.Named(name)
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	_ = root.Sync()
}
