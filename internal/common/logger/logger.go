package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap with the action/fields call shape used across services.
type Logger struct {
	z       *zap.Logger
	service string
}

func New(service string) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	z, err := cfg.Build(zap.Fields(
		zap.String("service", service),
		zap.String("hostname", hostname()),
	))
	if err != nil {
		z = zap.NewNop()
	}
	return &Logger{z: z, service: service}
}

// Nop returns a logger that discards everything. For tests.
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

func (l *Logger) Info(action string, fields map[string]any) {
	l.z.Info(action, toZap(fields)...)
}

func (l *Logger) Debug(action string, fields map[string]any) {
	l.z.Debug(action, toZap(fields)...)
}

func (l *Logger) Warn(action string, fields map[string]any) {
	l.z.Warn(action, toZap(fields)...)
}

func (l *Logger) Error(action string, err error, fields map[string]any) {
	zf := toZap(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	l.z.Error(action, zf...)
}

func (l *Logger) Sync() { _ = l.z.Sync() }

func toZap(fields map[string]any) []zap.Field {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return zf
}

func hostname() string { h, _ := os.Hostname(); return h }
