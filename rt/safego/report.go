package safego

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	fallback     *zap.Logger
	fallbackOnce sync.Once
)

// fallbackLogger writes warn+ records to stderr.
func fallbackLogger() *zap.Logger {
	fallbackOnce.Do(func() {
		enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		fallback = zap.New(zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zap.WarnLevel))
	})
	return fallback
}

func (c config) log() *zap.Logger {
	if c.logger != nil {
		return c.logger
	}
	return fallbackLogger()
}

func tagFields(name string, tags []Tag) []zap.Field {
	fields := make([]zap.Field, 0, len(tags)+1)
	if name != "" {
		fields = append(fields, zap.String("name", name))
	}
	for _, t := range tags {
		fields = append(fields, zap.String(t.Key, t.Value))
	}
	return fields
}

func reportPanic(l *zap.Logger, info PanicInfo) {
	fields := tagFields(info.Name, info.Tags)
	fields = append(fields, zap.Any("panic", info.Value), zap.ByteString("stack", info.Stack))
	l.Error("safego: panic", fields...)
}

func reportError(l *zap.Logger, info ErrorInfo) {
	fields := tagFields(info.Name, info.Tags)
	fields = append(fields, zap.Error(info.Err))
	l.Error("safego: error", fields...)
}
