package config

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink receives diagnostic messages.
type Sink interface {
	Log(msg string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(msg string)

func (f SinkFunc) Log(msg string) { f(msg) }

type zapSink struct {
	logger *zap.Logger
}

// ZapSink forwards messages to a zap logger at info level. A nil logger
// uses StderrLogger.
func ZapSink(l *zap.Logger) Sink {
	if l == nil {
		l = StderrLogger()
	}
	return zapSink{logger: l}
}

func (s zapSink) Log(msg string) {
	s.logger.Info(msg)
}

var (
	stderrLogger     *zap.Logger
	stderrLoggerOnce sync.Once
)

// StderrLogger returns the console logger writing to standard error that
// backs the default sink.
func StderrLogger() *zap.Logger {
	stderrLoggerOnce.Do(func() {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.TimeKey = ""
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(enc),
			zapcore.Lock(os.Stderr),
			zapcore.DebugLevel,
		)
		stderrLogger = zap.New(core).Named("nativebind")
	})
	return stderrLogger
}

// DefaultSink returns the standard error sink.
func DefaultSink() Sink {
	return ZapSink(StderrLogger())
}
