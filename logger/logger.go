package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logMu sync.RWMutex
	log   *zap.Logger
)

// Init builds the process logger. dev selects the console-friendly
// development encoder; level is any zapcore level name ("debug", "info", ...).
func Init(level string, dev bool) error {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	setLogger(l)
	return nil
}

func setLogger(l *zap.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	zap.ReplaceGlobals(l)
	if log != nil {
		_ = log.Sync()
	}
	log = l
}

// L returns the process logger, or zap's global (a no-op until Init) when
// Init has not run.
func L() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	if log != nil {
		return log
	}
	return zap.L()
}

// Sync flushes buffered entries.
func Sync() {
	logMu.RLock()
	defer logMu.RUnlock()
	if log != nil {
		_ = log.Sync()
	}
}
