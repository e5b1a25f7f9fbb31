// Package logger holds the process-wide zap logger and the field names
// AMS logs with.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide logger. It discards everything until Initialize.
var Logger = zap.NewNop().Sugar()

// Initialize replaces Logger.
// jsonOutput selects production JSON on stderr; otherwise a console encoder
// writes to stderr so command output on stdout stays clean.
func Initialize(jsonOutput bool, verbosity int) error {
	level := zap.NewAtomicLevelAt(VerbosityToLevel(verbosity))

	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = level
		l, err := cfg.Build()
		if err != nil {
			return err
		}
		Logger = l.Sugar()
		return nil
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
	Logger = zap.New(core).Sugar()
	return nil
}

// OrNop returns l, or a no-op logger when l is nil.
// Constructors use it so callers may pass a nil logger.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}

// Cleanup flushes buffered entries
func Cleanup() {
	_ = Logger.Sync()
}
