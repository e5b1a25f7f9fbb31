package logger

import "go.uber.org/zap/zapcore"

// CLI -v counts
const (
	VerbosityUser  = 0 // results, warnings and errors
	VerbosityInfo  = 1 // -v: per-item outcomes
	VerbosityDebug = 2 // -vv: store, index and job operations
)

// VerbosityToLevel maps a -v count to a zap level
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
