package stratum

import "go.uber.org/zap"

// defaultLogger is used by every core type that can log, until a WithLogger
// (or WithStateLogger / WithMarshallerLogger) option overrides it. Silent
// by default, matching the teacher's jsonrpc2.defaultLogger.
func defaultLogger() *zap.Logger {
	return zap.NewNop()
}
