package ssdb

import "log"

// Log writes a formatted message to logger if non-nil. Call sites pass
// Options.InfoLog, which may be nil when logging has been disabled.
func Log(logger *log.Logger, format string, args ...interface{}) {
	if logger == nil {
		return
	}
	logger.Printf(format, args...)
}
