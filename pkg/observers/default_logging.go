package observers

import "io"

// NewDefaultLoggingObserver creates a logging observer with default settings
// (LogInfo level, "PhaseSignal" prefix). A nil out writes to stdout.
func NewDefaultLoggingObserver(out io.Writer) *LoggingObserver {
	return NewLoggingObserver(LogInfo, "PhaseSignal", out)
}
