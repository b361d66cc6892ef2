// Package observers provides observers for monitoring phase signals
package observers

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/anggasct/phasesignal"
)

// LogLevel represents the logging level
type LogLevel int

const (
	// LogError logs only errors
	LogError LogLevel = iota
	// LogWarning logs errors and warnings
	LogWarning
	// LogInfo logs errors, warnings, and info
	LogInfo
	// LogDebug logs errors, warnings, info, and debug
	LogDebug
)

// ParseLogLevel converts a level name into a LogLevel
func ParseLogLevel(s string) (LogLevel, error) {
	switch s {
	case "error":
		return LogError, nil
	case "warn", "warning":
		return LogWarning, nil
	case "info", "":
		return LogInfo, nil
	case "debug":
		return LogDebug, nil
	default:
		return LogInfo, phasesignal.NewConfigurationError("LogLevel", fmt.Sprintf("unknown log level '%s'", s))
	}
}

// LoggingObserver logs signal events
type LoggingObserver struct {
	level     LogLevel
	prefix    string
	mutex     sync.RWMutex
	out       io.Writer
	formatter LogFormatter
	colors    map[phasesignal.Phase]*color.Color
}

// LogFormatter formats log messages
type LogFormatter func(level LogLevel, format string, args ...interface{}) string

// DefaultLogFormatter provides default log formatting
func DefaultLogFormatter(level LogLevel, format string, args ...interface{}) string {
	levelStr := "INFO"
	switch level {
	case LogError:
		levelStr = "ERROR"
	case LogWarning:
		levelStr = "WARN"
	case LogInfo:
		levelStr = "INFO"
	case LogDebug:
		levelStr = "DEBUG"
	}

	return fmt.Sprintf("[%s] %s", levelStr, fmt.Sprintf(format, args...))
}

// NewLoggingObserver creates a new logging observer writing to out.
// A nil out writes to stdout.
func NewLoggingObserver(level LogLevel, prefix string, out io.Writer) *LoggingObserver {
	if out == nil {
		out = os.Stdout
	}
	return &LoggingObserver{
		level:     level,
		prefix:    prefix,
		out:       out,
		formatter: DefaultLogFormatter,
		colors: map[phasesignal.Phase]*color.Color{
			phasesignal.Red:   color.New(color.FgRed, color.Bold),
			phasesignal.Green: color.New(color.FgGreen, color.Bold),
		},
	}
}

// SetFormatter sets the log formatter
func (o *LoggingObserver) SetFormatter(formatter LogFormatter) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.formatter = formatter
}

// SetColor forces phase colouring on or off, overriding terminal detection
func (o *LoggingObserver) SetColor(enabled bool) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	for _, c := range o.colors {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

func (o *LoggingObserver) phase(p phasesignal.Phase) string {
	if c, ok := o.colors[p]; ok {
		return c.Sprint(p.String())
	}
	return p.String()
}

// log logs a message at the specified level. Waiters log from their own
// goroutines, so writes to out are serialized.
func (o *LoggingObserver) log(level LogLevel, format string, args ...interface{}) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if level > o.level {
		return
	}

	prefix := ""
	if o.prefix != "" {
		prefix = fmt.Sprintf("[%s] ", o.prefix)
	}

	message := ""
	if o.formatter != nil {
		message = o.formatter(level, format, args...)
	} else {
		message = fmt.Sprintf(format, args...)
	}

	fmt.Fprintf(o.out, "%s%s\n", prefix, message)
}

// OnTransition logs transitions
func (o *LoggingObserver) OnTransition(t phasesignal.Transition) {
	o.log(LogInfo, "%s: %s -> %s after %s (#%d)",
		t.Signal, o.phase(t.From), o.phase(t.To), t.Held.Round(time.Millisecond), t.Seq)
	o.log(LogDebug, "%s: transition %s target %s overshoot %s", t.Signal, t.ID, t.Target, t.Overshoot())
}

// OnSignalStarted logs loop start
func (o *LoggingObserver) OnSignalStarted(signal string) {
	o.log(LogInfo, "%s: cycling started", signal)
}

// OnSignalStopped logs loop exit
func (o *LoggingObserver) OnSignalStopped(signal string, reason error) {
	o.log(LogInfo, "%s: cycling stopped: %v", signal, reason)
}

// OnWaiterRegistered logs a new waiter
func (o *LoggingObserver) OnWaiterRegistered(signal string, phase phasesignal.Phase) {
	o.log(LogDebug, "%s: waiter blocked until %s", signal, o.phase(phase))
}

// OnWaiterReleased logs a returning waiter
func (o *LoggingObserver) OnWaiterReleased(signal string, phase phasesignal.Phase, err error) {
	if err != nil {
		o.log(LogWarning, "%s: waiter for %s gave up: %v", signal, o.phase(phase), err)
		return
	}
	o.log(LogDebug, "%s: waiter released on %s", signal, o.phase(phase))
}

// OnError logs errors
func (o *LoggingObserver) OnError(err error) {
	o.log(LogError, "Error: %v", err)
}
