// Package sklog provides simple leveled logging used throughout the engine
// for conditions that are worth recording but are not themselves control-flow
// errors (e.g. a jobserver admission predicate blocking, a GNU make probe
// failing once at startup).
package sklog

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Severity identifies the level of a log line, in increasing order of
// urgency.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
	Fatal
)

func (s Severity) prefix() string {
	switch s {
	case Debug:
		return "D"
	case Info:
		return "I"
	case Warning:
		return "W"
	case Error:
		return "E"
	case Fatal:
		return "F"
	default:
		return "?"
	}
}

var (
	mu     sync.Mutex
	out    io.Writer = os.Stderr
	logger           = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	exitFn           = os.Exit
)

// SetOutput redirects all future log lines to w. Used by tests to capture
// output instead of writing to stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	logger = log.New(w, "", log.LstdFlags|log.Lmicroseconds)
}

func logAt(sev Severity, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	logger.Printf("%s] %s", sev.prefix(), msg)
	if sev == Fatal {
		exitFn(1)
	}
}

func Debug(args ...interface{})            { logAt(Debug, fmt.Sprint(args...)) }
func Debugf(format string, args ...interface{}) { logAt(Debug, format, args...) }

func Info(args ...interface{})            { logAt(Info, fmt.Sprint(args...)) }
func Infof(format string, args ...interface{}) { logAt(Info, format, args...) }

func Warning(args ...interface{})            { logAt(Warning, fmt.Sprint(args...)) }
func Warningf(format string, args ...interface{}) { logAt(Warning, format, args...) }

func Error(args ...interface{})            { logAt(Error, fmt.Sprint(args...)) }
func Errorf(format string, args ...interface{}) { logAt(Error, format, args...) }

// FmtErrorf logs at Error severity and returns the formatted error, so
// callers can log-and-return in one line.
func FmtErrorf(format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	logAt(Error, "%s", err.Error())
	return err
}

func Fatal(args ...interface{})            { logAt(Fatal, fmt.Sprint(args...)) }
func Fatalf(format string, args ...interface{}) { logAt(Fatal, format, args...) }
