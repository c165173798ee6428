// Package skerr provides error wrapping that annotates errors with the
// call site at which they were created or passed through, without requiring
// every caller to repeat "at file.go:123" by hand.
package skerr

import (
	"errors"
	"fmt"
	"runtime"
)

// withStack wraps an error with the file:line of the call site that produced
// it. Chains of withStack values form a lightweight call stack annotation
// that is appended to the error's message on Error().
type withStack struct {
	cause error
	msg   string
	frame string
}

func (e *withStack) Error() string {
	var msgs []string
	var frames []string
	var base error
	for cur := e; ; {
		frames = append(frames, cur.frame)
		if cur.msg != "" {
			msgs = append(msgs, cur.msg)
		}
		next, ok := cur.cause.(*withStack)
		if !ok {
			base = cur.cause
			break
		}
		cur = next
	}

	prefix := ""
	for _, m := range msgs {
		prefix += m + ": "
	}

	joined := ""
	for i, f := range frames {
		if i > 0 {
			joined += " "
		}
		joined += f
	}
	return fmt.Sprintf("%s%s. At %s", prefix, base.Error(), joined)
}

func (e *withStack) Unwrap() error {
	return e.cause
}

func frame(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	// Keep just the base file name; full paths make test assertions brittle
	// and the caller's stack annotation is not meant to replace a debugger.
	base := file
	for i := len(file) - 1; i >= 0; i-- {
		if file[i] == '/' {
			base = file[i+1:]
			break
		}
	}
	return fmt.Sprintf("%s:%d", base, line)
}

// Wrap annotates err with the caller's location. Returns nil if err is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &withStack{cause: err, frame: frame(1)}
}

// Wrapf annotates err with the caller's location and a formatted message.
// Returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &withStack{cause: err, msg: fmt.Sprintf(format, args...), frame: frame(1)}
}

// Fmt creates a new error, annotated with the caller's location, analogous
// to fmt.Errorf but always stack-annotated.
func Fmt(format string, args ...interface{}) error {
	return &withStack{cause: fmt.Errorf(format, args...), frame: frame(1)}
}

// Unwrap returns the innermost error in a skerr chain, or err itself if it
// was never wrapped by this package.
func Unwrap(err error) error {
	for {
		ws, ok := err.(*withStack)
		if !ok {
			return err
		}
		if ws.cause == nil {
			return err
		}
		err = ws.cause
	}
}

// Is reports whether any error in err's chain matches target, delegating to
// the standard library after unwrapping skerr's own frames.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target's type,
// delegating to the standard library.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
