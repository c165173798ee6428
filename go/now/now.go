// Package now provides a context-injectable clock, so that event timestamps
// and elapsed-time displays can be tested deterministically instead of
// racing against the wall clock.
package now

import (
	"context"
	"time"
)

type contextKey struct{}

// ContextKey is the context.Value key under which a fixed time.Time or a
// NowProvider may be installed.
var ContextKey = contextKey{}

// NowProvider is a function returning the current time, installable via
// context for tests that need a moving but controlled clock.
type NowProvider func() time.Time

// Now returns the real wall-clock time unless ctx carries a ContextKey value,
// in which case it returns that fixed time or invokes the installed
// NowProvider. Panics if a value is installed under ContextKey of an
// unsupported type.
func Now(ctx context.Context) time.Time {
	v := ctx.Value(ContextKey)
	if v == nil {
		return time.Now()
	}
	switch t := v.(type) {
	case time.Time:
		return t
	case NowProvider:
		return t()
	default:
		panic("now: invalid value installed under ContextKey")
	}
}

// TravelingContext is a context.Context wrapper whose Now() can be advanced
// explicitly via SetTime, immune to the passage of the wall clock.
type TravelingContext struct {
	context.Context
	cur *time.Time
}

// TimeTravelingContext creates a new time-traveling context rooted at
// context.Background(), initially reporting t.
func TimeTravelingContext(t time.Time) *TravelingContext {
	c := &TravelingContext{Context: context.Background(), cur: new(time.Time)}
	*c.cur = t
	c.Context = context.WithValue(c.Context, ContextKey, NowProvider(func() time.Time { return *c.cur }))
	return c
}

// SetTime moves the context's clock to t.
func (c *TravelingContext) SetTime(t time.Time) {
	*c.cur = t
}

// WithContext rebuilds this time-traveling context as a child of parent,
// preserving parent's other values while keeping the overridden clock.
func (c *TravelingContext) WithContext(parent context.Context) *TravelingContext {
	child := &TravelingContext{Context: parent, cur: c.cur}
	child.Context = context.WithValue(parent, ContextKey, NowProvider(func() time.Time { return *child.cur }))
	return child
}
