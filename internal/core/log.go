package core

import (
	"log/slog"
	"sync/atomic"
)

// logger holds the logger installed with SetLogger. Nil means none was set.
var logger atomic.Pointer[slog.Logger]

// defaultLogger caches slog.Default() with the component attribute. It is
// derived once; SetLogger(nil) drops the cache so a later slog.SetDefault is
// picked up.
var defaultLogger atomic.Pointer[slog.Logger]

// Logger returns the package logger: the one set with SetLogger, or
// slog.Default() tagged with component=prealloc. Safe for concurrent use.
func Logger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := slog.Default().With("component", "prealloc")
	if defaultLogger.CompareAndSwap(nil, l) {
		return l
	}
	// Lost the race, or SetLogger cleared the cache in between.
	if l2 := defaultLogger.Load(); l2 != nil {
		return l2
	}
	return l
}

// SetLogger replaces the package logger. Nil restores the default.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
	defaultLogger.Store(nil)
}

// slotLogger returns the package logger scoped to one slot.
func slotLogger(slotID string) *slog.Logger {
	return Logger().With("slot", slotID)
}
