package prealloc

import (
	"log/slog"

	"github.com/giantswarm/prealloc/internal/core"
)

// SetLogger replaces the package-level logger used by prealloc.
// This allows applications to integrate prealloc logging with their own
// logging infrastructure. The provided logger should already have any
// desired attributes; prealloc only adds a "slot" attribute to messages
// about a single worker.
//
// If l is nil, the logger resets to the default: slog.Default() with
// "component" attribute, re-derived on the next use and then cached.
// Call SetLogger(nil) after slog.SetDefault() to pick up changes.
//
// SetLogger is safe to call concurrently with other prealloc operations.
// A concurrent log call may still use the previous logger; for a strict
// happens-before guarantee, call SetLogger before NewManager.
//
// Example:
//
//	prealloc.SetLogger(myLogger.With("component", "prealloc"))
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
