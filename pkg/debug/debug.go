// Package debug provides global debug logging flags
package debug

import "log/slog"

// Enabled controls whether verbose service logs are shown
var Enabled bool

// Frames controls whether every per-frame report is logged (very verbose)
// Use --debug-frames to enable
var Frames bool

// Log logs a message at debug level only if debug mode is enabled
func Log(msg string, args ...any) {
	if Enabled {
		slog.Debug(msg, args...)
	}
}

// FrameLog logs a per-frame message only if frame debugging is enabled
func FrameLog(msg string, args ...any) {
	if Frames {
		slog.Debug(msg, args...)
	}
}
