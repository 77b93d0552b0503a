// Package logger builds configured slog.Logger instances and provides typed
// attribute helpers so log fields stay consistently named across packages.
package logger
