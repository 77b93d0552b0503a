package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// UserID records the user identifier under the key "user_id".
// If id is nil, it returns an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Flow records the active authentication flow under the key "flow".
func Flow(kind string) slog.Attr {
	return slog.String("flow", kind)
}

// Step records the current flow step under the key "step".
func Step(step int) slog.Attr {
	return slog.Int("step", step)
}

// ErrorKind records the classified error kind under the key "error_kind".
func ErrorKind(kind string) slog.Attr {
	return slog.String("error_kind", kind)
}
