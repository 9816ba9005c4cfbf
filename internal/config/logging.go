package config

import "strings"

// LogLevel enumerates supported logging levels (mapped to slog levels by the CLI).
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// NormalizeLogLevel case-folds raw input, returning empty string for unknown values.
func NormalizeLogLevel(raw string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(raw))) {
	case LogLevelDebug:
		return LogLevelDebug
	case LogLevelInfo:
		return LogLevelInfo
	case LogLevelWarn, "warning":
		return LogLevelWarn
	case LogLevelError:
		return LogLevelError
	default:
		return ""
	}
}

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// NormalizeLogFormat case-folds raw input, returning empty string for unknown values.
func NormalizeLogFormat(raw string) LogFormat {
	switch LogFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case LogFormatJSON:
		return LogFormatJSON
	case LogFormatText:
		return LogFormatText
	default:
		return ""
	}
}
