package errors

import (
	"context"
	"fmt"
	"log/slog"
)

// CLIErrorAdapter handles error presentation and exit code determination for the CLI.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	te, ok := As(err)
	if !ok {
		return 1
	}
	switch te.Category {
	case CategoryValidation:
		return 2 // Invalid usage
	case CategoryConfig:
		return 7
	case CategoryNetwork, CategoryServer, CategoryParse:
		return 8 // External system error
	case CategoryStorage:
		return 11
	case CategoryDaemon:
		return 12
	case CategoryInternal:
		return 10
	default:
		return 1
	}
}

// FormatError formats an error for user-friendly display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	te, ok := As(err)
	if !ok {
		return fmt.Sprintf("Error: %v", err)
	}
	if a.verbose {
		return te.Error()
	}
	switch te.Category {
	case CategoryConfig, CategoryValidation:
		return te.Message
	default:
		return fmt.Sprintf("%s: %s", te.Category, te.Message)
	}
}

// Log writes err at a level derived from its severity.
func (a *CLIErrorAdapter) Log(err error) {
	if err == nil {
		return
	}
	te, ok := As(err)
	if !ok {
		a.logger.Error("Unclassified error", "error", err)
		return
	}
	attrs := []slog.Attr{slog.String("category", string(te.Category))}
	if te.Retryable {
		attrs = append(attrs, slog.Bool("retryable", true))
	}
	if te.Status != 0 {
		attrs = append(attrs, slog.Int("status", te.Status))
	}
	if te.Cause != nil {
		attrs = append(attrs, slog.String("cause", te.Cause.Error()))
	}
	a.logger.LogAttrs(context.Background(), levelFor(te.Severity), te.Message, attrs...)
}

func levelFor(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
