// Package commands implements the taxosync CLI subcommands.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/taxosync/internal/app"
	"git.home.luguber.info/inful/taxosync/internal/config"
	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
)

// Global is bound into every command's Run.
type Global struct {
	Out io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"taxosync.yaml" env:"TAXOSYNC_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Init     InitCmd     `cmd:"" help:"Write an example configuration file"`
	Sync     SyncCmd     `cmd:"" help:"Refresh taxonomies now"`
	Status   StatusCmd   `cmd:"" help:"Show per-taxonomy enablement, freshness and item counts"`
	Enable   EnableCmd   `cmd:"" help:"Enable downloads for a taxonomy"`
	Disable  DisableCmd  `cmd:"" help:"Disable downloads for a taxonomy"`
	Daemon   DaemonCmd   `cmd:"" help:"Run scheduled refreshes and the admin API"`
	History  HistoryCmd  `cmd:"" help:"Manage the product scan history"`
	Question QuestionCmd `cmd:"" help:"Show the next Robotoff question for a product"`
	Annotate AnnotateCmd `cmd:"" help:"Answer a Robotoff insight"`
}

// AfterApply runs after flag parsing; it installs a provisional logger that
// commands refine once the configuration is loaded.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	setupLogging(config.LogLevelInfo, config.LogFormatText, c.Verbose)
	return nil
}

func setupLogging(level config.LogLevel, format config.LogFormat, verbose bool) {
	lvl := slog.LevelInfo
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadConfig reads the configuration and applies its logging settings.
func (c *CLI) loadConfig() (*config.Config, error) {
	if _, err := os.Stat(c.Config); os.IsNotExist(err) {
		return nil, terrors.ConfigNotFound(c.Config)
	}
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, terrors.Wrap(err, terrors.CategoryConfig, terrors.SeverityFatal, "failed to load configuration").
			WithContext("path", c.Config)
	}
	logging := cfg.LoggingOrDefault()
	setupLogging(logging.Level, logging.Format, c.Verbose)
	return cfg, nil
}

// openApp loads the configuration and assembles the components. Callers must
// Close the result.
func (c *CLI) openApp(ctx context.Context) (*app.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		slog.Warn("Failed to close resources", "error", err)
	}
}
