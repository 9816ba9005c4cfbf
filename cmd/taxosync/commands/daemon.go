package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/taxosync/internal/daemon"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	ShutdownTimeout time.Duration `help:"Grace period for in-flight refreshes on shutdown" default:"30s"`
}

func (c *DaemonCmd) Run(_ *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := root.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	d, err := daemon.New(a, root.Config)
	if err != nil {
		return err
	}

	slog.Info("Starting daemon mode", slog.String("config", root.Config))
	return d.Run(ctx, c.ShutdownTimeout)
}
