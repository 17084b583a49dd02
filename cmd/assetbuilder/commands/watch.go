package commands

import (
	"log/slog"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
)

// WatchCmd implements the default 'watch' command.
type WatchCmd struct {
	Port     int  `help:"Override server.port"`
	NoServer bool `name:"no-server" help:"Watch and rebuild without serving"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	err = applyOverrides(cfg, func(c *config.Config) {
		if w.Port != 0 {
			c.Server.Port = w.Port
		}
		if w.NoServer {
			c.Server.Enabled = false
		}
	})
	if err != nil {
		return err
	}

	a, err := newApp(g, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()
	if err := a.Watch(ctx); err != nil {
		return err
	}
	slog.Info("Stopped watching")
	return nil
}
