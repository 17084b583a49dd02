package commands

import (
	"fmt"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/manifest"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Manifest bool `help:"Write build-manifest.json into the distribution directory (overrides build.manifest)"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	err = applyOverrides(cfg, func(c *config.Config) {
		if b.Manifest {
			c.Build.Manifest = true
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
	m, err := a.Build(ctx)
	if err != nil {
		return err
	}

	out := g.out()
	_, _ = fmt.Fprintf(out, "Build %s: %d artifacts in %s (%s)\n", m.Status, len(m.Outputs.ArtifactHashes), cfg.Dist, m.ID)
	if cfg.Build.Manifest {
		_, _ = fmt.Fprintf(out, "Manifest written to %s/%s\n", cfg.Dist, manifest.FileName)
	}
	return nil
}

// CleanCmd implements the 'clean' command.
type CleanCmd struct{}

func (c *CleanCmd) Run(g *Global, root *CLI) error {
	a, err := openApp(g, root)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()
	return a.Clean(ctx)
}
