package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/tasks"
)

// StylesCmd implements the 'styles' command.
type StylesCmd struct{}

func (c *StylesCmd) Run(g *Global, root *CLI) error { return runTask(g, root, tasks.Styles) }

// ScriptsCmd implements the 'scripts' command.
type ScriptsCmd struct{}

func (c *ScriptsCmd) Run(g *Global, root *CLI) error { return runTask(g, root, tasks.Scripts) }

// PagesCmd implements the 'pages' command.
type PagesCmd struct{}

func (c *PagesCmd) Run(g *Global, root *CLI) error { return runTask(g, root, tasks.Pages) }

// ImagesCmd implements the 'images' command.
type ImagesCmd struct{}

func (c *ImagesCmd) Run(g *Global, root *CLI) error { return runTask(g, root, tasks.Images) }

// FontsCmd implements the 'fonts' command.
type FontsCmd struct{}

func (c *FontsCmd) Run(g *Global, root *CLI) error { return runTask(g, root, tasks.Fonts) }

// runTask runs a single task. Transform warnings are reported through the
// notifiers and do not fail the command.
func runTask(g *Global, root *CLI, name string) error {
	a, err := openApp(g, root)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()
	_, err = a.RunTask(ctx, name)
	return err
}

// TasksCmd implements the 'tasks' command.
type TasksCmd struct{}

func (c *TasksCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	defs, err := tasks.Definitions(cfg, tasks.Deps{})
	if err != nil {
		return err
	}
	return printTasks(g, cfg, defs)
}

func printTasks(g *Global, cfg *config.Config, defs []tasks.Definition) error {
	w := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "TASK\tDESCRIPTION\tWATCH\n")
	for _, d := range defs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Description, strings.Join(d.Watch, ", "))
	}
	_, _ = fmt.Fprintf(w, "\nroot: %s  dist: %s\n", cfg.Root, cfg.Dist)
	return w.Flush()
}
