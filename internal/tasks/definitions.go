// Package tasks defines the fixed asset task set and runs tasks by name.
package tasks

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
	"git.home.luguber.info/inful/assetbuilder/internal/transform"
)

// Task names.
const (
	Styles  = "styles"
	Scripts = "scripts"
	Pages   = "pages"
	Images  = "images"
	Fonts   = "fonts"
)

// NotifyKind tells the dev server how to react after a task wrote files.
type NotifyKind int

const (
	NotifyNone NotifyKind = iota
	// NotifyReload reloads connected browsers.
	NotifyReload
	// NotifyStyles swaps stylesheets without a reload.
	NotifyStyles
)

func (k NotifyKind) String() string {
	switch k {
	case NotifyReload:
		return "reload"
	case NotifyStyles:
		return "styles"
	default:
		return "none"
	}
}

// Definition is a named task: one or more pipelines run in order, the globs
// that retrigger it in watch mode, and the live-reload reaction.
type Definition struct {
	Name        string
	Description string
	Specs       []pipeline.Spec
	Watch       []string
	Notify      NotifyKind
}

// Deps are the collaborators steps are built with.
type Deps struct {
	// Fs is the filesystem partials and destinations are read from.
	Fs afero.Fs
	// Cache memoizes image encoding when non-nil.
	Cache transform.Store
	// Compiler compiles SCSS; a SassBinary from the config when nil.
	Compiler transform.Compiler
}

// Definitions builds the task set from cfg in its canonical order.
func Definitions(cfg *config.Config, deps Deps) ([]Definition, error) {
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Compiler == nil {
		deps.Compiler = transform.SassBinary{Path: cfg.Styles.SassBinary}
	}

	builders := []func(*config.Config, Deps) (Definition, error){
		stylesTask, scriptsTask, pagesTask, imagesTask, fontsTask,
	}
	defs := make([]Definition, 0, len(builders))
	for _, b := range builders {
		d, err := b(cfg, deps)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func stylesTask(cfg *config.Config, deps Deps) (Definition, error) {
	c := cfg.Styles
	sass, err := transform.Sass(transform.SassOptions{
		OutputStyle: string(c.OutputStyle),
		Root:        cfg.Root,
		LoadPaths:   c.LoadPaths,
	}, deps.Compiler)
	if err != nil {
		return Definition{}, err
	}
	concat, err := transform.Concat(transform.ConcatOptions{Name: c.Output})
	if err != nil {
		return Definition{}, err
	}
	steps := []transform.Step{sass, concat}
	if c.Minify {
		steps = append(steps, transform.MinifyCSS())
	}
	return Definition{
		Name:        Styles,
		Description: "Compile SCSS into " + joinRel(c.Dest, c.Output),
		Specs: []pipeline.Spec{{
			Name:    Styles,
			Sources: c.Sources,
			Dest:    c.Dest,
			Steps:   steps,
		}},
		Watch:  c.Watch,
		Notify: NotifyStyles,
	}, nil
}

func scriptsTask(cfg *config.Config, _ Deps) (Definition, error) {
	c := cfg.Scripts
	concat, err := transform.Concat(transform.ConcatOptions{Name: c.Output})
	if err != nil {
		return Definition{}, err
	}
	return Definition{
		Name:        Scripts,
		Description: "Bundle and minify JavaScript into " + joinRel(c.Dest, c.Output),
		Specs: []pipeline.Spec{{
			Name:    Scripts,
			Sources: c.Sources,
			Dest:    c.Dest,
			Steps:   []transform.Step{concat, transform.MinifyJS(transform.MinifyJSOptions{MangleIdentifiers: c.Mangle})},
		}},
		Watch: c.Watch,
	}, nil
}

func pagesTask(cfg *config.Config, deps Deps) (Definition, error) {
	c := cfg.Pages
	include := transform.Include(deps.Fs, transform.IncludeOptions{
		Prefix: c.Prefix,
		Dir:    filepath.Join(cfg.Root, filepath.FromSlash(c.IncludeBase)),
	})
	return Definition{
		Name:        Pages,
		Description: "Inline " + c.IncludeBase + " partials into pages",
		Specs: []pipeline.Spec{{
			Name:    Pages,
			Sources: c.Sources,
			Dest:    c.Dest,
			Steps:   []transform.Step{include},
		}},
		Watch:  c.Watch,
		Notify: NotifyReload,
	}, nil
}

func imagesTask(cfg *config.Config, deps Deps) (Definition, error) {
	c := cfg.Images
	destDir := filepath.Join(cfg.Root, filepath.FromSlash(c.Dest))

	avif, err := transform.AVIF(transform.AVIFOptions{Quality: c.AVIFQuality, Speed: c.AVIFSpeed})
	if err != nil {
		return Definition{}, err
	}
	webp, err := transform.WebP(transform.WebPOptions{Quality: c.WebPQuality})
	if err != nil {
		return Definition{}, err
	}

	optimizeSources := slices.Clone(c.Sources)
	for _, ex := range c.OptimizeExclude {
		optimizeSources = append(optimizeSources, "!"+joinRel(sourceBase(c.Sources), ex))
	}

	convert := func(name, ext string, step transform.FileStep) pipeline.Spec {
		return pipeline.Spec{
			Name:    Images + "/" + name,
			Sources: c.Sources,
			Dest:    c.Dest,
			Steps: []transform.Step{
				transform.Newer(deps.Fs, transform.NewerOptions{Dir: destDir, Ext: ext}),
				transform.Cached(step, deps.Cache),
			},
		}
	}
	return Definition{
		Name:        Images,
		Description: "Convert images to AVIF and WebP and optimize the rest",
		Specs: []pipeline.Spec{
			convert("avif", ".avif", avif),
			convert("webp", ".webp", webp),
			{
				Name:    Images + "/optimize",
				Sources: optimizeSources,
				Dest:    c.Dest,
				Steps: []transform.Step{
					transform.Newer(deps.Fs, transform.NewerOptions{Dir: destDir}),
					transform.Cached(transform.Optimize(), deps.Cache),
				},
			},
		},
		Watch: c.Watch,
	}, nil
}

func fontsTask(cfg *config.Config, _ Deps) (Definition, error) {
	c := cfg.Fonts
	steps := make([]transform.Step, 0, 2)
	convert, err := transform.FontConvert(transform.FontOptions{Formats: c.Formats})
	if err != nil {
		return Definition{}, err
	}
	steps = append(steps, convert)
	if c.WOFF2 {
		woff2, err := transform.FontConvert(transform.FontOptions{
			From:    []string{".ttf"},
			Formats: []string{"woff2"},
			Keep:    true,
		})
		if err != nil {
			return Definition{}, err
		}
		steps = append(steps, woff2)
	}
	return Definition{
		Name:        Fonts,
		Description: "Generate webfonts (" + formatList(c.Formats, c.WOFF2) + ")",
		Specs: []pipeline.Spec{{
			Name:    Fonts,
			Sources: c.Sources,
			Dest:    c.Dest,
			Steps:   steps,
		}},
		Watch: c.Watch,
	}, nil
}

// sourceBase returns the directory of the first include pattern, so that
// file-name excludes like "*.png" can be anchored next to the sources.
func sourceBase(patterns []string) string {
	for _, p := range patterns {
		if len(p) > 0 && p[0] != '!' {
			return filepath.ToSlash(filepath.Dir(filepath.FromSlash(p)))
		}
	}
	return "."
}

func joinRel(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return dir + "/" + name
}

func formatList(formats []string, woff2 bool) string {
	all := slices.Clone(formats)
	if woff2 && !slices.Contains(all, "woff2") {
		all = append(all, "woff2")
	}
	return strings.Join(all, ", ")
}
