package config

import "time"

// Default returns a configuration for the conventional layout:
//
//	app/scss/style.scss      → app/css/style.min.css
//	app/js/main.js           → app/js/main.min.js
//	app/pages/*.html         → app/*.html (partials from app/components)
//	app/images/src/*         → app/images/*.{avif,webp,...}
//	app/fonts/src/*          → app/fonts/*.{woff,woff2,ttf}
func Default() *Config {
	return &Config{
		Root: "app",
		Dist: "dist",
		Styles: StylesConfig{
			Sources:     []string{"scss/style.scss"},
			Dest:        "css",
			Output:      "style.min.css",
			OutputStyle: OutputStyleCompressed,
			SassBinary:  "sass",
			Watch:       []string{"scss/**/*.scss"},
		},
		Scripts: ScriptsConfig{
			Sources: []string{"js/main.js"},
			Dest:    "js",
			Output:  "main.min.js",
			Mangle:  true,
			Watch:   []string{"js/scripts.js", "js/main.js"},
		},
		Pages: PagesConfig{
			Sources:     []string{"pages/*.html"},
			Dest:        ".",
			IncludeBase: "components",
			Prefix:      "@@",
			Watch:       []string{"components/**/*.html", "pages/*.html"},
		},
		Images: ImagesConfig{
			Sources:         []string{"images/src/*.*", "!images/src/*.svg"},
			Dest:            "images",
			AVIFQuality:     50,
			WebPQuality:     75,
			OptimizeExclude: []string{"*.jpg", "*.jpeg", "*.png"},
			Watch:           []string{"images/src/**/*.{jpg,jpeg,png,gif,svg,webp}"},
		},
		Fonts: FontsConfig{
			Sources: []string{"fonts/src/*.*"},
			Dest:    "fonts",
			Formats: []string{"woff", "ttf"},
			WOFF2:   true,
			Watch:   []string{"fonts/src/*.*"},
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    3000,
		},
		Watch: WatchConfig{
			Debounce:  100 * time.Millisecond,
			Serialize: true,
		},
		Build: BuildConfig{
			Artifacts: []string{
				"css/style.min.css",
				"images/*.*",
				"images/icons/*.*",
				"images/*.svg",
				"fonts/*.*",
				"js/main.min.js",
				"*.html",
			},
		},
		Cache: CacheConfig{
			Driver: CacheDriverMemory,
			Path:   ".assetbuilder/cache.db",
			MaxAge: 30 * 24 * time.Hour,
		},
		Notify: NotifyConfig{
			Subject: "assetbuilder.tasks",
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
		},
	}
}
