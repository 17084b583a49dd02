package transform

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/webfont"
)

// FontOptions configures FontConvert.
type FontOptions struct {
	// From limits conversion to records with these extensions (".ttf").
	// Others pass through untouched. Empty converts every record.
	From []string
	// Formats lists outputs: "ttf", "woff", "woff2".
	Formats []string
	// Keep also emits the input record alongside its conversions.
	Keep bool
}

var fontEncoders = map[string]func(*webfont.Font) ([]byte, error){
	"ttf":   func(f *webfont.Font) ([]byte, error) { return f.SFNT(), nil },
	"woff":  webfont.EncodeWOFF,
	"woff2": webfont.EncodeWOFF2,
}

// FontConvert decodes TrueType, OpenType or WOFF records and emits one record
// per requested format.
func FontConvert(opts FontOptions) (FileStep, error) {
	if len(opts.Formats) == 0 {
		return nil, ferrors.ValidationError("font conversion needs at least one format").Build()
	}
	for _, f := range opts.Formats {
		if _, ok := fontEncoders[f]; !ok {
			return nil, ferrors.ValidationError("unknown font format").WithContext("value", f).Build()
		}
	}
	fp := fmt.Sprintf("font:%s>%s:%t", strings.Join(opts.From, ","), strings.Join(opts.Formats, ","), opts.Keep)

	return PerFile("font-convert", fp, func(_ context.Context, f *asset.File) ([]*asset.File, error) {
		if len(opts.From) > 0 && !slices.Contains(opts.From, f.Ext()) {
			return []*asset.File{f}, nil
		}
		font, err := webfont.Decode(f.Contents)
		if err != nil {
			return nil, err
		}
		var out []*asset.File
		if opts.Keep {
			out = append(out, f)
		}
		for _, format := range opts.Formats {
			ext := "." + format
			if opts.Keep && ext == f.Ext() {
				continue
			}
			b, err := fontEncoders[format](font)
			if err != nil {
				return nil, err
			}
			out = append(out, f.WithExt(ext, b))
		}
		return out, nil
	}), nil
}
