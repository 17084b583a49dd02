package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// Encoder writes an image in one target codec.
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
	// Ext is the output extension including the dot.
	Ext() string
	Fingerprint() string
}

// AVIFOptions configures AVIF.
type AVIFOptions struct {
	Quality int
	// Speed trades encode time for size, 0 (slowest) to 10. Nil selects
	// DefaultAVIFSpeed.
	Speed *int
}

// DefaultAVIFSpeed is the encoder speed used when none is configured.
const DefaultAVIFSpeed = 6

// WebPOptions configures WebP.
type WebPOptions struct {
	Quality  int
	Lossless bool
}

type avifEncoder struct {
	quality int
	speed   int
}

func (e avifEncoder) Ext() string { return ".avif" }
func (e avifEncoder) Fingerprint() string {
	return fmt.Sprintf("avif:q%d:s%d", e.quality, e.speed)
}

func (e avifEncoder) Encode(w io.Writer, img image.Image) error {
	return avif.Encode(w, img, avif.Options{
		Quality:      e.quality,
		QualityAlpha: e.quality,
		Speed:        e.speed,
	})
}

type webpEncoder struct{ opts WebPOptions }

func (e webpEncoder) Ext() string { return ".webp" }
func (e webpEncoder) Fingerprint() string {
	return fmt.Sprintf("webp:q%d:l%t", e.opts.Quality, e.opts.Lossless)
}

func (e webpEncoder) Encode(w io.Writer, img image.Image) error {
	return webp.Encode(w, img, webp.Options{
		Quality:  e.opts.Quality,
		Lossless: e.opts.Lossless,
		Method:   4,
	})
}

// NewAVIFEncoder validates opts and returns the AVIF encoder.
func NewAVIFEncoder(opts AVIFOptions) (Encoder, error) {
	if err := checkQuality(opts.Quality); err != nil {
		return nil, err
	}
	speed := DefaultAVIFSpeed
	if opts.Speed != nil {
		speed = *opts.Speed
	}
	if speed < 0 || speed > 10 {
		return nil, ferrors.ValidationError("avif speed must be within 0-10").WithContext("value", speed).Build()
	}
	return avifEncoder{quality: opts.Quality, speed: speed}, nil
}

// NewWebPEncoder validates opts and returns the WebP encoder.
func NewWebPEncoder(opts WebPOptions) (Encoder, error) {
	if err := checkQuality(opts.Quality); err != nil {
		return nil, err
	}
	return webpEncoder{opts: opts}, nil
}

func checkQuality(q int) error {
	if q < 0 || q > 100 {
		return ferrors.ValidationError("quality must be within 0-100").WithContext("value", q).Build()
	}
	return nil
}

// Convert decodes each raster record and re-encodes it with enc, renaming it
// to the encoder's extension.
func Convert(name string, enc Encoder) FileStep {
	return PerFile(name, "convert:"+enc.Fingerprint(), func(_ context.Context, f *asset.File) ([]*asset.File, error) {
		img, _, err := image.Decode(bytes.NewReader(f.Contents))
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		var buf bytes.Buffer
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode %s: %w", enc.Ext(), err)
		}
		return []*asset.File{f.WithExt(enc.Ext(), buf.Bytes())}, nil
	})
}

// AVIF converts raster images to AVIF.
func AVIF(opts AVIFOptions) (FileStep, error) {
	enc, err := NewAVIFEncoder(opts)
	if err != nil {
		return nil, err
	}
	return Convert("avif", enc), nil
}

// WebP converts raster images to WebP.
func WebP(opts WebPOptions) (FileStep, error) {
	enc, err := NewWebPEncoder(opts)
	if err != nil {
		return nil, err
	}
	return Convert("webp", enc), nil
}

// Optimize losslessly shrinks images it knows how to re-encode (GIF, PNG,
// SVG) and passes everything else through. A re-encoded result is only kept
// when it is smaller than the input.
func Optimize() FileStep {
	m := newMinifier()
	return PerFile("optimize", "optimize:v1", func(_ context.Context, f *asset.File) ([]*asset.File, error) {
		var (
			b   []byte
			err error
		)
		switch f.Ext() {
		case ".gif":
			b, err = optimizeGIF(f.Contents)
		case ".png":
			b, err = optimizePNG(f.Contents)
		case ".svg":
			b, err = m.Bytes("image/svg+xml", f.Contents)
		default:
			return []*asset.File{f}, nil
		}
		if err != nil {
			return nil, err
		}
		if len(b) >= len(f.Contents) {
			return []*asset.File{f}, nil
		}
		out := f.Clone()
		out.Contents = b
		return []*asset.File{out}, nil
	})
}

func optimizeGIF(src []byte) ([]byte, error) {
	g, err := gif.DecodeAll(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode gif: %w", err)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, fmt.Errorf("encode gif: %w", err)
	}
	return buf.Bytes(), nil
}

func optimizePNG(src []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
