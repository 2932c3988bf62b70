package convert

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/gen2brain/avif"
	webpenc "github.com/gen2brain/webp"
	"golang.org/x/image/webp"

	"github.com/jaywantadh/fragments/internal/mediatype"
)

const (
	jpegQuality = 80
	webpQuality = 80
	avifQuality = 60
	avifSpeed   = 10
)

type codec struct {
	decode func(io.Reader) (image.Image, error)
	encode func(io.Writer, image.Image) error
}

var codecs = map[string]codec{
	mediatype.ImagePNG: {
		decode: png.Decode,
		encode: png.Encode,
	},
	mediatype.ImageJPEG: {
		decode: jpeg.Decode,
		encode: func(w io.Writer, m image.Image) error {
			return jpeg.Encode(w, m, &jpeg.Options{Quality: jpegQuality})
		},
	},
	mediatype.ImageWebP: {
		decode: webp.Decode,
		encode: func(w io.Writer, m image.Image) error {
			return webpenc.Encode(w, m, webpenc.Options{Quality: webpQuality})
		},
	},
	mediatype.ImageGIF: {
		// Only the first frame of an animated GIF is decoded.
		decode: gif.Decode,
		encode: func(w io.Writer, m image.Image) error {
			return gif.Encode(w, toPaletted(m), nil)
		},
	},
	mediatype.ImageAVIF: {
		decode: avif.Decode,
		encode: func(w io.Writer, m image.Image) error {
			return avif.Encode(w, m, avif.Options{Quality: avifQuality, QualityAlpha: avifQuality, Speed: avifSpeed})
		},
	},
}

// transcode decodes a raster of type from and re-encodes it as type to.
func transcode(from, to string) Transform {
	src, dst := codecs[from], codecs[to]
	return func(data []byte) ([]byte, error) {
		img, err := src.decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedContent, from, err)
		}
		var buf bytes.Buffer
		if err := dst.encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode %s: %w", to, err)
		}
		return buf.Bytes(), nil
	}
}

// toPaletted keeps the exact colors when the image has at most 256 of them and
// dithers onto the Plan 9 palette otherwise.
func toPaletted(m image.Image) *image.Paletted {
	if p, ok := m.(*image.Paletted); ok {
		return p
	}
	b := m.Bounds()
	if pal, ok := exactPalette(m, 256); ok {
		out := image.NewPaletted(b, pal)
		draw.Draw(out, b, m, b.Min, draw.Src)
		return out
	}
	out := image.NewPaletted(b, palette.Plan9)
	draw.FloydSteinberg.Draw(out, b, m, b.Min)
	return out
}

func exactPalette(m image.Image, limit int) (color.Palette, bool) {
	b := m.Bounds()
	seen := make(map[color.RGBA]struct{}, limit)
	pal := make(color.Palette, 0, limit)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(m.At(x, y)).(color.RGBA)
			if _, ok := seen[c]; ok {
				continue
			}
			if len(pal) == limit {
				return nil, false
			}
			seen[c] = struct{}{}
			pal = append(pal, c)
		}
	}
	if len(pal) == 0 {
		pal = append(pal, color.RGBA{})
	}
	return pal, true
}
