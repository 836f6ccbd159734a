package skintone

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	apperrors "go-skintone-inspector/internal/errors"
)

// Decoder turns encoded bytes into an opaque RGB raster
type Decoder struct {
	opts DecoderOptions
}

// NewDecoder creates a decoder bounded by opts
func NewDecoder(opts DecoderOptions) *Decoder {
	return &Decoder{opts: opts}
}

// Decode validates the declared content type and the image header before
// decoding, composites any alpha over white and downscales large frames.
// Every failure is an *errors.AppError of type decode_error.
func (d *Decoder) Decode(data []byte, contentType string) (*Raster, error) {
	if err := checkImageMediaType(contentType); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, apperrors.NewDecodeError("empty image payload", nil)
	}
	if int64(len(data)) > d.opts.MaxImageBytes {
		return nil, apperrors.NewDecodeError("image exceeds size limit", nil).
			WithDetails("%d bytes > %d", len(data), d.opts.MaxImageBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewDecodeError("unrecognised image data", err)
	}
	if cfg.Width < d.opts.MinImageDimension || cfg.Height < d.opts.MinImageDimension {
		return nil, apperrors.NewDecodeError("image too small", nil).
			WithDetails("%dx%d, minimum side %d", cfg.Width, cfg.Height, d.opts.MinImageDimension)
	}
	if cfg.Width*cfg.Height > d.opts.MaxImagePixels {
		return nil, apperrors.NewDecodeError("image exceeds pixel limit", nil).
			WithDetails("%dx%d > %d pixels", cfg.Width, cfg.Height, d.opts.MaxImagePixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewDecodeError(fmt.Sprintf("malformed %s image", format), err)
	}
	if fullyTransparent(img) {
		return nil, apperrors.NewDecodeError("image is fully transparent", nil)
	}

	out := d.flatten(img)
	out.ByteLength = len(data)
	return out, nil
}

func checkImageMediaType(contentType string) error {
	if strings.TrimSpace(contentType) == "" {
		return apperrors.NewDecodeError("missing content type", nil)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return apperrors.NewDecodeError("invalid content type", err)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return apperrors.NewDecodeError("content type is not an image", nil).
			WithDetails("got %s", mediaType)
	}
	return nil
}

// fullyTransparent reports whether every pixel has zero alpha
func fullyTransparent(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return false
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0 {
				return false
			}
		}
	}
	return true
}

// flatten composites img over opaque white, scaling the long side down to
// MaxAnalysisDimension when needed
func (d *Decoder) flatten(img image.Image) *Raster {
	src := img.Bounds()
	w, h := src.Dx(), src.Dy()
	if long := max(w, h); long > d.opts.MaxAnalysisDimension {
		scale := float64(d.opts.MaxAnalysisDimension) / float64(long)
		w = max(1, int(float64(w)*scale+0.5))
		h = max(1, int(float64(h)*scale+0.5))
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	if w == src.Dx() && h == src.Dy() {
		draw.Draw(canvas, canvas.Bounds(), img, src.Min, draw.Over)
	} else {
		draw.ApproxBiLinear.Scale(canvas, canvas.Bounds(), img, src, draw.Over, nil)
	}

	out := NewRaster(w, h)
	for y := 0; y < h; y++ {
		row := canvas.Pix[y*canvas.Stride : y*canvas.Stride+w*4]
		for x := 0; x < w; x++ {
			// canvas is opaque, so premultiplied and straight values agree
			out.Set(x, y, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return out
}
